package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"recurio/internal/docstore"
	"recurio/internal/notion"
	"recurio/internal/service"
)

// OAuthFlow is the authorization code flow of the identity provider.
type OAuthFlow interface {
	AuthCodeURL(state string) (string, error)
	Exchange(ctx context.Context, code string) (*notion.Grant, error)
}

// StoreFactory opens the document store a credential grants access to.
type StoreFactory func(cred *service.Credential) docstore.Store

// Options wires the server to its collaborators.
type Options struct {
	Credentials *service.CredentialService
	Sessions    service.SessionStore
	OAuth       OAuthFlow
	OpenStore   StoreFactory
	Recorder    service.SyncRunRecorder
	AppURL      string

	// DefaultCredential serves callers without a session credential. It is
	// set for single-workspace deployments (static token or local store).
	DefaultCredential *service.Credential
}

// Server is the recurio HTTP API.
type Server struct {
	router *gin.Engine
	opts   Options
	log    *slog.Logger
}

func NewServer(opts Options) *Server {
	opts.AppURL = strings.TrimRight(opts.AppURL, "/")

	router := gin.New()
	s := &Server{
		router: router,
		opts:   opts,
		log:    slog.Default().With("component", "http"),
	}
	router.Use(gin.Recovery(), s.requestLog, noStore, s.session)

	api := router.Group("/api")
	{
		api.GET("/oauth/start", s.handleOAuthStart)
		api.GET("/oauth/callback", s.handleOAuthCallback)
		api.POST("/admin/disconnect", s.handleDisconnect)

		authed := api.Group("", s.requireCredential)
		authed.GET("/me", s.handleMe)
		authed.POST("/worker", s.handleWorker)
		authed.POST("/rules", s.handleAttachRule)
		authed.GET("/tasks", s.handleTasks)
		authed.GET("/databases", s.handleDatabases)
		authed.POST("/admin/clear-rules", s.handleClearRules)
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Info("request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start),
	)
}

// noStore keeps responses carrying credentials or task data out of caches.
func noStore(c *gin.Context) {
	h := c.Writer.Header()
	h.Set("Cache-Control", "no-store, max-age=0")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	c.Next()
}
