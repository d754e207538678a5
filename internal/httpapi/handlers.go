package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"recurio/internal/docstore"
	"recurio/internal/notion"
	"recurio/internal/service"
)

const (
	oauthStatePrefix = "oauth_state:"
	oauthStateTTL    = 10 * time.Minute
	maxBodySize      = 64 << 10
)

func fail(c *gin.Context, status int, code string) {
	c.AbortWithStatusJSON(status, gin.H{"ok": false, "error": code})
}

// failStore maps document store errors onto responses.
func (s *Server) failStore(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, docstore.ErrUnauthorized):
		fail(c, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, docstore.ErrNotFound):
		fail(c, http.StatusNotFound, "not_found")
	case errors.Is(err, context.DeadlineExceeded):
		fail(c, http.StatusGatewayTimeout, "timeout")
	default:
		s.log.Error(op, "error", err)
		fail(c, http.StatusBadGateway, "upstream_error")
	}
}

func (s *Server) redirectApp(c *gin.Context, query url.Values) {
	target := s.opts.AppURL + "/"
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	c.Redirect(http.StatusFound, target)
}

func (s *Server) handleOAuthStart(c *gin.Context) {
	state := uuid.NewString()
	authURL, err := s.opts.OAuth.AuthCodeURL(state)
	if err != nil {
		if errors.Is(err, notion.ErrOAuthNotConfigured) {
			fail(c, http.StatusServiceUnavailable, "oauth_not_configured")
			return
		}
		s.log.Error("build auth url", "error", err)
		fail(c, http.StatusInternalServerError, "internal")
		return
	}

	sid := sessionID(c)
	if sid == "" {
		sid = uuid.NewString()
	}
	if err := s.opts.Sessions.Set(c.Request.Context(), oauthStatePrefix+state, sid, oauthStateTTL); err != nil {
		s.log.Error("store oauth state", "error", err)
		fail(c, http.StatusInternalServerError, "internal")
		return
	}
	s.setSessionCookie(c, sid, sidCookieMaxAge)
	c.Redirect(http.StatusFound, authURL)
}

func (s *Server) handleOAuthCallback(c *gin.Context) {
	ctx := c.Request.Context()
	if e := c.Query("error"); e != "" {
		s.redirectApp(c, url.Values{"error": {e}})
		return
	}
	code, state := c.Query("code"), c.Query("state")
	if code == "" || state == "" {
		fail(c, http.StatusBadRequest, "missing_code")
		return
	}

	var sid string
	ok, err := s.opts.Sessions.Get(ctx, oauthStatePrefix+state, &sid)
	if err != nil {
		s.log.Error("load oauth state", "error", err)
		fail(c, http.StatusInternalServerError, "internal")
		return
	}
	if !ok || sid == "" {
		fail(c, http.StatusBadRequest, "invalid_state")
		return
	}
	if err := s.opts.Sessions.Delete(ctx, oauthStatePrefix+state); err != nil {
		s.log.Warn("drop oauth state", "error", err)
	}

	grant, err := s.opts.OAuth.Exchange(ctx, code)
	if err != nil {
		s.log.Error("oauth exchange", "error", err)
		fail(c, http.StatusBadGateway, "exchange_failed")
		return
	}
	err = s.opts.Credentials.Bind(ctx, sid, service.Credential{
		AccessToken:   grant.AccessToken,
		TokenType:     grant.TokenType,
		BotID:         grant.BotID,
		WorkspaceID:   grant.WorkspaceID,
		WorkspaceName: grant.WorkspaceName,
	})
	if err != nil {
		s.log.Error("bind credential", "error", err)
		fail(c, http.StatusInternalServerError, "internal")
		return
	}
	s.log.Info("workspace connected", "workspace", grant.WorkspaceID)
	s.setSessionCookie(c, sid, sidCookieMaxAge)
	s.redirectApp(c, url.Values{"connected": {"1"}})
}

// workspaceProber is implemented by stores that can verify their token.
type workspaceProber interface {
	Me(ctx context.Context) (*notion.User, error)
}

func (s *Server) handleMe(c *gin.Context) {
	cred := credential(c)
	resp := gin.H{
		"ok":            true,
		"workspaceId":   cred.WorkspaceID,
		"workspaceName": cred.WorkspaceName,
		"policy":        s.opts.Credentials.Policy().String(),
	}
	if p, ok := store(c).(workspaceProber); ok {
		user, err := p.Me(c.Request.Context())
		if notion.IsAuthError(err) {
			if sid := sessionID(c); sid != "" {
				if err := s.opts.Credentials.Forget(c.Request.Context(), sid); err != nil {
					s.log.Warn("forget revoked credential", "error", err)
				}
			}
			fail(c, http.StatusUnauthorized, "not_connected")
			return
		}
		if err != nil {
			s.failStore(c, "probe token", err)
			return
		}
		resp["user"] = user
	}
	c.JSON(http.StatusOK, resp)
}

type workerRequest struct {
	DB string `json:"db"`
}

type workerResponse struct {
	OK bool `json:"ok"`
	*service.SyncReport
}

func (s *Server) handleWorker(c *gin.Context) {
	var req workerRequest
	if c.Request.ContentLength != 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid_body")
			return
		}
	}
	if req.DB == "" {
		req.DB = c.Query("db")
	}

	st := store(c)
	sync := service.NewSyncService(st, service.NewRuleService(st), s.opts.Recorder)
	report, err := sync.Run(c.Request.Context(), service.SyncOptions{
		CollectionFilter: strings.TrimSpace(req.DB),
		Trigger:          "http",
	})
	if err != nil {
		s.failStore(c, "sync", err)
		return
	}
	c.JSON(http.StatusOK, workerResponse{OK: true, SyncReport: report})
}

func (s *Server) handleAttachRule(c *gin.Context) {
	var in service.RuleInput
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, "invalid_body")
		return
	}

	res, err := service.NewRuleService(store(c)).Attach(c.Request.Context(), in)
	switch {
	case errors.Is(err, service.ErrMissingTaskID):
		fail(c, http.StatusBadRequest, "missing_task_id")
	case errors.Is(err, service.ErrInvalidRuleFrequency):
		fail(c, http.StatusBadRequest, "invalid_rule")
	case errors.Is(err, service.ErrTaskArchived):
		fail(c, http.StatusConflict, "task_archived")
	case errors.Is(err, docstore.ErrNotFound):
		fail(c, http.StatusNotFound, "task_not_found")
	case err != nil:
		s.failStore(c, "attach rule", err)
	default:
		c.JSON(http.StatusOK, gin.H{
			"ok":         true,
			"rulePageId": res.RulePageID,
			"created":    res.Created,
			"rule":       res.Rule,
		})
	}
}

func (s *Server) handleTasks(c *gin.Context) {
	db := strings.TrimSpace(c.Query("db"))
	if db == "" {
		fail(c, http.StatusBadRequest, "missing_db")
		return
	}
	st := store(c)
	tasks, err := service.NewTaskService(st, service.NewRuleService(st)).List(c.Request.Context(), db)
	if errors.Is(err, service.ErrCollectionNotShared) {
		fail(c, http.StatusNotFound, "db_not_shared")
		return
	}
	if err != nil {
		s.failStore(c, "list tasks", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "tasks": tasks})
}

func (s *Server) handleDatabases(c *gin.Context) {
	st := store(c)
	dbs, err := service.NewTaskService(st, service.NewRuleService(st)).Collections(c.Request.Context())
	if err != nil {
		s.failStore(c, "list databases", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "databases": dbs})
}

func (s *Server) handleClearRules(c *gin.Context) {
	res, err := service.NewRuleService(store(c)).Clear(c.Request.Context())
	if errors.Is(err, service.ErrNoRulesCollection) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "total": 0, "archived": 0, "note": service.NoteNoRulesCollection})
		return
	}
	if err != nil {
		s.failStore(c, "clear rules", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "total": res.Total, "archived": res.Archived})
}

func (s *Server) handleDisconnect(c *gin.Context) {
	if sid := sessionID(c); sid != "" {
		if err := s.opts.Credentials.Forget(c.Request.Context(), sid); err != nil {
			s.log.Error("disconnect", "error", err)
			fail(c, http.StatusInternalServerError, "internal")
			return
		}
	}
	s.setSessionCookie(c, "", -time.Second)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
