package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"recurio/internal/docstore"
	"recurio/internal/service"
)

const (
	headerSID       = "x-recurio-sid"
	headerLegacySID = "x-recurio-session"
	cookieSID       = "sid"

	sidCookieMaxAge = 30 * 24 * time.Hour

	ctxSID        = "recurio.sid"
	ctxCredential = "recurio.credential"
	ctxStore      = "recurio.store"
)

// session resolves the caller's session id: the sid header, then the legacy
// header, then the cookie.
func (s *Server) session(c *gin.Context) {
	sid := strings.TrimSpace(c.GetHeader(headerSID))
	if sid == "" {
		sid = strings.TrimSpace(c.GetHeader(headerLegacySID))
	}
	if sid == "" {
		if v, err := c.Cookie(cookieSID); err == nil {
			sid = strings.TrimSpace(v)
		}
	}
	c.Set(ctxSID, sid)
	c.Next()
}

func sessionID(c *gin.Context) string { return c.GetString(ctxSID) }

func (s *Server) setSessionCookie(c *gin.Context, sid string, maxAge time.Duration) {
	secure := strings.HasPrefix(s.opts.AppURL, "https://")
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(cookieSID, sid, int(maxAge.Seconds()), "/", "", secure, true)
}

// requireCredential aborts with 401 unless the caller has a credential, and
// opens the store it grants.
func (s *Server) requireCredential(c *gin.Context) {
	cred, err := s.opts.Credentials.Resolve(c.Request.Context(), sessionID(c))
	if errors.Is(err, service.ErrNotConnected) && s.opts.DefaultCredential != nil {
		cred, err = s.opts.DefaultCredential, nil
	}
	if err != nil {
		if errors.Is(err, service.ErrNotConnected) {
			fail(c, http.StatusUnauthorized, "not_connected")
			return
		}
		s.log.Error("resolve credential", "error", err)
		fail(c, http.StatusInternalServerError, "internal")
		return
	}
	c.Set(ctxCredential, cred)
	c.Set(ctxStore, s.opts.OpenStore(cred))
	c.Next()
}

func credential(c *gin.Context) *service.Credential {
	return c.MustGet(ctxCredential).(*service.Credential)
}

func store(c *gin.Context) docstore.Store {
	return c.MustGet(ctxStore).(docstore.Store)
}
