package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrNotConnected means the caller has no stored credential.
var ErrNotConnected = errors.New("not connected")

const (
	tokenKeyPrefix = "tok:"
	latestTokenKey = "tok:latest"
)

// SessionStore is the key-value store credentials live in.
type SessionStore interface {
	Get(ctx context.Context, key string, out any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Credential is the bearer credential obtained from the identity provider.
type Credential struct {
	AccessToken   string    `json:"access_token"`
	TokenType     string    `json:"token_type,omitempty"`
	BotID         string    `json:"bot_id,omitempty"`
	WorkspaceID   string    `json:"workspace_id,omitempty"`
	WorkspaceName string    `json:"workspace_name,omitempty"`
	ObtainedAt    time.Time `json:"obtained_at"`
}

// CredentialPolicy decides whether a caller without a session credential may
// borrow the most recently bound one.
type CredentialPolicy int

const (
	// CredentialPolicySessionOnly resolves a credential from the caller's own
	// session and nothing else.
	CredentialPolicySessionOnly CredentialPolicy = iota
	// CredentialPolicyLatestFallback additionally falls back to the last
	// credential bound by any session. It leaks credentials across callers
	// and is meant for single-user deployments only.
	CredentialPolicyLatestFallback
)

func (p CredentialPolicy) String() string {
	if p == CredentialPolicyLatestFallback {
		return "latest-fallback"
	}
	return "session-only"
}

// CredentialService binds credentials to session ids.
type CredentialService struct {
	sessions SessionStore
	policy   CredentialPolicy
	log      *slog.Logger
}

func NewCredentialService(sessions SessionStore, policy CredentialPolicy) *CredentialService {
	return &CredentialService{
		sessions: sessions,
		policy:   policy,
		log:      slog.Default().With("component", "credentials"),
	}
}

func (s *CredentialService) Policy() CredentialPolicy { return s.policy }

func tokenKey(sid string) string { return tokenKeyPrefix + sid }

// Resolve returns the credential for sid, or ErrNotConnected.
func (s *CredentialService) Resolve(ctx context.Context, sid string) (*Credential, error) {
	if sid = strings.TrimSpace(sid); sid != "" {
		var cred Credential
		ok, err := s.sessions.Get(ctx, tokenKey(sid), &cred)
		if err != nil {
			return nil, fmt.Errorf("load credential: %w", err)
		}
		if ok && cred.AccessToken != "" {
			return &cred, nil
		}
	}

	if s.policy != CredentialPolicyLatestFallback {
		return nil, ErrNotConnected
	}
	var latest Credential
	ok, err := s.sessions.Get(ctx, latestTokenKey, &latest)
	if err != nil {
		return nil, fmt.Errorf("load latest credential: %w", err)
	}
	if !ok || latest.AccessToken == "" {
		return nil, ErrNotConnected
	}
	s.log.Warn("serving latest credential to a session without its own", "workspace", latest.WorkspaceID)
	return &latest, nil
}

// Bind stores cred for sid. The shared latest pointer is only written under
// the fallback policy.
func (s *CredentialService) Bind(ctx context.Context, sid string, cred Credential) error {
	if strings.TrimSpace(sid) == "" {
		return fmt.Errorf("bind credential: empty session id")
	}
	if cred.ObtainedAt.IsZero() {
		cred.ObtainedAt = time.Now().UTC()
	}
	if err := s.sessions.Set(ctx, tokenKey(sid), cred, 0); err != nil {
		return fmt.Errorf("bind credential: %w", err)
	}
	if s.policy == CredentialPolicyLatestFallback {
		if err := s.sessions.Set(ctx, latestTokenKey, cred, 0); err != nil {
			return fmt.Errorf("bind latest credential: %w", err)
		}
	}
	return nil
}

// Forget disconnects sid. The latest pointer is dropped too when it holds
// the same token.
func (s *CredentialService) Forget(ctx context.Context, sid string) error {
	var cred Credential
	ok, err := s.sessions.Get(ctx, tokenKey(sid), &cred)
	if err != nil {
		return fmt.Errorf("forget credential: %w", err)
	}
	if err := s.sessions.Delete(ctx, tokenKey(sid)); err != nil {
		return fmt.Errorf("forget credential: %w", err)
	}
	if !ok {
		return nil
	}
	var latest Credential
	if found, err := s.sessions.Get(ctx, latestTokenKey, &latest); err == nil && found && latest.AccessToken == cred.AccessToken {
		return s.PurgeLatest(ctx)
	}
	return nil
}

// PurgeLatest removes the shared latest pointer.
func (s *CredentialService) PurgeLatest(ctx context.Context) error {
	if err := s.sessions.Delete(ctx, latestTokenKey); err != nil {
		return fmt.Errorf("purge latest credential: %w", err)
	}
	return nil
}

// ConnectedSessions lists the session ids holding a credential.
func (s *CredentialService) ConnectedSessions(ctx context.Context) ([]string, error) {
	keys, err := s.sessions.Keys(ctx, tokenKeyPrefix)
	if err != nil {
		return nil, err
	}
	sids := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == latestTokenKey {
			continue
		}
		sids = append(sids, strings.TrimPrefix(k, tokenKeyPrefix))
	}
	return sids, nil
}

// ConnectedCredentials returns one credential per distinct access token
// across all sessions.
func (s *CredentialService) ConnectedCredentials(ctx context.Context) ([]Credential, error) {
	sids, err := s.ConnectedSessions(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(sids))
	var out []Credential
	for _, sid := range sids {
		var cred Credential
		ok, err := s.sessions.Get(ctx, tokenKey(sid), &cred)
		if err != nil {
			return nil, fmt.Errorf("load credential: %w", err)
		}
		if !ok || cred.AccessToken == "" || seen[cred.AccessToken] {
			continue
		}
		seen[cred.AccessToken] = true
		out = append(out, cred)
	}
	return out, nil
}
