package notion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

// ErrOAuthNotConfigured means no client id was configured.
var ErrOAuthNotConfigured = errors.New("notion oauth client id is not configured")

// Grant is what the token endpoint hands back for a workspace.
type Grant struct {
	AccessToken   string
	TokenType     string
	BotID         string
	WorkspaceID   string
	WorkspaceName string
}

// OAuth runs the authorization code flow against Notion.
type OAuth struct {
	cfg  oauth2.Config
	http *http.Client
}

func NewOAuth(clientID, clientSecret, redirectURL string, opts ...Option) *OAuth {
	c := NewClient("", opts...)
	return &OAuth{
		cfg: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   c.baseURL + "/v1/oauth/authorize",
				TokenURL:  c.baseURL + "/v1/oauth/token",
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		http: c.http,
	}
}

func (o *OAuth) Configured() bool { return strings.TrimSpace(o.cfg.ClientID) != "" }

// AuthCodeURL is the consent page the user is redirected to.
func (o *OAuth) AuthCodeURL(state string) (string, error) {
	if !o.Configured() {
		return "", ErrOAuthNotConfigured
	}
	return o.cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("owner", "user")), nil
}

// Exchange trades an authorization code for a workspace grant.
func (o *OAuth) Exchange(ctx context.Context, code string) (*Grant, error) {
	if !o.Configured() {
		return nil, ErrOAuthNotConfigured
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, o.http)
	tok, err := o.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	return &Grant{
		AccessToken:   tok.AccessToken,
		TokenType:     tok.TokenType,
		BotID:         extra(tok, "bot_id"),
		WorkspaceID:   extra(tok, "workspace_id"),
		WorkspaceName: extra(tok, "workspace_name"),
	}, nil
}

func extra(tok *oauth2.Token, key string) string {
	if v, ok := tok.Extra(key).(string); ok {
		return v
	}
	return ""
}
