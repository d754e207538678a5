package main

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"recurio/internal/config"
	"recurio/internal/docstore"
	"recurio/internal/notion"
	"recurio/internal/repository"
	"recurio/internal/service"
)

var errNoCredential = errors.New("no credential: set NOTION_TOKEN, use STORE_BACKEND=local or pass --session")

// app holds what every command shares: configuration and the local database.
type app struct {
	cfg      config.Config
	db       *gorm.DB
	sessions *repository.SessionRepository
	docs     *repository.DocumentRepository
	runs     *repository.SyncRunRepository
	creds    *service.CredentialService
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}

	policy := service.CredentialPolicySessionOnly
	if cfg.AllowLatestFallback {
		policy = service.CredentialPolicyLatestFallback
	}
	sessions := repository.NewSessionRepository(db)
	return &app{
		cfg:      cfg,
		db:       db,
		sessions: sessions,
		docs:     repository.NewDocumentRepository(db),
		runs:     repository.NewSyncRunRepository(db),
		creds:    service.NewCredentialService(sessions, policy),
	}, nil
}

func (a *app) Close() {
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func (a *app) storeFor(cred *service.Credential) docstore.Store {
	if a.cfg.StoreBackend == config.BackendLocal {
		return a.docs
	}
	return notion.NewClient(cred.AccessToken, notion.WithVersion(a.cfg.NotionVersion))
}

// staticCredential is the credential used when no session supplies one.
func (a *app) staticCredential() *service.Credential {
	switch {
	case a.cfg.StoreBackend == config.BackendLocal:
		return &service.Credential{AccessToken: "local", WorkspaceName: "local"}
	case a.cfg.NotionToken != "":
		return &service.Credential{AccessToken: a.cfg.NotionToken, WorkspaceName: "integration"}
	}
	return nil
}

// targets lists every workspace the background sync covers: the static
// credential plus one per distinct connected token.
func (a *app) targets(ctx context.Context) ([]service.SyncTarget, error) {
	if a.cfg.StoreBackend == config.BackendLocal {
		return []service.SyncTarget{{Label: "local", Store: a.docs}}, nil
	}
	creds, err := a.creds.ConnectedCredentials(ctx)
	if err != nil {
		return nil, err
	}
	if static := a.staticCredential(); static != nil {
		creds = append([]service.Credential{*static}, creds...)
	}

	seen := make(map[string]bool, len(creds))
	targets := make([]service.SyncTarget, 0, len(creds))
	for i := range creds {
		cred := &creds[i]
		if seen[cred.AccessToken] {
			continue
		}
		seen[cred.AccessToken] = true
		label := cred.WorkspaceName
		if label == "" {
			label = cred.WorkspaceID
		}
		if label == "" {
			label = "workspace"
		}
		targets = append(targets, service.SyncTarget{Label: label, Store: a.storeFor(cred)})
	}
	return targets, nil
}

// cliStore opens the store for a one-off command: the given session's
// credential, or the static one.
func (a *app) cliStore(ctx context.Context, sid string) (docstore.Store, error) {
	if sid != "" {
		cred, err := a.creds.Resolve(ctx, sid)
		if err != nil {
			return nil, fmt.Errorf("session %q: %w", sid, err)
		}
		return a.storeFor(cred), nil
	}
	if static := a.staticCredential(); static != nil {
		return a.storeFor(static), nil
	}
	return nil, errNoCredential
}
