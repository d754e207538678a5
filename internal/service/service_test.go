package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"recurio/internal/docstore"
	"recurio/internal/props"
	"recurio/internal/repository"
)

var fixedNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	db    *gorm.DB
	store *repository.DocumentRepository
	tasks string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "recurio.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	store := repository.NewDocumentRepository(db)
	coll, err := store.CreateDatabase(context.Background(), docstore.InWorkspace(), "Tasks", taskSchema())
	require.NoError(t, err)
	return &fixture{db: db, store: store, tasks: coll.ID}
}

func taskSchema() []docstore.PropertySchema {
	return []docstore.PropertySchema{
		{Name: "Name", Type: docstore.TypeTitle},
		{Name: "Due", Type: docstore.TypeDate},
		{Name: "Done", Type: docstore.TypeCheckbox},
	}
}

func (f *fixture) task(t *testing.T, title, due string, done bool) *docstore.Page {
	t.Helper()
	ps := docstore.Properties{
		"Name": docstore.TitleProperty(title),
		"Done": docstore.CheckboxProperty(done),
	}
	if due != "" {
		ps["Due"] = docstore.DateProperty(due)
	}
	page, err := f.store.CreatePage(context.Background(), docstore.InDatabase(f.tasks), ps)
	require.NoError(t, err)
	return page
}

func (f *fixture) attach(t *testing.T, in RuleInput) string {
	t.Helper()
	res, err := NewRuleService(f.store).Attach(context.Background(), in)
	require.NoError(t, err)
	return res.RulePageID
}

func (f *fixture) complete(t *testing.T, taskID string) {
	t.Helper()
	_, err := f.store.UpdatePage(context.Background(), taskID, docstore.PageUpdate{
		Properties: docstore.Properties{"Done": docstore.CheckboxProperty(true)},
	})
	require.NoError(t, err)
}

func (f *fixture) rulesCollection(t *testing.T) string {
	t.Helper()
	id, err := NewRuleService(f.store).FindCollection(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return id
}

func (f *fixture) allRules(t *testing.T) []docstore.Page {
	t.Helper()
	res, err := f.store.QueryDatabase(context.Background(), f.rulesCollection(t), docstore.Query{})
	require.NoError(t, err)
	return res.Results
}

func (f *fixture) syncService(store docstore.Store) *SyncService {
	svc := NewSyncService(store, NewRuleService(store), repository.NewSyncRunRepository(f.db))
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func (f *fixture) rule(t *testing.T, id string) *docstore.Page {
	t.Helper()
	page, err := f.store.RetrievePage(context.Background(), id)
	require.NoError(t, err)
	return page
}

func (f *fixture) taskPages(t *testing.T) []docstore.Page {
	t.Helper()
	res, err := f.store.QueryDatabase(context.Background(), f.tasks, docstore.Query{})
	require.NoError(t, err)
	return res.Results
}

func activeCount(rows []docstore.Page) int {
	n := 0
	for i := range rows {
		if props.DecodeRule(&rows[i]).Active {
			n++
		}
	}
	return n
}
