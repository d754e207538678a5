package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recurio/internal/docstore"
)

func taskSchema() []docstore.PropertySchema {
	return []docstore.PropertySchema{
		{Name: "Name", Type: docstore.TypeTitle},
		{Name: "Due", Type: docstore.TypeDate},
		{Name: "Done", Type: docstore.TypeCheckbox},
		{Name: "Ref", Type: docstore.TypeRichText},
	}
}

func TestDocumentRepository_PageLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(newTestDB(t))

	db, err := repo.CreateDatabase(ctx, docstore.InWorkspace(), "Tasks", taskSchema())
	require.NoError(t, err)
	assert.Equal(t, "Tasks", db.Name())
	assert.Equal(t, docstore.TypeDate, db.Properties["Due"].Type)

	page, err := repo.CreatePage(ctx, docstore.InDatabase(db.ID), docstore.Properties{
		"Name": docstore.TitleProperty("Water plants"),
		"Due":  docstore.DateProperty("2024-01-31"),
		"Done": docstore.CheckboxProperty(false),
	})
	require.NoError(t, err)
	assert.Equal(t, db.ID, page.DatabaseID())

	got, err := repo.RetrievePage(ctx, page.ID)
	require.NoError(t, err)
	assert.Equal(t, "Water plants", got.Properties["Name"].PlainText())
	assert.Equal(t, "2024-01-31", got.Properties["Due"].Date.Start)
	assert.False(t, got.Properties["Done"].Checkbox)

	updated, err := repo.UpdatePage(ctx, page.ID, docstore.PageUpdate{
		Properties: docstore.Properties{"Done": docstore.CheckboxProperty(true)},
	})
	require.NoError(t, err)
	assert.True(t, updated.Properties["Done"].Checkbox)
	assert.Equal(t, "Water plants", updated.Properties["Name"].PlainText())

	_, err = repo.RetrievePage(ctx, "missing")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestDocumentRepository_RejectsBadWrites(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(newTestDB(t))
	db, err := repo.CreateDatabase(ctx, docstore.InWorkspace(), "Tasks", taskSchema())
	require.NoError(t, err)

	_, err = repo.CreatePage(ctx, docstore.InDatabase(db.ID), docstore.Properties{"Nope": docstore.RichTextProperty("x")})
	assert.ErrorIs(t, err, docstore.ErrRejected)

	_, err = repo.CreatePage(ctx, docstore.InDatabase(db.ID), docstore.Properties{"Due": docstore.CheckboxProperty(true)})
	assert.ErrorIs(t, err, docstore.ErrRejected)

	page, err := repo.CreatePage(ctx, docstore.InDatabase(db.ID), docstore.Properties{"Name": docstore.TitleProperty("x")})
	require.NoError(t, err)
	_, err = repo.UpdatePage(ctx, page.ID, docstore.Archive())
	require.NoError(t, err)

	_, err = repo.UpdatePage(ctx, page.ID, docstore.PageUpdate{Properties: docstore.Properties{"Name": docstore.TitleProperty("y")}})
	assert.ErrorIs(t, err, docstore.ErrRejected)

	unarchived, err := repo.UpdatePage(ctx, page.ID, docstore.Unarchive())
	require.NoError(t, err)
	assert.False(t, unarchived.Archived)

	require.NoError(t, repo.ArchiveDatabase(ctx, db.ID))
	_, err = repo.CreatePage(ctx, docstore.InDatabase(db.ID), docstore.Properties{"Name": docstore.TitleProperty("z")})
	assert.ErrorIs(t, err, docstore.ErrRejected)
}

func TestDocumentRepository_Precondition(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(newTestDB(t))
	db, err := repo.CreateDatabase(ctx, docstore.InWorkspace(), "Rules", taskSchema())
	require.NoError(t, err)
	page, err := repo.CreatePage(ctx, docstore.InDatabase(db.ID), docstore.Properties{"Ref": docstore.RichTextProperty("task-1")})
	require.NoError(t, err)

	_, err = repo.UpdatePage(ctx, page.ID, docstore.PageUpdate{
		Properties:   docstore.Properties{"Ref": docstore.RichTextProperty("task-2")},
		Precondition: &docstore.Precondition{Property: "Ref", Equals: "task-1"},
	})
	require.NoError(t, err)

	_, err = repo.UpdatePage(ctx, page.ID, docstore.PageUpdate{
		Properties:   docstore.Properties{"Ref": docstore.RichTextProperty("task-3")},
		Precondition: &docstore.Precondition{Property: "Ref", Equals: "task-1"},
	})
	assert.ErrorIs(t, err, docstore.ErrConflict)

	got, err := repo.RetrievePage(ctx, page.ID)
	require.NoError(t, err)
	assert.Equal(t, "task-2", got.Properties["Ref"].PlainText())
}

func TestDocumentRepository_QueryFilterAndCursor(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(newTestDB(t))
	db, err := repo.CreateDatabase(ctx, docstore.InWorkspace(), "Tasks", taskSchema())
	require.NoError(t, err)

	for i, done := range []bool{true, false, true, true} {
		props := docstore.Properties{
			"Name": docstore.TitleProperty(string(rune('a' + i))),
			"Done": docstore.CheckboxProperty(done),
		}
		if i == 0 {
			props["Due"] = docstore.DateProperty("2024-01-01")
		}
		_, err := repo.CreatePage(ctx, docstore.InDatabase(db.ID), props)
		require.NoError(t, err)
	}

	first, err := repo.QueryDatabase(ctx, db.ID, docstore.Query{Filter: docstore.CheckboxEquals("Done", true), PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first.Results, 2)
	assert.True(t, first.HasMore)

	rest, err := repo.QueryDatabase(ctx, db.ID, docstore.Query{Filter: docstore.CheckboxEquals("Done", true), PageSize: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Results, 1)
	assert.False(t, rest.HasMore)
	assert.Equal(t, "d", rest.Results[0].Properties["Name"].PlainText())

	empty, err := repo.QueryDatabase(ctx, db.ID, docstore.Query{Filter: docstore.PropertyIsEmpty("Due", docstore.TypeDate)})
	require.NoError(t, err)
	assert.Len(t, empty.Results, 3)

	_, err = repo.QueryDatabase(ctx, db.ID, docstore.Query{Filter: docstore.CheckboxEquals("Active", true)})
	assert.ErrorIs(t, err, docstore.ErrRejected)
}

func TestDocumentRepository_Search(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(newTestDB(t))

	_, err := repo.CreateDatabase(ctx, docstore.InWorkspace(), "Recurrence Rules (Managed)", nil)
	require.NoError(t, err)
	_, err = repo.CreateDatabase(ctx, docstore.InWorkspace(), "Groceries", nil)
	require.NoError(t, err)
	_, err = repo.CreatePage(ctx, docstore.InWorkspace(), docstore.Properties{"title": docstore.TitleProperty("Recurio (Managed)")})
	require.NoError(t, err)

	dbs, err := repo.SearchDatabases(ctx, "recurrence rules")
	require.NoError(t, err)
	require.Len(t, dbs, 1)
	assert.Equal(t, "Recurrence Rules (Managed)", dbs[0].Name())

	all, err := repo.SearchDatabases(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pages, err := repo.SearchPages(ctx, "Recurio")
	require.NoError(t, err)
	assert.Len(t, pages, 1)
}
