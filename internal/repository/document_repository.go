package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"recurio/internal/docstore"
	"recurio/internal/model"
)

const defaultPageSize = 100

// DocumentRepository is a SQLite-backed docstore.Store. It behaves like the
// remote store where the orchestrator cares: archived pages and unknown
// columns reject writes, and preconditions are checked inside a transaction.
type DocumentRepository struct {
	db *gorm.DB
}

var _ docstore.Store = (*DocumentRepository)(nil)

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (r *DocumentRepository) findDocument(db *gorm.DB, id, kind string) (*model.Document, error) {
	var doc model.Document
	err := db.Where("id = ? AND kind = ?", id, kind).First(&doc).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("%s %q: %w", kind, id, docstore.ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("find %s %q: %w", kind, id, err)
	}
	return &doc, nil
}

func toPage(doc *model.Document) (*docstore.Page, error) {
	page := &docstore.Page{
		ID:             doc.ID,
		Archived:       doc.Archived,
		Parent:         toParent(doc.ParentType, doc.ParentID),
		CreatedTime:    doc.CreatedAt,
		LastEditedTime: doc.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(doc.Properties), &page.Properties); err != nil {
		return nil, fmt.Errorf("decode page %q: %w", doc.ID, err)
	}
	return page, nil
}

func toDatabase(doc *model.Document) (*docstore.Database, error) {
	db := &docstore.Database{
		ID:       doc.ID,
		Title:    docstore.Text(doc.Title),
		Parent:   toParent(doc.ParentType, doc.ParentID),
		Archived: doc.Archived,
	}
	if err := json.Unmarshal([]byte(doc.Properties), &db.Properties); err != nil {
		return nil, fmt.Errorf("decode database %q: %w", doc.ID, err)
	}
	return db, nil
}

func toParent(typ, id string) docstore.Parent {
	switch typ {
	case docstore.ParentDatabase:
		return docstore.InDatabase(id)
	case docstore.ParentPage:
		return docstore.InPage(id)
	}
	return docstore.InWorkspace()
}

func pageTitle(ps docstore.Properties) string {
	for _, k := range ps.Keys() {
		if p := ps[k]; p.Type == docstore.TypeTitle {
			return p.PlainText()
		}
	}
	return ""
}

// validate checks that every property exists in the schema with its type.
func validate(schema map[string]docstore.PropertySchema, ps docstore.Properties) error {
	for name, p := range ps {
		col, ok := schema[name]
		if !ok {
			return fmt.Errorf("%q is not a property that exists: %w", name, docstore.ErrRejected)
		}
		if col.Type != p.Type {
			return fmt.Errorf("%q is expected to be %s: %w", name, col.Type, docstore.ErrRejected)
		}
	}
	return nil
}

func (r *DocumentRepository) RetrievePage(ctx context.Context, id string) (*docstore.Page, error) {
	doc, err := r.findDocument(r.db.WithContext(ctx), id, model.DocumentKindPage)
	if err != nil {
		return nil, err
	}
	return toPage(doc)
}

func (r *DocumentRepository) CreatePage(ctx context.Context, parent docstore.Parent, props docstore.Properties) (*docstore.Page, error) {
	db := r.db.WithContext(ctx)
	if parent.Type == docstore.ParentDatabase {
		coll, err := r.findDocument(db, parent.DatabaseID, model.DocumentKindDatabase)
		if err != nil {
			return nil, err
		}
		if coll.Archived {
			return nil, fmt.Errorf("database %q is archived: %w", coll.ID, docstore.ErrRejected)
		}
		schema, err := toDatabase(coll)
		if err != nil {
			return nil, err
		}
		if err := validate(schema.Properties, props); err != nil {
			return nil, err
		}
	}
	if props == nil {
		props = docstore.Properties{}
	}

	raw, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("encode page: %w", err)
	}
	doc := model.Document{
		ID:         uuid.NewString(),
		Kind:       model.DocumentKindPage,
		ParentType: parent.Type,
		ParentID:   parent.ID(),
		Title:      pageTitle(props),
		Properties: string(raw),
	}
	if err := db.Create(&doc).Error; err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	return toPage(&doc)
}

func (r *DocumentRepository) UpdatePage(ctx context.Context, id string, upd docstore.PageUpdate) (*docstore.Page, error) {
	var out *docstore.Page
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc, err := r.findDocument(tx, id, model.DocumentKindPage)
		if err != nil {
			return err
		}
		page, err := toPage(doc)
		if err != nil {
			return err
		}
		if !upd.Precondition.Holds(page) {
			return fmt.Errorf("page %q %s: %w", id, upd.Precondition.Property, docstore.ErrConflict)
		}

		if len(upd.Properties) > 0 {
			if page.Archived && (upd.Archived == nil || *upd.Archived) {
				return fmt.Errorf("page %q is archived: %w", id, docstore.ErrRejected)
			}
			if page.Parent.Type == docstore.ParentDatabase {
				coll, err := r.findDocument(tx, page.Parent.DatabaseID, model.DocumentKindDatabase)
				if err != nil {
					return err
				}
				schema, err := toDatabase(coll)
				if err != nil {
					return err
				}
				if err := validate(schema.Properties, upd.Properties); err != nil {
					return err
				}
			}
			if page.Properties == nil {
				page.Properties = docstore.Properties{}
			}
			for k, v := range upd.Properties {
				page.Properties[k] = v
			}
		}
		if upd.Archived != nil {
			doc.Archived = *upd.Archived
		}

		raw, err := json.Marshal(page.Properties)
		if err != nil {
			return fmt.Errorf("encode page: %w", err)
		}
		doc.Properties = string(raw)
		doc.Title = pageTitle(page.Properties)
		if err := tx.Save(doc).Error; err != nil {
			return fmt.Errorf("update page %q: %w", id, err)
		}
		out, err = toPage(doc)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *DocumentRepository) QueryDatabase(ctx context.Context, databaseID string, q docstore.Query) (*docstore.QueryResult, error) {
	db := r.db.WithContext(ctx)
	coll, err := r.findDocument(db, databaseID, model.DocumentKindDatabase)
	if err != nil {
		return nil, err
	}
	if q.Filter != nil {
		schema, err := toDatabase(coll)
		if err != nil {
			return nil, err
		}
		col, ok := schema.Properties[q.Filter.Property]
		if !ok || col.Type != q.Filter.Type {
			return nil, fmt.Errorf("filter on %q: %w", q.Filter.Property, docstore.ErrRejected)
		}
	}

	order := "created_at ASC, id ASC"
	if q.SortByLastEdited {
		order = "updated_at DESC, id ASC"
	}
	var docs []model.Document
	err = db.Where("kind = ? AND parent_type = ? AND parent_id = ? AND archived = ?",
		model.DocumentKindPage, docstore.ParentDatabase, databaseID, false).
		Order(order).Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("query database %q: %w", databaseID, err)
	}

	var matched []docstore.Page
	for i := range docs {
		page, err := toPage(&docs[i])
		if err != nil {
			return nil, err
		}
		if q.Filter.Matches(page) {
			matched = append(matched, *page)
		}
	}

	offset := 0
	if q.Cursor != "" {
		if offset, err = strconv.Atoi(q.Cursor); err != nil || offset < 0 {
			return nil, fmt.Errorf("bad cursor %q: %w", q.Cursor, docstore.ErrRejected)
		}
	}
	size := q.PageSize
	if size <= 0 {
		size = defaultPageSize
	}

	res := &docstore.QueryResult{}
	if offset >= len(matched) {
		return res, nil
	}
	end := min(offset+size, len(matched))
	res.Results = matched[offset:end]
	if end < len(matched) {
		res.HasMore = true
		res.NextCursor = strconv.Itoa(end)
	}
	return res, nil
}

func (r *DocumentRepository) RetrieveDatabase(ctx context.Context, id string) (*docstore.Database, error) {
	doc, err := r.findDocument(r.db.WithContext(ctx), id, model.DocumentKindDatabase)
	if err != nil {
		return nil, err
	}
	return toDatabase(doc)
}

func (r *DocumentRepository) CreateDatabase(ctx context.Context, parent docstore.Parent, title string, schema []docstore.PropertySchema) (*docstore.Database, error) {
	cols := make(map[string]docstore.PropertySchema, len(schema))
	for _, s := range schema {
		if s.ID == "" {
			s.ID = s.Name
		}
		cols[s.Name] = s
	}
	raw, err := json.Marshal(cols)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	doc := model.Document{
		ID:         uuid.NewString(),
		Kind:       model.DocumentKindDatabase,
		ParentType: parent.Type,
		ParentID:   parent.ID(),
		Title:      title,
		Properties: string(raw),
	}
	if err := r.db.WithContext(ctx).Create(&doc).Error; err != nil {
		return nil, fmt.Errorf("create database: %w", err)
	}
	return toDatabase(&doc)
}

// ArchiveDatabase marks a database archived; new pages are then rejected.
func (r *DocumentRepository) ArchiveDatabase(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ? AND kind = ?", id, model.DocumentKindDatabase).
		Update("archived", true)
	if res.Error != nil {
		return fmt.Errorf("archive database %q: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("database %q: %w", id, docstore.ErrNotFound)
	}
	return nil
}

func (r *DocumentRepository) search(ctx context.Context, kind, query string) ([]model.Document, error) {
	var docs []model.Document
	db := r.db.WithContext(ctx).Where("kind = ? AND archived = ?", kind, false)
	if q := strings.TrimSpace(query); q != "" {
		db = db.Where("LOWER(title) LIKE ? ESCAPE '\\'", "%"+escapeLike(strings.ToLower(q))+"%")
	}
	if err := db.Order("updated_at DESC, id ASC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("search %ss: %w", kind, err)
	}
	return docs, nil
}

func (r *DocumentRepository) SearchDatabases(ctx context.Context, query string) ([]docstore.Database, error) {
	docs, err := r.search(ctx, model.DocumentKindDatabase, query)
	if err != nil {
		return nil, err
	}
	out := make([]docstore.Database, 0, len(docs))
	for i := range docs {
		db, err := toDatabase(&docs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *db)
	}
	return out, nil
}

func (r *DocumentRepository) SearchPages(ctx context.Context, query string) ([]docstore.Page, error) {
	docs, err := r.search(ctx, model.DocumentKindPage, query)
	if err != nil {
		return nil, err
	}
	out := make([]docstore.Page, 0, len(docs))
	for i := range docs {
		page, err := toPage(&docs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *page)
	}
	return out, nil
}
