// Package docstore describes the document store holding tasks and rules as
// pages with typed properties inside collections (databases).
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("docstore: not found")
	ErrRejected     = errors.New("docstore: update rejected")
	ErrConflict     = errors.New("docstore: precondition failed")
	ErrUnauthorized = errors.New("docstore: unauthorized")
)

const (
	ParentDatabase  = "database_id"
	ParentPage      = "page_id"
	ParentWorkspace = "workspace"
)

// Parent locates a page or database.
type Parent struct {
	Type       string `json:"type"`
	DatabaseID string `json:"database_id,omitempty"`
	PageID     string `json:"page_id,omitempty"`
	Workspace  bool   `json:"workspace,omitempty"`
}

func InDatabase(id string) Parent { return Parent{Type: ParentDatabase, DatabaseID: id} }
func InPage(id string) Parent     { return Parent{Type: ParentPage, PageID: id} }
func InWorkspace() Parent         { return Parent{Type: ParentWorkspace, Workspace: true} }

// ID returns the identifier of the parent container, if any.
func (p Parent) ID() string {
	switch p.Type {
	case ParentDatabase:
		return p.DatabaseID
	case ParentPage:
		return p.PageID
	}
	return ""
}

// Page is a document with a property bag.
type Page struct {
	ID             string     `json:"id"`
	Archived       bool       `json:"archived"`
	Parent         Parent     `json:"parent"`
	Properties     Properties `json:"properties"`
	CreatedTime    time.Time  `json:"created_time"`
	LastEditedTime time.Time  `json:"last_edited_time"`
}

// DatabaseID returns the parent collection when the page lives in one.
func (p *Page) DatabaseID() string {
	if p.Parent.Type == ParentDatabase {
		return p.Parent.DatabaseID
	}
	return ""
}

// PropertySchema describes one column of a database.
type PropertySchema struct {
	ID      string       `json:"id,omitempty"`
	Name    string       `json:"name"`
	Type    PropertyType `json:"type"`
	Options []Option     `json:"-"`
}

type optionsPayload struct {
	Options []Option `json:"options"`
}

// UnmarshalJSON lifts select/multi-select/status options out of the type key.
func (s *PropertySchema) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          string          `json:"id"`
		Name        string          `json:"name"`
		Type        PropertyType    `json:"type"`
		Select      *optionsPayload `json:"select"`
		MultiSelect *optionsPayload `json:"multi_select"`
		Status      *optionsPayload `json:"status"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.ID, s.Name, s.Type = raw.ID, raw.Name, raw.Type
	for _, p := range []*optionsPayload{raw.Select, raw.MultiSelect, raw.Status} {
		if p != nil {
			s.Options = p.Options
		}
	}
	return nil
}

// MarshalJSON writes the schema in the same shape UnmarshalJSON reads.
func (s PropertySchema) MarshalJSON() ([]byte, error) {
	out := map[string]any{"name": s.Name, "type": s.Type}
	if s.ID != "" {
		out["id"] = s.ID
	}
	switch s.Type {
	case TypeSelect, TypeMultiSelect, TypeStatus:
		opts := s.Options
		if opts == nil {
			opts = []Option{}
		}
		out[string(s.Type)] = optionsPayload{Options: opts}
	default:
		out[string(s.Type)] = struct{}{}
	}
	return json.Marshal(out)
}

// Database is a collection of pages sharing a schema.
type Database struct {
	ID         string                    `json:"id"`
	Title      []RichText                `json:"title"`
	Parent     Parent                    `json:"parent"`
	Archived   bool                      `json:"archived"`
	Properties map[string]PropertySchema `json:"properties"`
}

// Name joins the title segments.
func (d *Database) Name() string {
	var sb strings.Builder
	for _, t := range d.Title {
		sb.WriteString(t.String())
	}
	return strings.TrimSpace(sb.String())
}

// Filter selects pages by one property. Exactly one of Equals, Checked or
// IsEmpty is used.
type Filter struct {
	Property string
	Type     PropertyType
	Equals   string
	Checked  *bool
	IsEmpty  bool
}

func TextEquals(property, value string) *Filter {
	return &Filter{Property: property, Type: TypeRichText, Equals: value}
}

func CheckboxEquals(property string, v bool) *Filter {
	return &Filter{Property: property, Type: TypeCheckbox, Checked: &v}
}

func PropertyIsEmpty(property string, typ PropertyType) *Filter {
	return &Filter{Property: property, Type: typ, IsEmpty: true}
}

// Matches evaluates the filter against a page locally.
func (f *Filter) Matches(p *Page) bool {
	if f == nil {
		return true
	}
	prop, ok := p.Properties[f.Property]
	if !ok {
		return f.IsEmpty
	}
	switch {
	case f.IsEmpty:
		return prop.IsEmpty()
	case f.Checked != nil:
		return prop.Type == TypeCheckbox && prop.Checkbox == *f.Checked
	default:
		return prop.Comparable() == f.Equals
	}
}

// Query pages through a database.
type Query struct {
	Filter           *Filter
	Cursor           string
	PageSize         int
	SortByLastEdited bool
}

// QueryResult is one page of query results.
type QueryResult struct {
	Results    []Page
	NextCursor string
	HasMore    bool
}

// Precondition makes an update conditional on the stored value of one
// property (compared with Property.Comparable).
type Precondition struct {
	Property string
	Equals   string
}

// Holds reports whether the page satisfies the precondition.
func (c *Precondition) Holds(p *Page) bool {
	if c == nil {
		return true
	}
	return p.Properties[c.Property].Comparable() == c.Equals
}

// PageUpdate patches properties and/or the archived flag.
type PageUpdate struct {
	Properties   Properties
	Archived     *bool
	Precondition *Precondition
}

func Archive() PageUpdate {
	v := true
	return PageUpdate{Archived: &v}
}

func Unarchive() PageUpdate {
	v := false
	return PageUpdate{Archived: &v}
}

// Store is the document store contract. Implementations map missing pages to
// ErrNotFound, refused writes to ErrRejected and failed preconditions to
// ErrConflict.
type Store interface {
	RetrievePage(ctx context.Context, id string) (*Page, error)
	CreatePage(ctx context.Context, parent Parent, props Properties) (*Page, error)
	UpdatePage(ctx context.Context, id string, upd PageUpdate) (*Page, error)
	QueryDatabase(ctx context.Context, databaseID string, q Query) (*QueryResult, error)
	RetrieveDatabase(ctx context.Context, id string) (*Database, error)
	CreateDatabase(ctx context.Context, parent Parent, title string, schema []PropertySchema) (*Database, error)
	SearchDatabases(ctx context.Context, query string) ([]Database, error)
	SearchPages(ctx context.Context, query string) ([]Page, error)
}
