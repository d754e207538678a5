package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"recurio/internal/docstore"
	"recurio/internal/model"
	"recurio/internal/props"
)

const (
	DefaultRulesCollectionTitle = "Recurrence Rules (Managed)"
	DefaultManagedPageTitle     = "Recurio (Managed)"
)

var (
	ErrMissingTaskID        = errors.New("task page id is required")
	ErrTaskArchived         = errors.New("task is archived")
	ErrNoRulesCollection    = errors.New("rules collection not found")
	ErrInvalidRuleFrequency = errors.New("invalid rule frequency")
)

// RuleInput describes a rule to attach to a task.
type RuleInput struct {
	TaskPageID string   `json:"taskPageId"`
	Rule       string   `json:"rule"`
	ByDay      []string `json:"byday"`
	Interval   int      `json:"interval"`
	Time       string   `json:"time"`
	Timezone   string   `json:"tz"`
	Custom     string   `json:"custom"`
}

// AttachResult reports the rule row written by Attach.
type AttachResult struct {
	RulePageID string     `json:"rulePageId"`
	Created    bool       `json:"created"`
	Rule       model.Rule `json:"rule"`
}

// ClearResult counts the rows touched by Clear.
type ClearResult struct {
	Total    int `json:"total"`
	Archived int `json:"archived"`
}

// RuleService owns the managed rules collection.
type RuleService struct {
	store           docstore.Store
	collectionTitle string
	managedTitle    string
	log             *slog.Logger
}

func NewRuleService(store docstore.Store) *RuleService {
	return &RuleService{
		store:           store,
		collectionTitle: DefaultRulesCollectionTitle,
		managedTitle:    DefaultManagedPageTitle,
		log:             slog.Default().With("component", "rules"),
	}
}

// FindCollection returns the id of the rules collection, or "" when it has
// not been created yet.
func (s *RuleService) FindCollection(ctx context.Context) (string, error) {
	dbs, err := s.store.SearchDatabases(ctx, s.collectionTitle)
	if err != nil {
		return "", fmt.Errorf("search rules collection: %w", err)
	}
	for i := range dbs {
		if !dbs[i].Archived && strings.EqualFold(dbs[i].Name(), s.collectionTitle) {
			return dbs[i].ID, nil
		}
	}
	return "", nil
}

// EnsureCollection finds or creates the rules collection under the managed
// container page.
func (s *RuleService) EnsureCollection(ctx context.Context) (string, error) {
	id, err := s.FindCollection(ctx)
	if err != nil || id != "" {
		return id, err
	}
	container, err := s.ensureContainer(ctx)
	if err != nil {
		return "", err
	}
	db, err := s.store.CreateDatabase(ctx, docstore.InPage(container), s.collectionTitle, props.RuleSchema())
	if err != nil {
		return "", fmt.Errorf("create rules collection: %w", err)
	}
	s.log.Info("rules collection created", "id", db.ID)
	return db.ID, nil
}

func (s *RuleService) ensureContainer(ctx context.Context) (string, error) {
	pages, err := s.store.SearchPages(ctx, s.managedTitle)
	if err != nil {
		return "", fmt.Errorf("search managed page: %w", err)
	}
	for i := range pages {
		if !strings.EqualFold(props.ExtractTitle(pages[i].Properties), s.managedTitle) {
			continue
		}
		if pages[i].Archived {
			if _, err := s.store.UpdatePage(ctx, pages[i].ID, docstore.Unarchive()); err != nil {
				s.log.Warn("unarchive managed page", "id", pages[i].ID, "error", err)
				continue
			}
		}
		return pages[i].ID, nil
	}

	page, err := s.store.CreatePage(ctx, docstore.InWorkspace(), docstore.Properties{
		"title": docstore.TitleProperty(s.managedTitle),
	})
	if err != nil {
		return "", fmt.Errorf("create managed page: %w", err)
	}
	return page.ID, nil
}

// FindByTask returns the rule row pointing at taskID, or nil.
func (s *RuleService) FindByTask(ctx context.Context, collection, taskID string) (*docstore.Page, error) {
	res, err := s.store.QueryDatabase(ctx, collection, docstore.Query{
		Filter:   docstore.TextEquals(props.RuleTaskRef, taskID),
		PageSize: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("lookup rule for %q: %w", taskID, err)
	}
	if len(res.Results) == 0 {
		return nil, nil
	}
	return &res.Results[0], nil
}

// Attach upserts the rule for a task: an existing row pointing at the task is
// rewritten in place, otherwise a new row is created.
func (s *RuleService) Attach(ctx context.Context, in RuleInput) (*AttachResult, error) {
	taskID := strings.TrimSpace(in.TaskPageID)
	if taskID == "" {
		return nil, ErrMissingTaskID
	}
	freq := model.FrequencyWeekly
	if raw := strings.TrimSpace(in.Rule); raw != "" {
		f, ok := model.ParseFrequency(raw)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRuleFrequency, raw)
		}
		freq = f
	}

	task, err := s.store.RetrievePage(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task %q: %w", taskID, err)
	}
	if task.Archived {
		return nil, ErrTaskArchived
	}

	collection, err := s.EnsureCollection(ctx)
	if err != nil {
		return nil, err
	}
	schema, err := s.store.RetrieveDatabase(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("load rules schema: %w", err)
	}

	days := make([]model.Weekday, 0, len(in.ByDay))
	for _, d := range in.ByDay {
		days = append(days, model.Weekday(strings.ToUpper(strings.TrimSpace(d))))
	}
	rule := model.Rule{
		Title:          props.ExtractTitle(task.Properties),
		Frequency:      freq,
		Interval:       in.Interval,
		ByWeekday:      days,
		TimeOfDay:      in.Time,
		Timezone:       in.Timezone,
		CustomOverride: in.Custom,
		Active:         true,
		TaskRef:        taskID,
	}.Normalize()

	existing, err := s.FindByTask(ctx, collection, taskID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		rule.PageID = existing.ID
		rule.Version = props.DecodeRule(existing).Version
		if existing.Archived {
			if _, err := s.store.UpdatePage(ctx, existing.ID, docstore.Unarchive()); err != nil {
				s.log.Warn("unarchive rule", "id", existing.ID, "error", err)
			}
		}
		upd := docstore.PageUpdate{Properties: fitSchema(props.EncodeRule(rule), schemaTypes(schema))}
		if _, err := s.store.UpdatePage(ctx, existing.ID, upd); err != nil {
			return nil, fmt.Errorf("update rule %q: %w", existing.ID, err)
		}
		return &AttachResult{RulePageID: existing.ID, Rule: rule}, nil
	}

	page, err := s.store.CreatePage(ctx, docstore.InDatabase(collection), fitSchema(props.EncodeRule(rule), schemaTypes(schema)))
	if err != nil {
		return nil, fmt.Errorf("create rule: %w", err)
	}
	rule.PageID = page.ID
	return &AttachResult{RulePageID: page.ID, Created: true, Rule: rule}, nil
}

// Clear archives every row of the rules collection.
func (s *RuleService) Clear(ctx context.Context) (*ClearResult, error) {
	collection, err := s.FindCollection(ctx)
	if err != nil {
		return nil, err
	}
	if collection == "" {
		return nil, ErrNoRulesCollection
	}

	// Archived rows drop out of queries, so collect before archiving to keep
	// the cursor stable.
	var rows []docstore.Page
	err = s.eachRule(ctx, collection, nil, func(page *docstore.Page) error {
		rows = append(rows, *page)
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &ClearResult{Total: len(rows)}
	for i := range rows {
		if rows[i].Archived {
			continue
		}
		if _, err := s.store.UpdatePage(ctx, rows[i].ID, docstore.Archive()); err != nil {
			s.log.Warn("archive rule", "id", rows[i].ID, "error", err)
			continue
		}
		res.Archived++
	}
	return res, nil
}

// RuledTaskIDs returns the task ids referenced by active rules.
func (s *RuleService) RuledTaskIDs(ctx context.Context) (map[string]bool, error) {
	ids := make(map[string]bool)
	collection, err := s.FindCollection(ctx)
	if err != nil || collection == "" {
		return ids, err
	}
	err = s.eachRule(ctx, collection, nil, func(page *docstore.Page) error {
		if rule := props.DecodeRule(page); rule.Active && rule.TaskRef != "" {
			ids[rule.TaskRef] = true
		}
		return nil
	})
	return ids, err
}

// ActiveRules lists the active rule rows. Stores that reject the checkbox
// filter are read unfiltered and filtered here.
func (s *RuleService) ActiveRules(ctx context.Context, collection string) ([]docstore.Page, error) {
	var out []docstore.Page
	collect := func(page *docstore.Page) error {
		if props.DecodeRule(page).Active {
			out = append(out, *page)
		}
		return nil
	}
	err := s.eachRule(ctx, collection, docstore.CheckboxEquals(props.RuleActive, true), collect)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	s.log.Warn("filtered rule query failed, reading unfiltered", "error", err)
	out = nil
	if err := s.eachRule(ctx, collection, nil, collect); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RuleService) eachRule(ctx context.Context, collection string, filter *docstore.Filter, fn func(*docstore.Page) error) error {
	cursor := ""
	for {
		res, err := s.store.QueryDatabase(ctx, collection, docstore.Query{Filter: filter, Cursor: cursor, PageSize: 100})
		if err != nil {
			return fmt.Errorf("query rules: %w", err)
		}
		for i := range res.Results {
			if err := fn(&res.Results[i]); err != nil {
				return err
			}
		}
		if !res.HasMore || res.NextCursor == "" {
			return nil
		}
		cursor = res.NextCursor
	}
}

func schemaTypes(db *docstore.Database) map[string]docstore.PropertyType {
	types := make(map[string]docstore.PropertyType, len(db.Properties))
	for name, col := range db.Properties {
		types[name] = col.Type
	}
	return types
}

func pageTypes(page *docstore.Page) map[string]docstore.PropertyType {
	types := make(map[string]docstore.PropertyType, len(page.Properties))
	for name, p := range page.Properties {
		types[name] = p.Type
	}
	return types
}

// fitSchema drops rule columns the target collection lacks and renames the
// title column to whatever the collection calls it. Collections created
// before the Version column existed keep working this way.
func fitSchema(ps docstore.Properties, types map[string]docstore.PropertyType) docstore.Properties {
	out := make(docstore.Properties, len(ps))
	titleKey := ""
	for name, typ := range types {
		if typ == docstore.TypeTitle {
			titleKey = name
		}
	}
	for name, p := range ps {
		if p.Type == docstore.TypeTitle {
			if titleKey != "" {
				out[titleKey] = p
			}
			continue
		}
		if types[name] == p.Type {
			out[name] = p
		}
	}
	return out
}
