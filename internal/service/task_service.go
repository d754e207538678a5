package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"recurio/internal/docstore"
	"recurio/internal/props"
	"recurio/internal/recurrence"
)

// ErrCollectionNotShared means the task collection is missing or the
// integration has no access to it.
var ErrCollectionNotShared = errors.New("collection not shared with integration")

const (
	overdueWindowDays  = 14
	upcomingWindowDays = 7
	ruledCreatedDays   = 14
	taskListPageSize   = 100
)

// TaskView is a task as shown on the dashboard.
type TaskView struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Due      *string   `json:"due"`
	Done     bool      `json:"done"`
	ParentDB string    `json:"parentDb,omitempty"`
	HasRule  bool      `json:"hasRule"`
	Overdue  bool      `json:"overdue"`
	Created  time.Time `json:"created"`
}

// CollectionView is one entry of the collection picker.
type CollectionView struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// TaskService wraps the read side of the dashboard.
type TaskService struct {
	store docstore.Store
	rules *RuleService
	now   func() time.Time
}

func NewTaskService(store docstore.Store, rules *RuleService) *TaskService {
	return &TaskService{store: store, rules: rules, now: time.Now}
}

// List returns the tasks of a collection worth showing: open tasks that are
// undated, due within a week, overdue by at most two weeks, or recently
// created under a rule.
func (s *TaskService) List(ctx context.Context, collection string) ([]TaskView, error) {
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return nil, fmt.Errorf("collection id is required")
	}
	if _, err := s.store.RetrieveDatabase(ctx, collection); err != nil {
		if errors.Is(err, docstore.ErrNotFound) || errors.Is(err, docstore.ErrUnauthorized) {
			return nil, fmt.Errorf("%w: %s", ErrCollectionNotShared, collection)
		}
		return nil, fmt.Errorf("load collection: %w", err)
	}

	res, err := s.store.QueryDatabase(ctx, collection, docstore.Query{SortByLastEdited: true, PageSize: taskListPageSize})
	if err != nil {
		// Some collections reject the sort; the unsorted read still works.
		res, err = s.store.QueryDatabase(ctx, collection, docstore.Query{PageSize: taskListPageSize})
		if err != nil {
			return nil, fmt.Errorf("query tasks: %w", err)
		}
	}

	ruled, err := s.rules.RuledTaskIDs(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]TaskView, 0, len(res.Results))
	for i := range res.Results {
		snap := props.Snapshot(&res.Results[i])
		v := TaskView{
			ID:       snap.ID,
			Name:     snap.Title,
			Done:     snap.Done,
			ParentDB: snap.CollectionRef,
			HasRule:  ruled[snap.ID],
			Created:  snap.CreatedAt,
		}
		if snap.DueDate != "" {
			due := snap.DueDate
			v.Due = &due
		}
		if !s.visible(&v, now) {
			continue
		}
		views = append(views, v)
	}
	sort.SliceStable(views, func(i, j int) bool {
		switch {
		case views[i].Due == nil && views[j].Due == nil:
			return views[i].Created.After(views[j].Created)
		case views[i].Due == nil:
			return false
		case views[j].Due == nil:
			return true
		default:
			return *views[i].Due < *views[j].Due
		}
	})
	return views, nil
}

func (s *TaskService) visible(v *TaskView, now time.Time) bool {
	if v.Done {
		return false
	}
	if v.Due == nil {
		return true
	}
	due, err := recurrence.ParseDate(*v.Due)
	if err != nil {
		return true
	}
	dueAt := due.Time
	if due.DateOnly {
		// A date-only task is due for the whole day.
		dueAt = dueAt.Add(24*time.Hour - time.Nanosecond)
	}
	if dueAt.Before(now) {
		v.Overdue = true
		if now.Sub(dueAt) <= overdueWindowDays*24*time.Hour {
			return true
		}
	} else if dueAt.Sub(now) <= upcomingWindowDays*24*time.Hour {
		return true
	}
	return v.HasRule && now.Sub(v.Created) <= ruledCreatedDays*24*time.Hour
}

// Collections lists the collections shared with the integration.
func (s *TaskService) Collections(ctx context.Context) ([]CollectionView, error) {
	dbs, err := s.store.SearchDatabases(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("search collections: %w", err)
	}
	out := make([]CollectionView, 0, len(dbs))
	for i := range dbs {
		if dbs[i].Archived {
			continue
		}
		title := strings.TrimSpace(dbs[i].Name())
		if title == "" {
			title = props.UntitledTask
		}
		out = append(out, CollectionView{ID: dbs[i].ID, Title: title})
	}
	return out, nil
}
