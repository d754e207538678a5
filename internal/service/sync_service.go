package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"recurio/internal/docstore"
	"recurio/internal/model"
	"recurio/internal/props"
	"recurio/internal/recurrence"
)

// Per-rule outcome codes.
const (
	OutcomeMissingTaskID   = "missing_task_id"
	OutcomeTaskNotFound    = "task_not_found"
	OutcomeTaskArchived    = "task_archived"
	OutcomeOtherCollection = "skipped_other_collection"
	OutcomeNotDone         = "not_done"
	OutcomeNoParent        = "no_parent_collection"
	OutcomeSchemaFailed    = "schema_failed"
	OutcomeCreateFailed    = "create_failed"
	OutcomeConflict        = "conflict"
	OutcomeCreated         = "created"
	OutcomeRepointFailed   = "repoint_failed"
	OutcomeRetireFailed    = "retire_failed"
	OutcomeSuperseded      = "superseded"
)

// NoteNoRulesCollection is the report note when nothing has been attached yet.
const NoteNoRulesCollection = "no_rules_db"

// SyncOptions scopes one orchestrator pass.
type SyncOptions struct {
	CollectionFilter string
	Trigger          string
}

// RuleOutcome is the per-rule line of a sync report.
type RuleOutcome struct {
	RuleID            string `json:"ruleId"`
	From              string `json:"from,omitempty"`
	To                string `json:"to,omitempty"`
	Title             string `json:"title,omitempty"`
	Next              string `json:"next,omitempty"`
	MovedRule         bool   `json:"movedRule"`
	ReplacementRuleID string `json:"replacementRuleId,omitempty"`
	Note              string `json:"note"`
}

// Code is the note without its reason suffix.
func (o RuleOutcome) Code() string {
	code, _, _ := strings.Cut(o.Note, ":")
	return code
}

// spawned reports whether the pass created a next task for this rule.
func (o RuleOutcome) spawned() bool {
	switch o.Code() {
	case OutcomeCreated, OutcomeRepointFailed:
		return true
	case OutcomeRetireFailed:
		return o.ReplacementRuleID != ""
	}
	return false
}

// SyncReport summarizes one pass.
type SyncReport struct {
	Processed  int           `json:"processed"`
	Created    int           `json:"created"`
	Details    []RuleOutcome `json:"details"`
	Note       string        `json:"note,omitempty"`
	Truncated  bool          `json:"truncated,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
}

// Failures returns the outcomes that need attention.
func (r *SyncReport) Failures() []RuleOutcome {
	var out []RuleOutcome
	for _, d := range r.Details {
		switch d.Code() {
		case OutcomeTaskNotFound, OutcomeSchemaFailed, OutcomeCreateFailed, OutcomeConflict, OutcomeRepointFailed, OutcomeRetireFailed:
			out = append(out, d)
		}
	}
	return out
}

// SyncRunRecorder persists the audit record of a pass.
type SyncRunRecorder interface {
	Create(ctx context.Context, run *model.SyncRun) error
}

// SyncService spawns the next occurrence of every completed recurring task
// and moves its rule onto the new task.
type SyncService struct {
	store    docstore.Store
	rules    *RuleService
	recorder SyncRunRecorder
	now      func() time.Time
	log      *slog.Logger
}

func NewSyncService(store docstore.Store, rules *RuleService, recorder SyncRunRecorder) *SyncService {
	return &SyncService{
		store:    store,
		rules:    rules,
		recorder: recorder,
		now:      time.Now,
		log:      slog.Default().With("component", "sync"),
	}
}

// Run processes every active rule once. Rules are handled sequentially; a
// cancelled context stops the pass and marks the report truncated.
func (s *SyncService) Run(ctx context.Context, opts SyncOptions) (*SyncReport, error) {
	report := &SyncReport{Details: []RuleOutcome{}, StartedAt: s.now().UTC()}

	collection, err := s.rules.FindCollection(ctx)
	if err != nil {
		return nil, err
	}
	if collection == "" {
		report.Note = NoteNoRulesCollection
		s.finish(ctx, report, opts)
		return report, nil
	}

	rows, err := s.rules.ActiveRules(ctx, collection)
	if err != nil {
		return nil, err
	}

	superseded := supersededRows(rows)
	for i := range rows {
		if ctx.Err() != nil {
			report.Truncated = true
			break
		}
		var out RuleOutcome
		if by, ok := superseded[rows[i].ID]; ok {
			out = s.retireSuperseded(ctx, &rows[i], by)
		} else {
			out = s.processRule(ctx, &rows[i], opts)
		}
		report.Processed++
		if out.spawned() {
			report.Created++
		}
		report.Details = append(report.Details, out)
		s.log.Info("rule processed", "rule", out.RuleID, "task", out.From, "next_task", out.To, "outcome", out.Note)
	}

	s.finish(ctx, report, opts)
	return report, nil
}

func (s *SyncService) finish(ctx context.Context, report *SyncReport, opts SyncOptions) {
	report.FinishedAt = s.now().UTC()
	if s.recorder == nil {
		return
	}
	details, err := json.Marshal(report.Details)
	if err != nil {
		s.log.Error("encode sync details", "error", err)
		return
	}
	run := &model.SyncRun{
		Trigger:          opts.Trigger,
		CollectionFilter: opts.CollectionFilter,
		Processed:        report.Processed,
		Created:          report.Created,
		Truncated:        report.Truncated,
		Note:             report.Note,
		Details:          string(details),
		StartedAt:        report.StartedAt,
		FinishedAt:       report.FinishedAt,
	}
	// The pass may have been cut short by ctx; the audit row is still written.
	if err := s.recorder.Create(context.WithoutCancel(ctx), run); err != nil {
		s.log.Error("record sync run", "error", err)
	}
}

func withReason(code string, err error) string {
	return code + ":" + err.Error()
}

func (s *SyncService) processRule(ctx context.Context, page *docstore.Page, opts SyncOptions) RuleOutcome {
	rule := props.DecodeRule(page)
	out := RuleOutcome{RuleID: rule.PageID, From: rule.TaskRef}

	if rule.TaskRef == "" {
		out.Note = OutcomeMissingTaskID
		return out
	}
	task, err := s.store.RetrievePage(ctx, rule.TaskRef)
	if err != nil {
		s.log.Warn("load task", "rule", rule.PageID, "task", rule.TaskRef, "error", err)
		out.Note = OutcomeTaskNotFound
		return out
	}
	snap := props.Snapshot(task)
	out.Title = snap.Title
	switch {
	case snap.Archived:
		out.Note = OutcomeTaskArchived
		return out
	case opts.CollectionFilter != "" && snap.CollectionRef != "" && snap.CollectionRef != opts.CollectionFilter:
		out.Note = OutcomeOtherCollection
		return out
	case !snap.Done:
		out.Note = OutcomeNotDone
		return out
	}

	var anchor recurrence.Date
	if snap.DueDate != "" {
		if anchor, err = recurrence.ParseDate(snap.DueDate); err != nil {
			s.log.Warn("unparseable due date, anchoring at now", "task", snap.ID, "due", snap.DueDate)
			anchor = recurrence.Date{}
		}
	}
	next := recurrence.ComputeNext(anchor, rule, s.now())
	out.Next = next.String()

	if snap.CollectionRef == "" {
		out.Note = OutcomeNoParent
		return out
	}
	schema, err := s.store.RetrieveDatabase(ctx, snap.CollectionRef)
	if err != nil {
		s.log.Warn("load task schema", "collection", snap.CollectionRef, "error", err)
		out.Note = OutcomeSchemaFailed
		return out
	}
	titleKey := props.SchemaTitleProperty(schema)
	if titleKey == "" {
		out.Note = OutcomeSchemaFailed
		return out
	}
	dateKey := props.PreferredDateProperty(task.Properties)
	if col, ok := schema.Properties[dateKey]; !ok || col.Type != docstore.TypeDate {
		dateKey = props.SchemaDateProperty(schema)
	}
	fields := docstore.Properties{titleKey: docstore.TitleProperty(snap.Title)}
	if dateKey != "" {
		fields[dateKey] = docstore.DateProperty(next.String())
	}

	// Another pass may already have moved this rule.
	if current, err := s.store.RetrievePage(ctx, rule.PageID); err == nil {
		if ref := props.DecodeRule(current).TaskRef; ref != rule.TaskRef {
			out.To = ref
			out.Note = OutcomeConflict
			return out
		}
	}

	created, err := s.store.CreatePage(ctx, docstore.InDatabase(snap.CollectionRef), fields)
	if err != nil {
		out.Note = withReason(OutcomeCreateFailed, err)
		return out
	}
	out.To = created.ID

	err = s.repoint(ctx, page, rule, created.ID)
	switch {
	case err == nil:
		out.MovedRule = true
		out.Note = OutcomeCreated
	case errors.Is(err, docstore.ErrConflict):
		// Lost the race: undo our task so the winner's stays the only one.
		if _, aerr := s.store.UpdatePage(ctx, created.ID, docstore.Archive()); aerr != nil {
			s.log.Error("archive duplicate task", "task", created.ID, "error", aerr)
		}
		out.Note = OutcomeConflict
	default:
		s.log.Warn("repoint rule failed, writing replacement", "rule", rule.PageID, "error", err)
		replacement, ferr := s.replace(ctx, page, rule, created.ID)
		if ferr != nil {
			s.log.Error("rule orphaned", "rule", rule.PageID, "task", created.ID, "error", ferr)
			out.Note = withReason(OutcomeRepointFailed, ferr)
			return out
		}
		out.MovedRule = true
		out.ReplacementRuleID = replacement
		out.Note = OutcomeCreated
		if rerr := s.retire(ctx, rule.PageID); rerr != nil {
			s.log.Error("retire old rule", "rule", rule.PageID, "replacement", replacement, "error", rerr)
			out.Note = withReason(OutcomeRetireFailed, rerr)
		}
	}
	return out
}

// repoint moves the rule to taskID only if it still points at the task this
// pass started from.
func (s *SyncService) repoint(ctx context.Context, page *docstore.Page, rule model.Rule, taskID string) error {
	fields := fitSchema(props.PointerUpdate(taskID, rule.Version+1), pageTypes(page))
	_, err := s.store.UpdatePage(ctx, rule.PageID, docstore.PageUpdate{
		Properties:   fields,
		Precondition: &docstore.Precondition{Property: props.RuleTaskRef, Equals: rule.TaskRef},
	})
	return err
}

// replace writes a fresh rule row pointing at taskID that records the row it
// supersedes. The old row is left for the caller to retire.
func (s *SyncService) replace(ctx context.Context, page *docstore.Page, rule model.Rule, taskID string) (string, error) {
	fresh := rule
	fresh.PageID = ""
	fresh.TaskRef = taskID
	fresh.Active = true
	fresh.Version = 0
	fresh.Replaces = rule.PageID
	created, err := s.store.CreatePage(ctx, page.Parent, fitSchema(props.EncodeRule(fresh), pageTypes(page)))
	if err != nil {
		return "", fmt.Errorf("create replacement rule: %w", err)
	}
	return created.ID, nil
}

// retire deactivates a rule row or, failing that, archives it.
func (s *SyncService) retire(ctx context.Context, ruleID string) error {
	deactivate := docstore.PageUpdate{Properties: docstore.Properties{props.RuleActive: docstore.CheckboxProperty(false)}}
	_, err := s.store.UpdatePage(ctx, ruleID, deactivate)
	if err == nil {
		return nil
	}
	if _, aerr := s.store.UpdatePage(ctx, ruleID, docstore.Archive()); aerr != nil {
		return errors.Join(err, aerr)
	}
	return nil
}

// supersededRows maps each row named by an active replacement's Replaces
// column to that replacement.
func supersededRows(rows []docstore.Page) map[string]string {
	out := make(map[string]string)
	for i := range rows {
		rule := props.DecodeRule(&rows[i])
		if rule.Active && rule.Replaces != "" && rule.Replaces != rule.PageID {
			out[rule.Replaces] = rule.PageID
		}
	}
	return out
}

// retireSuperseded handles a row an earlier pass already replaced: it never
// spawns again, and retiring it is retried.
func (s *SyncService) retireSuperseded(ctx context.Context, page *docstore.Page, by string) RuleOutcome {
	rule := props.DecodeRule(page)
	out := RuleOutcome{RuleID: rule.PageID, From: rule.TaskRef, Title: rule.Title, Note: OutcomeSuperseded}
	if err := s.retire(ctx, rule.PageID); err != nil {
		s.log.Error("retire superseded rule", "rule", rule.PageID, "replacement", by, "error", err)
		out.Note = withReason(OutcomeRetireFailed, err)
	}
	return out
}
