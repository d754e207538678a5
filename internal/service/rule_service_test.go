package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recurio/internal/docstore"
	"recurio/internal/model"
	"recurio/internal/props"
)

func TestRuleService_EnsureCollectionIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewRuleService(f.store)

	id, err := svc.FindCollection(ctx)
	require.NoError(t, err)
	assert.Empty(t, id)

	first, err := svc.EnsureCollection(ctx)
	require.NoError(t, err)
	second, err := svc.EnsureCollection(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	db, err := f.store.RetrieveDatabase(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, DefaultRulesCollectionTitle, db.Name())
	assert.Equal(t, docstore.ParentPage, db.Parent.Type)
	assert.Len(t, db.Properties, len(props.RuleSchema()))

	container, err := f.store.RetrievePage(ctx, db.Parent.PageID)
	require.NoError(t, err)
	assert.Equal(t, DefaultManagedPageTitle, props.ExtractTitle(container.Properties))
}

func TestRuleService_AttachUpserts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewRuleService(f.store)
	task := f.task(t, "Gym", "2024-06-10", false)

	created, err := svc.Attach(ctx, RuleInput{TaskPageID: task.ID, Rule: "weekly", ByDay: []string{"mo", "FR", "xx"}, Interval: 2, Time: "7:30"})
	require.NoError(t, err)
	assert.True(t, created.Created)

	rule := props.DecodeRule(f.rule(t, created.RulePageID))
	assert.Equal(t, "Gym", rule.Title)
	assert.Equal(t, model.FrequencyWeekly, rule.Frequency)
	assert.Equal(t, []model.Weekday{model.Monday, model.Friday}, rule.ByWeekday)
	assert.Equal(t, 2, rule.Interval)
	assert.Equal(t, "7:30", rule.TimeOfDay)
	assert.True(t, rule.Active)

	updated, err := svc.Attach(ctx, RuleInput{TaskPageID: task.ID, Custom: "FREQ=DAILY;INTERVAL=3"})
	require.NoError(t, err)
	assert.False(t, updated.Created)
	assert.Equal(t, created.RulePageID, updated.RulePageID)

	rule = props.DecodeRule(f.rule(t, created.RulePageID))
	assert.Equal(t, model.FrequencyCustom, rule.Frequency)
	assert.Equal(t, "FREQ=DAILY;INTERVAL=3", rule.CustomOverride)
	assert.Len(t, f.allRules(t), 1)
}

func TestRuleService_AttachRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewRuleService(f.store)

	_, err := svc.Attach(ctx, RuleInput{TaskPageID: "  "})
	assert.ErrorIs(t, err, ErrMissingTaskID)

	task := f.task(t, "Old", "", false)
	_, err = svc.Attach(ctx, RuleInput{TaskPageID: task.ID, Rule: "fortnightly"})
	assert.ErrorIs(t, err, ErrInvalidRuleFrequency)

	_, err = f.store.UpdatePage(ctx, task.ID, docstore.Archive())
	require.NoError(t, err)
	_, err = svc.Attach(ctx, RuleInput{TaskPageID: task.ID})
	assert.ErrorIs(t, err, ErrTaskArchived)

	_, err = svc.Attach(ctx, RuleInput{TaskPageID: "missing"})
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestRuleService_Clear(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewRuleService(f.store)

	_, err := svc.Clear(ctx)
	assert.ErrorIs(t, err, ErrNoRulesCollection)

	for _, title := range []string{"a", "b", "c"} {
		f.attach(t, RuleInput{TaskPageID: f.task(t, title, "", false).ID})
	}

	res, err := svc.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, &ClearResult{Total: 3, Archived: 3}, res)
	assert.Empty(t, f.allRules(t))

	ids, err := svc.RuledTaskIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRuleService_RuledTaskIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewRuleService(f.store)

	ids, err := svc.RuledTaskIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	ruled := f.task(t, "ruled", "", false)
	paused := f.task(t, "paused", "", false)
	f.attach(t, RuleInput{TaskPageID: ruled.ID})
	pausedRule := f.attach(t, RuleInput{TaskPageID: paused.ID})
	_, err = f.store.UpdatePage(ctx, pausedRule, docstore.PageUpdate{
		Properties: docstore.Properties{props.RuleActive: docstore.CheckboxProperty(false)},
	})
	require.NoError(t, err)

	ids, err = svc.RuledTaskIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{ruled.ID: true}, ids)
}

func TestFitSchema(t *testing.T) {
	ps := props.EncodeRule(model.Rule{Title: "x", TaskRef: "t1", Version: 4})
	types := map[string]docstore.PropertyType{
		"Rule title":      docstore.TypeTitle,
		props.RuleTaskRef: docstore.TypeRichText,
		props.RuleActive:  docstore.TypeCheckbox,
		props.RuleKind:    docstore.TypeRichText,
	}

	got := fitSchema(ps, types)

	assert.ElementsMatch(t, []string{"Rule title", props.RuleTaskRef, props.RuleActive}, got.Keys())
	assert.Equal(t, "x", got["Rule title"].PlainText())
}
