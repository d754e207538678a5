package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskService_ListFiltersDashboard(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()
	day := func(offset int) string { return now.AddDate(0, 0, offset).Format("2006-01-02") }

	f.task(t, "finished", day(1), true)
	f.task(t, "someday", "", false)
	f.task(t, "slightly late", day(-3), false)
	f.task(t, "long forgotten", day(-30), false)
	f.task(t, "soon", day(3), false)
	f.task(t, "far off", day(30), false)
	ruled := f.task(t, "far off but ruled", day(30), false)
	f.attach(t, RuleInput{TaskPageID: ruled.ID})

	svc := NewTaskService(f.store, NewRuleService(f.store))
	svc.now = func() time.Time { return now }

	views, err := svc.List(context.Background(), f.tasks)
	require.NoError(t, err)

	var names []string
	for _, v := range views {
		names = append(names, v.Name)
	}
	assert.Equal(t, []string{"slightly late", "soon", "far off but ruled", "someday"}, names)

	assert.True(t, views[0].Overdue)
	assert.False(t, views[1].Overdue)
	assert.True(t, views[2].HasRule)
	assert.Nil(t, views[3].Due)
	assert.Equal(t, f.tasks, views[0].ParentDB)
}

func TestTaskService_ListKeepsRecentRuledTaskPastOverdueWindow(t *testing.T) {
	f := newFixture(t)
	now := time.Now().UTC()
	longAgo := now.AddDate(0, 0, -30).Format("2006-01-02")

	f.task(t, "forgotten", longAgo, false)
	ruled := f.task(t, "spawned late", longAgo, false)
	f.attach(t, RuleInput{TaskPageID: ruled.ID})

	svc := NewTaskService(f.store, NewRuleService(f.store))
	svc.now = func() time.Time { return now }

	views, err := svc.List(context.Background(), f.tasks)
	require.NoError(t, err)

	require.Len(t, views, 1)
	assert.Equal(t, "spawned late", views[0].Name)
	assert.True(t, views[0].Overdue)
	assert.True(t, views[0].HasRule)
}

func TestTaskService_ListUnknownCollection(t *testing.T) {
	f := newFixture(t)
	svc := NewTaskService(f.store, NewRuleService(f.store))

	_, err := svc.List(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrCollectionNotShared)

	_, err = svc.List(context.Background(), " ")
	assert.Error(t, err)
}

func TestTaskService_Collections(t *testing.T) {
	f := newFixture(t)
	f.attach(t, RuleInput{TaskPageID: f.task(t, "x", "", false).ID})

	got, err := NewTaskService(f.store, NewRuleService(f.store)).Collections(context.Background())
	require.NoError(t, err)

	var titles []string
	for _, c := range got {
		titles = append(titles, c.Title)
	}
	assert.ElementsMatch(t, []string{"Tasks", DefaultRulesCollectionTitle}, titles)
}
