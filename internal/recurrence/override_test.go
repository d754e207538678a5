package recurrence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recurio/internal/model"
)

func TestParseOverride_IgnoresUnknownKeys(t *testing.T) {
	p := ParseOverride("FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE;GARBAGE=XYZ")

	require.NotNil(t, p.Frequency)
	require.NotNil(t, p.Interval)
	assert.Equal(t, model.FrequencyWeekly, *p.Frequency)
	assert.Equal(t, 2, *p.Interval)
	assert.Equal(t, []model.Weekday{model.Monday, model.Wednesday}, p.ByWeekday)
}

func TestParseOverride_SkipsMalformedPairs(t *testing.T) {
	p := ParseOverride("freq=monthly; INTERVAL=zero ;BYDAY=;=5;NOEQUALS;INTERVAL=0")

	require.NotNil(t, p.Frequency)
	assert.Equal(t, model.FrequencyMonthly, *p.Frequency)
	assert.Nil(t, p.Interval)
	assert.Empty(t, p.ByWeekday)
}

func TestParseOverride_Variants(t *testing.T) {
	p := ParseOverride("RRULE:FREQ=YEARLY;BYMONTH=3;BYDAY=+1mo,-1FR,XX,MO")

	require.NotNil(t, p.Frequency)
	assert.Equal(t, model.FrequencyYearly, *p.Frequency)
	assert.Equal(t, []model.Weekday{model.Monday, model.Friday}, p.ByWeekday)

	unknownFreq := ParseOverride("FREQ=HOURLY")
	assert.Nil(t, unknownFreq.Frequency)
	assert.True(t, unknownFreq.Empty())

	assert.True(t, ParseOverride("").Empty())
}

func TestEffective_MergesOverStructuredFields(t *testing.T) {
	rule := model.Rule{
		Frequency:      model.FrequencyCustom,
		Interval:       4,
		ByWeekday:      []model.Weekday{model.Friday},
		CustomOverride: "FREQ=WEEKLY;INTERVAL=2",
	}

	eff := Effective(rule)

	assert.Equal(t, model.FrequencyWeekly, eff.Frequency)
	assert.Equal(t, 2, eff.Interval)
	assert.Equal(t, []model.Weekday{model.Friday}, eff.ByWeekday)
}
