package props

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"recurio/internal/docstore"
	"recurio/internal/model"
)

func TestEncodeDecodeRule(t *testing.T) {
	rule := model.Rule{
		Title:     "Water plants",
		Frequency: model.FrequencyWeekly,
		Interval:  2,
		ByWeekday: []model.Weekday{model.Monday, model.Wednesday},
		TimeOfDay: "09:30",
		Timezone:  "Europe/Berlin",
		Active:    true,
		TaskRef:   "task-1",
		Version:   3,
		Replaces:  "rule-0",
	}

	got := DecodeRule(&docstore.Page{ID: "rule-1", Properties: EncodeRule(rule)})

	rule.PageID = "rule-1"
	assert.Equal(t, rule, got)
}

func TestEncodeRule_CustomOverrideMarksCustom(t *testing.T) {
	ps := EncodeRule(model.Rule{Frequency: model.FrequencyDaily, CustomOverride: "FREQ=YEARLY"})
	assert.Equal(t, "Custom", ps[RuleKind].Select.Name)
}

func TestDecodeRule_Defaults(t *testing.T) {
	page := &docstore.Page{ID: "rule-2", Properties: docstore.Properties{
		RuleTaskRef: docstore.RichTextProperty(" task-9 "),
		RuleByDay:   docstore.MultiSelectProperty("mo", "XX"),
		RuleTime:    docstore.RichTextProperty("7:5"),
	}}

	rule := DecodeRule(page)

	assert.Equal(t, "task-9", rule.TaskRef)
	assert.Equal(t, model.FrequencyWeekly, rule.Frequency)
	assert.Equal(t, 1, rule.Interval)
	assert.Equal(t, []model.Weekday{model.Monday}, rule.ByWeekday)
	assert.Empty(t, rule.TimeOfDay)
	assert.True(t, rule.Active)
}

func TestSchemaProperties(t *testing.T) {
	db := &docstore.Database{Properties: map[string]docstore.PropertySchema{
		"Task":    {Name: "Task", Type: docstore.TypeTitle},
		"When":    {Name: "When", Type: docstore.TypeDate},
		"Created": {Name: "Created", Type: docstore.TypeDate},
	}}
	assert.Equal(t, "Task", SchemaTitleProperty(db))
	assert.Equal(t, "Created", SchemaDateProperty(db))
	assert.Equal(t, "", SchemaDateProperty(nil))
}
