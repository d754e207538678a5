package props

import (
	"math"
	"strings"

	"recurio/internal/docstore"
	"recurio/internal/model"
)

// Column names of the managed rules collection.
const (
	RuleName     = "Name"
	RuleTaskRef  = "Task Page ID"
	RuleKind     = "Rule"
	RuleByDay    = "By Day"
	RuleInterval = "Interval"
	RuleTime     = "Time"
	RuleTimezone = "Timezone"
	RuleCustom   = "Custom RRULE"
	RuleActive   = "Active"
	RuleVersion  = "Version"
	RuleReplaces = "Replaces Rule ID"
)

// RuleSchema is the column set of the managed rules collection.
func RuleSchema() []docstore.PropertySchema {
	freqs := []string{"Daily", "Weekly", "Monthly", "Yearly", "Custom"}
	freqOpts := make([]docstore.Option, 0, len(freqs))
	for _, f := range freqs {
		freqOpts = append(freqOpts, docstore.Option{Name: f})
	}
	dayOpts := make([]docstore.Option, 0, len(model.Weekdays))
	for _, d := range model.Weekdays {
		dayOpts = append(dayOpts, docstore.Option{Name: string(d)})
	}
	return []docstore.PropertySchema{
		{Name: RuleName, Type: docstore.TypeTitle},
		{Name: RuleTaskRef, Type: docstore.TypeRichText},
		{Name: RuleKind, Type: docstore.TypeSelect, Options: freqOpts},
		{Name: RuleByDay, Type: docstore.TypeMultiSelect, Options: dayOpts},
		{Name: RuleInterval, Type: docstore.TypeNumber},
		{Name: RuleTime, Type: docstore.TypeRichText},
		{Name: RuleTimezone, Type: docstore.TypeRichText},
		{Name: RuleCustom, Type: docstore.TypeRichText},
		{Name: RuleActive, Type: docstore.TypeCheckbox},
		{Name: RuleVersion, Type: docstore.TypeNumber},
		{Name: RuleReplaces, Type: docstore.TypeRichText},
	}
}

func text(ps docstore.Properties, key string) string {
	return ps[key].PlainText()
}

// DecodeRule reads a rule row. A missing frequency defaults to Weekly and a
// missing Active column counts as active, matching rows created before those
// columns existed.
func DecodeRule(page *docstore.Page) model.Rule {
	ps := page.Properties
	rule := model.Rule{
		PageID:         page.ID,
		Title:          ExtractTitle(ps),
		TaskRef:        text(ps, RuleTaskRef),
		TimeOfDay:      text(ps, RuleTime),
		Timezone:       text(ps, RuleTimezone),
		CustomOverride: text(ps, RuleCustom),
		Replaces:       text(ps, RuleReplaces),
		Active:         true,
		Interval:       1,
	}
	if p, ok := ps[RuleKind]; ok && p.Select != nil {
		if f, ok := model.ParseFrequency(p.Select.Name); ok {
			rule.Frequency = f
		}
	}
	if p, ok := ps[RuleByDay]; ok {
		for _, o := range p.MultiSelect {
			rule.ByWeekday = append(rule.ByWeekday, model.Weekday(strings.ToUpper(o.Name)))
		}
	}
	if p, ok := ps[RuleInterval]; ok && p.Number != nil && !math.IsNaN(*p.Number) {
		rule.Interval = int(*p.Number)
	}
	if p, ok := ps[RuleActive]; ok && p.Type == docstore.TypeCheckbox {
		rule.Active = p.Checkbox
	}
	if p, ok := ps[RuleVersion]; ok && p.Number != nil {
		rule.Version = int(*p.Number)
	}
	return rule.Normalize()
}

// EncodeRule renders every rule field as row properties. A non-empty custom
// override is stored with the Custom frequency.
func EncodeRule(rule model.Rule) docstore.Properties {
	rule = rule.Normalize()
	freq := rule.Frequency
	if rule.CustomOverride != "" {
		freq = model.FrequencyCustom
	}
	days := make([]string, 0, len(rule.ByWeekday))
	for _, d := range rule.ByWeekday {
		days = append(days, string(d))
	}
	title := rule.Title
	if title == "" {
		title = UntitledTask
	}
	return docstore.Properties{
		RuleName:     docstore.TitleProperty(title),
		RuleTaskRef:  docstore.RichTextProperty(rule.TaskRef),
		RuleKind:     docstore.SelectProperty(string(freq)),
		RuleByDay:    docstore.MultiSelectProperty(days...),
		RuleInterval: docstore.NumberProperty(float64(rule.Interval)),
		RuleTime:     docstore.RichTextProperty(rule.TimeOfDay),
		RuleTimezone: docstore.RichTextProperty(rule.Timezone),
		RuleCustom:   docstore.RichTextProperty(rule.CustomOverride),
		RuleActive:   docstore.CheckboxProperty(rule.Active),
		RuleVersion:  docstore.NumberProperty(float64(rule.Version)),
		RuleReplaces: docstore.RichTextProperty(rule.Replaces),
	}
}

// PointerUpdate is the property patch that moves a rule to a new task.
func PointerUpdate(taskRef string, version int) docstore.Properties {
	return docstore.Properties{
		RuleTaskRef: docstore.RichTextProperty(taskRef),
		RuleVersion: docstore.NumberProperty(float64(version)),
	}
}

// SchemaTitleProperty returns the name of the title column, or "" if none.
func SchemaTitleProperty(db *docstore.Database) string {
	return firstOfType(db, docstore.TypeTitle)
}

// SchemaDateProperty returns the name of the first date column, or "".
func SchemaDateProperty(db *docstore.Database) string {
	return firstOfType(db, docstore.TypeDate)
}

func firstOfType(db *docstore.Database, typ docstore.PropertyType) string {
	if db == nil {
		return ""
	}
	var hit string
	for name, s := range db.Properties {
		if s.Type == typ && (hit == "" || name < hit) {
			hit = name
		}
	}
	return hit
}
