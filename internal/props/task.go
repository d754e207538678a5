// Package props reads task and rule state out of schema-less property bags.
// Nothing here fails: a bag without the expected property types yields an
// untitled, undated, not-done snapshot.
package props

import (
	"strings"

	"recurio/internal/docstore"
	"recurio/internal/model"
)

// UntitledTask is used when a page has no usable title.
const UntitledTask = "Untitled"

// dueNamePriority orders the name fragments that mark the due date property.
var dueNamePriority = []string{"due", "deadline", "date", "when", "start", "scheduled", "starts"}

var doneWords = []string{"done", "complete", "completed", "finished", "resolved", "closed", "✅", "✔"}

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Snapshot normalizes a task page.
func Snapshot(page *docstore.Page) model.TaskSnapshot {
	return model.TaskSnapshot{
		ID:            page.ID,
		Title:         ExtractTitle(page.Properties),
		DueDate:       ExtractDue(page.Properties),
		Done:          IsDone(page.Properties),
		Archived:      page.Archived,
		CollectionRef: page.DatabaseID(),
		CreatedAt:     page.CreatedTime,
	}
}

// ExtractTitle joins the segments of the title-typed property.
func ExtractTitle(ps docstore.Properties) string {
	for _, k := range ps.Keys() {
		if p := ps[k]; p.Type == docstore.TypeTitle {
			if title := p.PlainText(); title != "" {
				return title
			}
			return UntitledTask
		}
	}
	return UntitledTask
}

// PreferredDateProperty picks the date-typed property whose name contains the
// highest-priority fragment, else the first date property by name. It returns
// the property name, or "" when the bag has no date property.
func PreferredDateProperty(ps docstore.Properties) string {
	var dates []string
	for _, k := range ps.Keys() {
		if ps[k].Type == docstore.TypeDate {
			dates = append(dates, k)
		}
	}
	if len(dates) == 0 {
		return ""
	}
	for _, fragment := range dueNamePriority {
		for _, k := range dates {
			if strings.Contains(norm(k), fragment) {
				return k
			}
		}
	}
	return dates[0]
}

// ExtractDue returns the raw ISO due value (end preferred over start), falling
// back to a formula that evaluates to a date. Empty when none is set.
func ExtractDue(ps docstore.Properties) string {
	if k := PreferredDateProperty(ps); k != "" {
		p := ps[k]
		return p.Date.Latest()
	}
	for _, k := range ps.Keys() {
		p := ps[k]
		if p.Type != docstore.TypeFormula || p.Formula == nil || p.Formula.Type != "date" {
			continue
		}
		if v := p.Formula.Date.Latest(); v != "" {
			return v
		}
	}
	return ""
}

func isDoneWord(name string) bool {
	name = norm(name)
	if name == "" {
		return false
	}
	for _, w := range doneWords {
		if strings.Contains(name, w) {
			return true
		}
	}
	return false
}

// DoneSignal names the check that detected completion.
type DoneSignal string

const (
	SignalNone            DoneSignal = ""
	SignalNamedCheckbox   DoneSignal = "named_checkbox"
	SignalCheckbox        DoneSignal = "checkbox"
	SignalStatus          DoneSignal = "status"
	SignalSelect          DoneSignal = "select"
	SignalFormulaCheckbox DoneSignal = "formula_checkbox"
)

// IsDone reports whether any completion signal is present.
func IsDone(ps docstore.Properties) bool {
	return DetectDone(ps) != SignalNone
}

// DetectDone runs the completion checks in priority order and returns the
// first hit: a checked checkbox named like done/complete, any checked
// checkbox, a status named like done, a select or multi-select value named
// like done, and a formula evaluating to a checked checkbox.
func DetectDone(ps docstore.Properties) DoneSignal {
	keys := ps.Keys()

	for _, k := range keys {
		p := ps[k]
		if p.Type == docstore.TypeCheckbox && p.Checkbox && (strings.Contains(norm(k), "done") || strings.Contains(norm(k), "complete")) {
			return SignalNamedCheckbox
		}
	}
	for _, k := range keys {
		if p := ps[k]; p.Type == docstore.TypeCheckbox && p.Checkbox {
			return SignalCheckbox
		}
	}
	for _, k := range keys {
		if p := ps[k]; p.Type == docstore.TypeStatus && p.Status != nil && isDoneWord(p.Status.Name) {
			return SignalStatus
		}
	}
	for _, k := range keys {
		p := ps[k]
		switch p.Type {
		case docstore.TypeSelect:
			if p.Select != nil && isDoneWord(p.Select.Name) {
				return SignalSelect
			}
		case docstore.TypeMultiSelect:
			for _, o := range p.MultiSelect {
				if isDoneWord(o.Name) {
					return SignalSelect
				}
			}
		}
	}
	for _, k := range keys {
		p := ps[k]
		if p.Type == docstore.TypeFormula && p.Formula != nil && p.Formula.Type == "checkbox" &&
			p.Formula.Checkbox != nil && *p.Formula.Checkbox {
			return SignalFormulaCheckbox
		}
	}
	return SignalNone
}
