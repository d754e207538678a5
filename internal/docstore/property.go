package docstore

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// PropertyType discriminates the Property union.
type PropertyType string

const (
	TypeTitle       PropertyType = "title"
	TypeRichText    PropertyType = "rich_text"
	TypeDate        PropertyType = "date"
	TypeCheckbox    PropertyType = "checkbox"
	TypeSelect      PropertyType = "select"
	TypeMultiSelect PropertyType = "multi_select"
	TypeStatus      PropertyType = "status"
	TypeFormula     PropertyType = "formula"
	TypeNumber      PropertyType = "number"
)

// TextContent is the writable part of a rich text segment.
type TextContent struct {
	Content string `json:"content"`
}

// RichText is one rich text segment.
type RichText struct {
	Type      string       `json:"type,omitempty"`
	Text      *TextContent `json:"text,omitempty"`
	PlainText string       `json:"plain_text,omitempty"`
}

// String prefers the rendered plain text and falls back to the raw content.
func (t RichText) String() string {
	if t.PlainText != "" {
		return t.PlainText
	}
	if t.Text != nil {
		return t.Text.Content
	}
	return ""
}

// Option is a select, multi-select or status value.
type Option struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// DateValue is a date property value. Start and End keep their ISO form.
type DateValue struct {
	Start    string  `json:"start"`
	End      *string `json:"end,omitempty"`
	TimeZone *string `json:"time_zone,omitempty"`
}

// Latest returns End when set, else Start.
func (d *DateValue) Latest() string {
	if d == nil {
		return ""
	}
	if d.End != nil && strings.TrimSpace(*d.End) != "" {
		return strings.TrimSpace(*d.End)
	}
	return strings.TrimSpace(d.Start)
}

// Formula is the evaluated result of a formula property.
type Formula struct {
	Type     string     `json:"type"`
	Date     *DateValue `json:"date,omitempty"`
	Checkbox *bool      `json:"checkbox,omitempty"`
	String   *string    `json:"string,omitempty"`
	Number   *float64   `json:"number,omitempty"`
}

// Property is a typed property value. Only the field matching Type is
// meaningful.
type Property struct {
	ID          string       `json:"id,omitempty"`
	Type        PropertyType `json:"type"`
	Title       []RichText   `json:"title,omitempty"`
	RichText    []RichText   `json:"rich_text,omitempty"`
	Date        *DateValue   `json:"date,omitempty"`
	Checkbox    bool         `json:"checkbox,omitempty"`
	Select      *Option      `json:"select,omitempty"`
	MultiSelect []Option     `json:"multi_select,omitempty"`
	Status      *Option      `json:"status,omitempty"`
	Formula     *Formula     `json:"formula,omitempty"`
	Number      *float64     `json:"number,omitempty"`
}

// MarshalJSON writes the id, the type and the single value key for that type,
// so that false checkboxes and cleared values survive a round trip.
func (p Property) MarshalJSON() ([]byte, error) {
	out := map[string]any{"type": p.Type}
	if p.ID != "" {
		out["id"] = p.ID
	}
	out[string(p.Type)] = p.Value()
	return json.Marshal(out)
}

// Value returns the payload stored under the property's type key.
func (p Property) Value() any {
	switch p.Type {
	case TypeTitle:
		return nonNilText(p.Title)
	case TypeRichText:
		return nonNilText(p.RichText)
	case TypeDate:
		return p.Date
	case TypeCheckbox:
		return p.Checkbox
	case TypeSelect:
		return p.Select
	case TypeMultiSelect:
		if p.MultiSelect == nil {
			return []Option{}
		}
		return p.MultiSelect
	case TypeStatus:
		return p.Status
	case TypeFormula:
		return p.Formula
	case TypeNumber:
		return p.Number
	}
	return nil
}

func nonNilText(in []RichText) []RichText {
	if in == nil {
		return []RichText{}
	}
	return in
}

// PlainText joins the text segments of a title or rich text property.
func (p Property) PlainText() string {
	var segs []RichText
	switch p.Type {
	case TypeTitle:
		segs = p.Title
	case TypeRichText:
		segs = p.RichText
	default:
		return ""
	}
	var sb strings.Builder
	for _, s := range segs {
		sb.WriteString(s.String())
	}
	return strings.TrimSpace(sb.String())
}

// Comparable renders the value as a string for equality filters and
// preconditions.
func (p Property) Comparable() string {
	switch p.Type {
	case TypeTitle, TypeRichText:
		return p.PlainText()
	case TypeCheckbox:
		return strconv.FormatBool(p.Checkbox)
	case TypeSelect:
		if p.Select != nil {
			return p.Select.Name
		}
	case TypeStatus:
		if p.Status != nil {
			return p.Status.Name
		}
	case TypeNumber:
		if p.Number != nil {
			return strconv.FormatFloat(*p.Number, 'f', -1, 64)
		}
	case TypeDate:
		if p.Date != nil {
			return p.Date.Start
		}
	}
	return ""
}

// IsEmpty reports whether the property holds no value.
func (p Property) IsEmpty() bool {
	switch p.Type {
	case TypeCheckbox:
		return false
	case TypeMultiSelect:
		return len(p.MultiSelect) == 0
	case TypeDate:
		return p.Date == nil || strings.TrimSpace(p.Date.Start) == ""
	}
	return p.Comparable() == ""
}

// Properties is the property bag of a page keyed by property name.
type Properties map[string]Property

// Keys returns the property names in sorted order.
func (ps Properties) Keys() []string {
	keys := make([]string, 0, len(ps))
	for k := range ps {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep enough copy for building update payloads.
func (ps Properties) Clone() Properties {
	out := make(Properties, len(ps))
	for k, v := range ps {
		out[k] = v
	}
	return out
}

func Text(s string) []RichText {
	if s == "" {
		return []RichText{}
	}
	return []RichText{{Type: "text", Text: &TextContent{Content: s}, PlainText: s}}
}

func TitleProperty(s string) Property {
	return Property{Type: TypeTitle, Title: Text(s)}
}

func RichTextProperty(s string) Property {
	return Property{Type: TypeRichText, RichText: Text(s)}
}

func DateProperty(start string) Property {
	return Property{Type: TypeDate, Date: &DateValue{Start: start}}
}

func CheckboxProperty(v bool) Property {
	return Property{Type: TypeCheckbox, Checkbox: v}
}

func SelectProperty(name string) Property {
	if name == "" {
		return Property{Type: TypeSelect}
	}
	return Property{Type: TypeSelect, Select: &Option{Name: name}}
}

func MultiSelectProperty(names ...string) Property {
	opts := make([]Option, 0, len(names))
	for _, n := range names {
		opts = append(opts, Option{Name: n})
	}
	return Property{Type: TypeMultiSelect, MultiSelect: opts}
}

func StatusProperty(name string) Property {
	return Property{Type: TypeStatus, Status: &Option{Name: name}}
}

func NumberProperty(n float64) Property {
	return Property{Type: TypeNumber, Number: &n}
}
