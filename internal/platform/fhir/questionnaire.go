package fhir

import "strings"

// Extension URLs read from Questionnaire definitions.
const (
	ExtOrdinalValue         = "http://hl7.org/fhir/StructureDefinition/ordinalValue"
	ExtItemWeight           = "http://hl7.org/fhir/StructureDefinition/itemWeight"
	ExtCalculatedExpression = "http://hl7.org/fhir/uv/sdc/StructureDefinition/sdc-questionnaire-calculatedExpression"
)

// Questionnaire is the static definition of an instrument. It is never
// mutated after decoding.
type Questionnaire struct {
	ResourceType string              `json:"resourceType"`
	ID           string              `json:"id,omitempty"`
	URL          string              `json:"url,omitempty"`
	Name         string              `json:"name,omitempty"`
	Title        string              `json:"title,omitempty"`
	Status       string              `json:"status,omitempty"`
	Meta         *Meta               `json:"meta,omitempty"`
	Item         []QuestionnaireItem `json:"item,omitempty"`
}

// QuestionnaireItem is one node in the definition's item tree.
type QuestionnaireItem struct {
	LinkID       string              `json:"linkId"`
	Type         string              `json:"type,omitempty"`
	Text         string              `json:"text,omitempty"`
	Required     bool                `json:"required,omitempty"`
	Repeats      bool                `json:"repeats,omitempty"`
	ReadOnly     bool                `json:"readOnly,omitempty"`
	AnswerOption []AnswerOption      `json:"answerOption,omitempty"`
	Extension    []Extension         `json:"extension,omitempty"`
	Item         []QuestionnaireItem `json:"item,omitempty"`
}

// AnswerOption is a permitted answer. The ordinal weight may sit on the
// option itself or on its valueCoding.
type AnswerOption struct {
	ValueCoding  *Coding     `json:"valueCoding,omitempty"`
	ValueString  *string     `json:"valueString,omitempty"`
	ValueInteger *int        `json:"valueInteger,omitempty"`
	Extension    []Extension `json:"extension,omitempty"`
}

// IsCalculated reports whether the item carries a calculated-expression
// marker extension.
func (qi *QuestionnaireItem) IsCalculated() bool {
	for _, ext := range qi.Extension {
		if strings.Contains(ext.URL, "calculatedExpression") || strings.Contains(ext.URL, "cqf-calculatedValue") {
			return true
		}
	}
	return false
}

// OrdinalValue returns the ordinal weight attached to the option, looking at
// the option's own extensions first and then the coding's.
func (ao *AnswerOption) OrdinalValue() (float64, bool) {
	if v, ok := ordinalFrom(ao.Extension); ok {
		return v, true
	}
	if ao.ValueCoding != nil {
		return ordinalFrom(ao.ValueCoding.Extension)
	}
	return 0, false
}

func ordinalFrom(exts []Extension) (float64, bool) {
	for _, ext := range exts {
		if ext.URL == ExtOrdinalValue || ext.URL == ExtItemWeight ||
			strings.HasSuffix(ext.URL, "ordinalValue") || strings.HasSuffix(ext.URL, "itemWeight") {
			if v, ok := ext.Number(); ok {
				return v, true
			}
		}
	}
	return 0, false
}

// Walk visits every item in the definition depth-first in document order.
func (q *Questionnaire) Walk(fn func(item *QuestionnaireItem)) {
	if q == nil {
		return
	}
	walkItems(q.Item, fn)
}

func walkItems(items []QuestionnaireItem, fn func(item *QuestionnaireItem)) {
	for i := range items {
		fn(&items[i])
		walkItems(items[i].Item, fn)
	}
}

// DisplayTitle returns title, falling back to name and then id.
func (q *Questionnaire) DisplayTitle() string {
	if q == nil {
		return ""
	}
	switch {
	case q.Title != "":
		return q.Title
	case q.Name != "":
		return q.Name
	}
	return q.ID
}
