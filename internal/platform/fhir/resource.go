package fhir

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Resource is the envelope every decoded resource is sniffed into before
// being routed to its typed representation.
type Resource struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id"`
	Meta         *Meta  `json:"meta,omitempty"`
}

// Meta keeps lastUpdated as the literal string so that malformed timestamps
// survive decoding and degrade at comparison time instead.
type Meta struct {
	VersionID   string   `json:"versionId,omitempty"`
	LastUpdated string   `json:"lastUpdated,omitempty"`
	Source      string   `json:"source,omitempty"`
	Profile     []string `json:"profile,omitempty"`
	Tag         []Coding `json:"tag,omitempty"`
}

// Clone returns a deep copy of m.
func (m *Meta) Clone() *Meta {
	if m == nil {
		return nil
	}
	out := *m
	if m.Profile != nil {
		out.Profile = append([]string(nil), m.Profile...)
	}
	if m.Tag != nil {
		out.Tag = append([]Coding(nil), m.Tag...)
	}
	return &out
}

type Coding struct {
	System    string      `json:"system,omitempty"`
	Code      string      `json:"code,omitempty"`
	Display   string      `json:"display,omitempty"`
	Extension []Extension `json:"extension,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// HasCode reports whether any coding in the concept carries code.
func (cc *CodeableConcept) HasCode(code string) bool {
	if cc == nil || code == "" {
		return false
	}
	for _, c := range cc.Coding {
		if strings.EqualFold(c.Code, code) {
			return true
		}
	}
	return false
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Type      string `json:"type,omitempty"`
	Display   string `json:"display,omitempty"`
}

type Quantity struct {
	Value  *float64 `json:"value,omitempty"`
	Unit   string   `json:"unit,omitempty"`
	System string   `json:"system,omitempty"`
	Code   string   `json:"code,omitempty"`
}

type Expression struct {
	Language   string `json:"language,omitempty"`
	Expression string `json:"expression,omitempty"`
}

// Extension carries the value[x] variants the scoring code reads.
type Extension struct {
	URL             string      `json:"url"`
	ValueString     *string     `json:"valueString,omitempty"`
	ValueCode       *string     `json:"valueCode,omitempty"`
	ValueBoolean    *bool       `json:"valueBoolean,omitempty"`
	ValueInteger    *int        `json:"valueInteger,omitempty"`
	ValueDecimal    *float64    `json:"valueDecimal,omitempty"`
	ValueCoding     *Coding     `json:"valueCoding,omitempty"`
	ValueExpression *Expression `json:"valueExpression,omitempty"`
}

// Number returns the numeric value of the extension, if it has one.
func (e Extension) Number() (float64, bool) {
	switch {
	case e.ValueDecimal != nil:
		return *e.ValueDecimal, true
	case e.ValueInteger != nil:
		return float64(*e.ValueInteger), true
	}
	return 0, false
}

// Condition is the subset of the Condition resource read by the scoring
// strategies (education markers on the patient's problem list).
type Condition struct {
	ResourceType   string            `json:"resourceType"`
	ID             string            `json:"id,omitempty"`
	Code           *CodeableConcept  `json:"code,omitempty"`
	Category       []CodeableConcept `json:"category,omitempty"`
	Subject        *Reference        `json:"subject,omitempty"`
	ClinicalStatus *CodeableConcept  `json:"clinicalStatus,omitempty"`
}

// FormatReference builds a relative reference of the form "Type/id".
func FormatReference(resourceType, id string) string {
	return resourceType + "/" + id
}

// ParseDateTime parses the FHIR date/dateTime/instant forms. The zero time
// and false are returned for anything it cannot read.
func ParseDateTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// rawOf marshals v, returning nil on failure.
func rawOf(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
