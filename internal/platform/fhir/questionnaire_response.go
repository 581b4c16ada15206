package fhir

import (
	"bytes"

	"github.com/goccy/go-json"
)

// QuestionnaireResponse status codes.
const (
	ResponseStatusInProgress     = "in-progress"
	ResponseStatusCompleted      = "completed"
	ResponseStatusAmended        = "amended"
	ResponseStatusEnteredInError = "entered-in-error"
	ResponseStatusStopped        = "stopped"
)

// QuestionnaireResponse is one submission against a definition. The engine
// treats decoded responses as immutable; derivation builds new values.
//
// Identifier is kept raw so it can be copied verbatim onto derived responses
// regardless of whether the sender used the R4 single form or an array.
type QuestionnaireResponse struct {
	ResourceType  string          `json:"resourceType"`
	ID            string          `json:"id,omitempty"`
	Meta          *Meta           `json:"meta,omitempty"`
	Identifier    json.RawMessage `json:"identifier,omitempty"`
	Questionnaire string          `json:"questionnaire,omitempty"`
	Status        string          `json:"status,omitempty"`
	Subject       *Reference      `json:"subject,omitempty"`
	Author        *Reference      `json:"author,omitempty"`
	Authored      string          `json:"authored,omitempty"`
	Item          []ResponseItem  `json:"item,omitempty"`
}

// LastUpdated returns meta.lastUpdated or "".
func (qr *QuestionnaireResponse) LastUpdated() string {
	if qr == nil || qr.Meta == nil {
		return ""
	}
	return qr.Meta.LastUpdated
}

// ResponseItem is one node in a response's item tree.
//
// BareAnswer holds an answer that arrived as a plain scalar rather than the
// FHIR answer array (some upstream writers emit `"answer": 2`). It is never
// serialized; derivation converts it into a proper Answer.
type ResponseItem struct {
	LinkID     string         `json:"linkId"`
	Text       string         `json:"text,omitempty"`
	Answer     []Answer       `json:"answer,omitempty"`
	Item       []ResponseItem `json:"item,omitempty"`
	BareAnswer interface{}    `json:"-"`
}

// HasAnswer reports whether the item carries any answer, bare or typed.
func (ri *ResponseItem) HasAnswer() bool {
	return len(ri.Answer) > 0 || ri.BareAnswer != nil
}

type responseItemWire struct {
	LinkID string          `json:"linkId"`
	Text   string          `json:"text,omitempty"`
	Answer json.RawMessage `json:"answer,omitempty"`
	Item   []ResponseItem  `json:"item,omitempty"`
}

// UnmarshalJSON accepts answer as an array of answer objects, a single
// answer object, or a bare scalar.
func (ri *ResponseItem) UnmarshalJSON(data []byte) error {
	var w responseItemWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	ri.LinkID = w.LinkID
	ri.Text = w.Text
	ri.Item = w.Item
	ri.Answer = nil
	ri.BareAnswer = nil

	raw := bytes.TrimSpace(w.Answer)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	switch raw[0] {
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(raw, &elems); err != nil {
			return nil
		}
		for _, el := range elems {
			el = bytes.TrimSpace(el)
			if len(el) == 0 {
				continue
			}
			if el[0] == '{' {
				var a Answer
				if err := json.Unmarshal(el, &a); err == nil {
					ri.Answer = append(ri.Answer, a)
				}
				continue
			}
			if ri.BareAnswer == nil {
				ri.BareAnswer = decodeScalar(el)
			}
		}
	case '{':
		var a Answer
		if err := json.Unmarshal(raw, &a); err == nil {
			ri.Answer = []Answer{a}
		}
	default:
		ri.BareAnswer = decodeScalar(raw)
	}
	return nil
}

func decodeScalar(raw []byte) interface{} {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

// Answer holds exactly one value[x] plus optional nested items.
type Answer struct {
	ValueBoolean   *bool          `json:"valueBoolean,omitempty"`
	ValueInteger   *int           `json:"valueInteger,omitempty"`
	ValueDecimal   *float64       `json:"valueDecimal,omitempty"`
	ValueString    *string        `json:"valueString,omitempty"`
	ValueDate      *string        `json:"valueDate,omitempty"`
	ValueDateTime  *string        `json:"valueDateTime,omitempty"`
	ValueTime      *string        `json:"valueTime,omitempty"`
	ValueURI       *string        `json:"valueUri,omitempty"`
	ValueQuantity  *Quantity      `json:"valueQuantity,omitempty"`
	ValueReference *Reference     `json:"valueReference,omitempty"`
	ValueCoding    *Coding        `json:"valueCoding,omitempty"`
	Item           []ResponseItem `json:"item,omitempty"`
}

// Clone returns a deep copy of the answer.
func (a Answer) Clone() Answer {
	out := Answer{
		ValueBoolean:  clonePtr(a.ValueBoolean),
		ValueInteger:  clonePtr(a.ValueInteger),
		ValueDecimal:  clonePtr(a.ValueDecimal),
		ValueString:   clonePtr(a.ValueString),
		ValueDate:     clonePtr(a.ValueDate),
		ValueDateTime: clonePtr(a.ValueDateTime),
		ValueTime:     clonePtr(a.ValueTime),
		ValueURI:      clonePtr(a.ValueURI),
	}
	if a.ValueQuantity != nil {
		q := *a.ValueQuantity
		q.Value = clonePtr(q.Value)
		out.ValueQuantity = &q
	}
	if a.ValueReference != nil {
		r := *a.ValueReference
		out.ValueReference = &r
	}
	if a.ValueCoding != nil {
		c := *a.ValueCoding
		c.Extension = append([]Extension(nil), c.Extension...)
		out.ValueCoding = &c
	}
	out.Item = cloneItems(a.Item)
	return out
}

// Clone returns a deep copy of the item and its subtree.
func (ri ResponseItem) Clone() ResponseItem {
	out := ResponseItem{LinkID: ri.LinkID, Text: ri.Text, BareAnswer: ri.BareAnswer}
	if ri.Answer != nil {
		out.Answer = make([]Answer, len(ri.Answer))
		for i, a := range ri.Answer {
			out.Answer[i] = a.Clone()
		}
	}
	out.Item = cloneItems(ri.Item)
	return out
}

func cloneItems(items []ResponseItem) []ResponseItem {
	if items == nil {
		return nil
	}
	out := make([]ResponseItem, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
