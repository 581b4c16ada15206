package fhir

import (
	"bytes"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// NewCollectionBundle wraps resources in a collection Bundle with a fresh id.
// Resources that fail to marshal are left out.
func NewCollectionBundle(resources []interface{}) *Bundle {
	now := time.Now().UTC()
	entries := make([]BundleEntry, 0, len(resources))
	for _, r := range resources {
		raw := rawOf(r)
		if raw == nil {
			continue
		}
		entries = append(entries, BundleEntry{
			FullURL:  "urn:uuid:" + uuid.New().String(),
			Resource: raw,
		})
	}
	total := len(entries)
	return &Bundle{
		ResourceType: "Bundle",
		ID:           uuid.New().String(),
		Type:         "collection",
		Total:        &total,
		Entry:        entries,
		Timestamp:    &now,
	}
}

// Collection is the canonical in-memory form of an inbound resource set.
// Everything downstream of ParseCollection works on these typed slices and
// never looks at the wire shape again.
type Collection struct {
	Questionnaires []*Questionnaire
	Responses      []*QuestionnaireResponse
	Conditions     []*Condition
}

// Len returns the number of resources the collection holds.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Questionnaires) + len(c.Responses) + len(c.Conditions)
}

// Merge returns a new collection holding the resources of c followed by
// those of other. Neither input is modified.
func (c *Collection) Merge(other *Collection) *Collection {
	out := &Collection{}
	for _, src := range []*Collection{c, other} {
		if src == nil {
			continue
		}
		out.Questionnaires = append(out.Questionnaires, src.Questionnaires...)
		out.Responses = append(out.Responses, src.Responses...)
		out.Conditions = append(out.Conditions, src.Conditions...)
	}
	return out
}

// envelope is decoded first to decide which shape an element has.
type envelope struct {
	ResourceType string            `json:"resourceType"`
	Resource     json.RawMessage   `json:"resource"`
	Entry        []json.RawMessage `json:"entry"`
}

// ParseCollection accepts a Bundle, a bare array of resources, an array of
// {resource: ...} wrappers, or a single resource. Elements that cannot be
// decoded or carry an unrecognised resourceType are skipped; only input that
// is not JSON at all is an error.
func ParseCollection(data []byte) (*Collection, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return &Collection{}, nil
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("parse collection: invalid JSON")
	}
	c := &Collection{}
	switch data[0] {
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(data, &elems); err != nil {
			return nil, fmt.Errorf("parse collection: %w", err)
		}
		for _, el := range elems {
			c.add(el, 0)
		}
	case '{':
		c.add(data, 0)
	default:
		return nil, fmt.Errorf("parse collection: expected object or array")
	}
	return c, nil
}

// maxNesting bounds how deep wrappers and nested bundles are followed.
const maxNesting = 8

func (c *Collection) add(raw json.RawMessage, depth int) {
	raw = bytes.TrimSpace(raw)
	if depth > maxNesting || len(raw) == 0 || raw[0] != '{' {
		return
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}
	switch env.ResourceType {
	case "Bundle":
		for _, e := range env.Entry {
			c.add(e, depth+1)
		}
	case "Questionnaire":
		var q Questionnaire
		if err := json.Unmarshal(raw, &q); err == nil {
			c.Questionnaires = append(c.Questionnaires, &q)
		}
	case "QuestionnaireResponse":
		var qr QuestionnaireResponse
		if err := json.Unmarshal(raw, &qr); err == nil {
			c.Responses = append(c.Responses, &qr)
		}
	case "Condition":
		var cond Condition
		if err := json.Unmarshal(raw, &cond); err == nil {
			c.Conditions = append(c.Conditions, &cond)
		}
	case "":
		// A bundle entry or an array element wrapped as {resource: ...}.
		if len(env.Resource) > 0 {
			c.add(env.Resource, depth+1)
		}
	}
}
