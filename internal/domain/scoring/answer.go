package scoring

import (
	"strconv"
	"strings"

	"github.com/ehr/proscore/internal/platform/fhir"
)

// PrimitiveKind names the value[x] variant a Primitive came from.
type PrimitiveKind string

const (
	KindBoolean   PrimitiveKind = "boolean"
	KindInteger   PrimitiveKind = "integer"
	KindDecimal   PrimitiveKind = "decimal"
	KindString    PrimitiveKind = "string"
	KindDate      PrimitiveKind = "date"
	KindDateTime  PrimitiveKind = "dateTime"
	KindTime      PrimitiveKind = "time"
	KindURI       PrimitiveKind = "uri"
	KindQuantity  PrimitiveKind = "quantity"
	KindReference PrimitiveKind = "reference"
)

// Primitive is a non-coded answer value.
type Primitive struct {
	Kind  PrimitiveKind
	Value interface{}
}

// CodedValue is the code/display pair of a coded answer.
type CodedValue struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code"`
	Display string `json:"display,omitempty"`
}

// PrimitiveOf returns the first populated primitive value of the answer in
// the order boolean, integer, decimal, string, date, dateTime, time, uri,
// quantity value, reference.
func PrimitiveOf(a *fhir.Answer) (Primitive, bool) {
	if a == nil {
		return Primitive{}, false
	}
	switch {
	case a.ValueBoolean != nil:
		return Primitive{KindBoolean, *a.ValueBoolean}, true
	case a.ValueInteger != nil:
		return Primitive{KindInteger, *a.ValueInteger}, true
	case a.ValueDecimal != nil:
		return Primitive{KindDecimal, *a.ValueDecimal}, true
	case a.ValueString != nil:
		return Primitive{KindString, *a.ValueString}, true
	case a.ValueDate != nil:
		return Primitive{KindDate, *a.ValueDate}, true
	case a.ValueDateTime != nil:
		return Primitive{KindDateTime, *a.ValueDateTime}, true
	case a.ValueTime != nil:
		return Primitive{KindTime, *a.ValueTime}, true
	case a.ValueURI != nil:
		return Primitive{KindURI, *a.ValueURI}, true
	case a.ValueQuantity != nil && a.ValueQuantity.Value != nil:
		return Primitive{KindQuantity, *a.ValueQuantity.Value}, true
	case a.ValueReference != nil && a.ValueReference.Reference != "":
		return Primitive{KindReference, a.ValueReference.Reference}, true
	}
	return Primitive{}, false
}

// CodingOf returns the coded variant of the answer only.
func CodingOf(a *fhir.Answer) (CodedValue, bool) {
	if a == nil || a.ValueCoding == nil {
		return CodedValue{}, false
	}
	if a.ValueCoding.Code == "" && a.ValueCoding.Display == "" {
		return CodedValue{}, false
	}
	return CodedValue{System: a.ValueCoding.System, Code: a.ValueCoding.Code, Display: a.ValueCoding.Display}, true
}

// NumericOf returns the primitive as a number when it is an integer or a
// decimal. Strings are never parsed.
func NumericOf(p Primitive) (float64, bool) {
	switch p.Kind {
	case KindInteger:
		if v, ok := p.Value.(int); ok {
			return float64(v), true
		}
	case KindDecimal:
		if v, ok := p.Value.(float64); ok {
			return v, true
		}
	}
	return 0, false
}

// bareNumeric reads a bare scalar answer decoded from JSON.
func bareNumeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

// AnswerText renders an answer for display: coding display, then code, then
// the primitive value.
func AnswerText(a *fhir.Answer) string {
	if c, ok := CodingOf(a); ok {
		if c.Display != "" {
			return c.Display
		}
		return c.Code
	}
	if p, ok := PrimitiveOf(a); ok {
		return formatValue(p.Value)
	}
	return ""
}

// itemAnswerText joins every answer of an item, including a bare scalar.
func itemAnswerText(it *fhir.ResponseItem) string {
	if len(it.Answer) == 0 {
		if it.BareAnswer != nil {
			return formatValue(it.BareAnswer)
		}
		return ""
	}
	parts := make([]string, 0, len(it.Answer))
	for i := range it.Answer {
		if s := AnswerText(&it.Answer[i]); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case nil:
		return ""
	}
	return ""
}
