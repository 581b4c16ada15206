package scoring

import (
	"errors"
	"strings"

	"github.com/ehr/proscore/internal/platform/fhir"
)

// ErrNoHostResponses is reported on a derived questionnaire's summary when
// no host response could be found.
var ErrNoHostResponses = errors.New("no host questionnaire responses found")

// AnswerNormalizer converts a bare scalar answer into a coding. Returning
// nil leaves the value as a typed primitive answer.
type AnswerNormalizer func(v interface{}) *fhir.Coding

// DeriveOptions controls DeriveSingleLinkResponses.
type DeriveOptions struct {
	LinkID                  string
	TargetQuestionnaireID   string
	MatchMode               MatchMode
	NormalizeAnswerToCoding AnswerNormalizer
}

// DeriveSingleLinkResponses builds, for every host response that has an
// authored date and an item matching opts.LinkID, a new completed response
// to the target questionnaire holding only that item. Hosts are never
// modified; the output is in host order.
func DeriveSingleLinkResponses(hosts []*fhir.QuestionnaireResponse, opts DeriveOptions) []*fhir.QuestionnaireResponse {
	if opts.LinkID == "" || opts.TargetQuestionnaireID == "" {
		return nil
	}
	normalize := opts.NormalizeAnswerToCoding
	if normalize == nil {
		normalize = DefaultAnswerCoding
	}
	mode := opts.MatchMode.orDefault()

	out := make([]*fhir.QuestionnaireResponse, 0, len(hosts))
	for _, host := range hosts {
		if host == nil || strings.TrimSpace(host.Authored) == "" {
			continue
		}
		src := findFlat(Flatten(host.Item), opts.LinkID, mode)
		if src == nil {
			continue
		}
		out = append(out, deriveOne(host, src, opts.TargetQuestionnaireID, normalize))
	}
	return out
}

// DerivedID is the deterministic id of a response derived from hostID.
func DerivedID(hostID, targetQuestionnaireID string) string {
	return hostID + "_" + targetQuestionnaireID
}

func deriveOne(host *fhir.QuestionnaireResponse, src *fhir.ResponseItem, target string, normalize AnswerNormalizer) *fhir.QuestionnaireResponse {
	item := fhir.ResponseItem{LinkID: src.LinkID, Text: src.Text}
	switch {
	case len(src.Answer) > 0:
		item.Answer = make([]fhir.Answer, len(src.Answer))
		for i, a := range src.Answer {
			item.Answer[i] = a.Clone()
		}
	case src.BareAnswer != nil:
		item.Answer = []fhir.Answer{scalarAnswer(src.BareAnswer, normalize)}
	}

	qr := &fhir.QuestionnaireResponse{
		ResourceType:  "QuestionnaireResponse",
		ID:            DerivedID(host.ID, target),
		Meta:          host.Meta.Clone(),
		Questionnaire: fhir.FormatReference("Questionnaire", target),
		Status:        fhir.ResponseStatusCompleted,
		Authored:      host.Authored,
		Item:          []fhir.ResponseItem{item},
	}
	if host.Identifier != nil {
		qr.Identifier = append([]byte(nil), host.Identifier...)
	}
	if host.Subject != nil {
		s := *host.Subject
		qr.Subject = &s
	}
	if host.Author != nil {
		a := *host.Author
		qr.Author = &a
	}
	return qr
}

// scalarAnswer wraps a bare value, preferring the normalizer's coding.
func scalarAnswer(v interface{}, normalize AnswerNormalizer) fhir.Answer {
	if c := normalize(v); c != nil {
		cc := *c
		return fhir.Answer{ValueCoding: &cc}
	}
	switch x := v.(type) {
	case bool:
		return fhir.Answer{ValueBoolean: &x}
	case float64:
		if x == float64(int(x)) {
			n := int(x)
			return fhir.Answer{ValueInteger: &n}
		}
		return fhir.Answer{ValueDecimal: &x}
	case int:
		return fhir.Answer{ValueInteger: &x}
	case string:
		return fhir.Answer{ValueString: &x}
	}
	s := formatValue(v)
	return fhir.Answer{ValueString: &s}
}

// LOINCSystem is the code system of the built-in answer codings.
const LOINCSystem = "http://loinc.org"

// Built-in LOINC answers. Frequency answers are indexed by their ordinal.
var (
	frequencyCodings = []fhir.Coding{
		{System: LOINCSystem, Code: "LA6568-5", Display: "Not at all"},
		{System: LOINCSystem, Code: "LA6569-3", Display: "Several days"},
		{System: LOINCSystem, Code: "LA6570-1", Display: "More than half the days"},
		{System: LOINCSystem, Code: "LA6571-9", Display: "Nearly every day"},
	}
	yesCoding = fhir.Coding{System: LOINCSystem, Code: "LA33-6", Display: "Yes"}
	noCoding  = fhir.Coding{System: LOINCSystem, Code: "LA32-8", Display: "No"}
)

// DefaultAnswerCoding maps 0..3, booleans, and the matching codes or display
// strings onto LOINC answer codings. Unknown values map to nil.
func DefaultAnswerCoding(v interface{}) *fhir.Coding {
	pick := func(c fhir.Coding) *fhir.Coding { return &c }
	switch x := v.(type) {
	case bool:
		if x {
			return pick(yesCoding)
		}
		return pick(noCoding)
	case float64:
		if x >= 0 && x < float64(len(frequencyCodings)) && x == float64(int(x)) {
			return pick(frequencyCodings[int(x)])
		}
	case int:
		if x >= 0 && x < len(frequencyCodings) {
			return pick(frequencyCodings[x])
		}
	case string:
		s := strings.TrimSpace(x)
		for _, c := range append(append([]fhir.Coding(nil), frequencyCodings...), yesCoding, noCoding) {
			if strings.EqualFold(s, c.Code) || strings.EqualFold(s, c.Display) {
				return pick(c)
			}
		}
		switch strings.ToLower(s) {
		case "true":
			return pick(yesCoding)
		case "false":
			return pick(noCoding)
		}
	}
	return nil
}

// HostResponses returns the responses whose literal questionnaire reference
// names one of hostIDs.
func HostResponses(responses []*fhir.QuestionnaireResponse, hostIDs []string, opts GroupOptions) []*fhir.QuestionnaireResponse {
	var out []*fhir.QuestionnaireResponse
	for _, qr := range responses {
		if !opts.keep(qr) {
			continue
		}
		for _, h := range hostIDs {
			if hostMatches(qr.Questionnaire, h) {
				out = append(out, qr)
				break
			}
		}
	}
	return out
}
