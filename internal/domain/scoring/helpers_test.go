package scoring

import (
	"github.com/ehr/proscore/internal/platform/fhir"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
func strPtr(v string) *string     { return &v }
func boolPtr(v bool) *bool        { return &v }

func intAnswer(v int) fhir.Answer         { return fhir.Answer{ValueInteger: intPtr(v)} }
func decimalAnswer(v float64) fhir.Answer { return fhir.Answer{ValueDecimal: floatPtr(v)} }
func stringAnswer(v string) fhir.Answer   { return fhir.Answer{ValueString: strPtr(v)} }
func boolAnswer(v bool) fhir.Answer       { return fhir.Answer{ValueBoolean: boolPtr(v)} }

func codeAnswer(code string) fhir.Answer {
	return fhir.Answer{ValueCoding: &fhir.Coding{Code: code, Display: "display " + code}}
}

func respItem(linkID string, answers ...fhir.Answer) fhir.ResponseItem {
	return fhir.ResponseItem{LinkID: linkID, Text: "text " + linkID, Answer: answers}
}

func response(id, ref, authored string, items ...fhir.ResponseItem) *fhir.QuestionnaireResponse {
	return &fhir.QuestionnaireResponse{
		ResourceType:  "QuestionnaireResponse",
		ID:            id,
		Status:        fhir.ResponseStatusCompleted,
		Questionnaire: ref,
		Authored:      authored,
		Item:          items,
	}
}

func defItem(linkID, typ string) fhir.QuestionnaireItem {
	return fhir.QuestionnaireItem{LinkID: linkID, Type: typ, Text: "question " + linkID}
}

// choiceItem builds a choice item whose options carry ordinal weights.
func choiceItem(linkID string, codes []string, weights []float64) fhir.QuestionnaireItem {
	item := defItem(linkID, "choice")
	for i, code := range codes {
		opt := fhir.AnswerOption{ValueCoding: &fhir.Coding{Code: code}}
		if i < len(weights) {
			w := weights[i]
			opt.Extension = []fhir.Extension{{URL: fhir.ExtOrdinalValue, ValueDecimal: &w}}
		}
		item.AnswerOption = append(item.AnswerOption, opt)
	}
	return item
}

func questionnaire(id string, items ...fhir.QuestionnaireItem) *fhir.Questionnaire {
	return &fhir.Questionnaire{ResourceType: "Questionnaire", ID: id, Name: id, Item: items}
}

func rowIDs(rows []ResponseSummaryRow) []string {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids
}

func responseIDs(rs []*fhir.QuestionnaireResponse) []string {
	ids := make([]string, len(rs))
	for i, r := range rs {
		ids[i] = r.ID
	}
	return ids
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
