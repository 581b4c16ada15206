package scoring

import "github.com/ehr/proscore/internal/platform/fhir"

// Flatten walks a response item tree depth-first and returns every item it
// meets in document order, descending into both item.item and
// answer[].item. The returned pointers alias the input and must not be
// modified.
func Flatten(items []fhir.ResponseItem) []*fhir.ResponseItem {
	out := make([]*fhir.ResponseItem, 0, len(items))
	return flattenInto(out, items)
}

func flattenInto(out []*fhir.ResponseItem, items []fhir.ResponseItem) []*fhir.ResponseItem {
	for i := range items {
		it := &items[i]
		out = append(out, it)
		out = flattenInto(out, it.Item)
		for j := range it.Answer {
			out = flattenInto(out, it.Answer[j].Item)
		}
	}
	return out
}

// findFlat returns the first flattened item whose linkId matches. An exact
// match anywhere in the list wins over a fuzzy one.
func findFlat(flat []*fhir.ResponseItem, linkID string, mode MatchMode) *fhir.ResponseItem {
	for _, it := range flat {
		if LinkIDMatches(it.LinkID, linkID, MatchStrict) {
			return it
		}
	}
	if mode == MatchStrict {
		return nil
	}
	for _, it := range flat {
		if LinkIDMatches(it.LinkID, linkID, MatchFuzzy) {
			return it
		}
	}
	return nil
}

// findDefinitionItem is findFlat for the definition tree.
func findDefinitionItem(def *fhir.Questionnaire, linkID string, mode MatchMode) *fhir.QuestionnaireItem {
	if def == nil {
		return nil
	}
	var exact, fuzzy *fhir.QuestionnaireItem
	def.Walk(func(item *fhir.QuestionnaireItem) {
		if exact != nil {
			return
		}
		if LinkIDMatches(item.LinkID, linkID, MatchStrict) {
			exact = item
			return
		}
		if fuzzy == nil && mode != MatchStrict && LinkIDMatches(item.LinkID, linkID, MatchFuzzy) {
			fuzzy = item
		}
	})
	if exact != nil {
		return exact
	}
	return fuzzy
}
