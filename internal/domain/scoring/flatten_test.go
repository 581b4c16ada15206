package scoring

import (
	"testing"

	"github.com/ehr/proscore/internal/platform/fhir"
)

func TestFlatten_DocumentOrder(t *testing.T) {
	items := []fhir.ResponseItem{
		{LinkID: "group", Item: []fhir.ResponseItem{
			respItem("a", intAnswer(1)),
			{LinkID: "b", Answer: []fhir.Answer{{ValueBoolean: boolPtr(true), Item: []fhir.ResponseItem{
				respItem("b-detail", stringAnswer("why")),
			}}}},
		}},
		respItem("c", intAnswer(2)),
	}
	flat := Flatten(items)

	var got []string
	for _, it := range flat {
		got = append(got, it.LinkID)
	}
	want := []string{"group", "a", "b", "b-detail", "c"}
	if !equalStrings(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestFlatten_Empty(t *testing.T) {
	if got := Flatten(nil); len(got) != 0 {
		t.Errorf("expected no items, got %d", len(got))
	}
}

func TestFindFlat_ExactBeatsFuzzy(t *testing.T) {
	flat := Flatten([]fhir.ResponseItem{
		respItem("q1-note", stringAnswer("x")),
		respItem("q1", intAnswer(3)),
	})
	it := findFlat(flat, "q1", MatchFuzzy)
	if it == nil || it.LinkID != "q1" {
		t.Fatalf("expected exact item q1, got %+v", it)
	}
	if findFlat(flat, "Q1-NOTE", MatchStrict) != nil {
		t.Error("strict lookup should not fold case")
	}
	if it := findFlat(flat, "Q1-NOTE", MatchFuzzy); it == nil || it.LinkID != "q1-note" {
		t.Errorf("expected fuzzy lookup to find q1-note, got %+v", it)
	}
}

func TestFindFlat_FuzzyStaysOnSegmentBoundaries(t *testing.T) {
	flat := Flatten([]fhir.ResponseItem{
		respItem("q10", intAnswer(3)),
		respItem("q18", intAnswer(1)),
		respItem("mh18-q2", intAnswer(2)),
	})
	if it := findFlat(flat, "q1", MatchFuzzy); it != nil {
		t.Errorf("missing q1 should not borrow %s", it.LinkID)
	}
	if it := findFlat(flat, "q2", MatchFuzzy); it == nil || it.LinkID != "mh18-q2" {
		t.Errorf("expected q2 to find mh18-q2, got %+v", it)
	}

	def := &fhir.Questionnaire{Item: []fhir.QuestionnaireItem{defItem("q11", "integer")}}
	if item := findDefinitionItem(def, "q1", MatchFuzzy); item != nil {
		t.Errorf("missing q1 should not borrow definition item %s", item.LinkID)
	}
}

func TestFindDefinitionItem_Nested(t *testing.T) {
	def := questionnaire("q", fhir.QuestionnaireItem{LinkID: "grp", Type: "group", Item: []fhir.QuestionnaireItem{
		defItem("/44250-9", "choice"),
	}})
	if findDefinitionItem(def, "/44250-9", MatchStrict) == nil {
		t.Error("expected nested item to be found")
	}
	if findDefinitionItem(def, "44250-9", MatchStrict) != nil {
		t.Error("strict lookup should require the leading slash")
	}
	if findDefinitionItem(def, "44250-9", MatchFuzzy) == nil {
		t.Error("fuzzy lookup should tolerate a missing slash")
	}
	if findDefinitionItem(nil, "x", MatchFuzzy) != nil {
		t.Error("expected nil for nil definition")
	}
}
