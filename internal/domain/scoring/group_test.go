package scoring

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/ehr/proscore/internal/platform/fhir"
)

func TestGroup_SortsNewestFirst(t *testing.T) {
	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	var responses []*fhir.QuestionnaireResponse
	for i := 0; i < 25; i++ {
		authored := base.Add(time.Duration(i) * 36 * time.Hour).Format(time.RFC3339)
		responses = append(responses, response(fmt.Sprintf("r%02d", i), "Questionnaire/CIRG-PHQ9", authored))
	}
	rng := rand.New(rand.NewSource(7))
	rng.Shuffle(len(responses), func(i, j int) { responses[i], responses[j] = responses[j], responses[i] })

	groups := Group(responses, GroupOptions{})
	got := groups["Questionnaire/CIRG-PHQ9"]
	if len(got) != 25 {
		t.Fatalf("expected 25 responses, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		prev, _ := fhir.ParseDateTime(got[i-1].Authored)
		cur, _ := fhir.ParseDateTime(got[i].Authored)
		if cur.After(prev) {
			t.Fatalf("position %d (%s) is newer than %d (%s)", i, got[i].Authored, i-1, got[i-1].Authored)
		}
	}
	if got[0].ID != "r24" || got[24].ID != "r00" {
		t.Errorf("unexpected ends %s, %s", got[0].ID, got[24].ID)
	}
}

func TestGroup_LiteralKeysAndDrops(t *testing.T) {
	responses := []*fhir.QuestionnaireResponse{
		response("a", "Questionnaire/CIRG-PHQ9", "2024-01-01"),
		response("b", "Questionnaire/CIRG-PHQ9|2.0", "2024-01-02"),
		response("c", "", "2024-01-03"),
		nil,
	}
	groups := Group(responses, GroupOptions{})
	keys := GroupKeys(groups)
	if !equalStrings(keys, []string{"Questionnaire/CIRG-PHQ9", "Questionnaire/CIRG-PHQ9|2.0"}) {
		t.Errorf("unexpected keys %v", keys)
	}
}

func TestGroup_CompletedOnly(t *testing.T) {
	done := response("done", "Questionnaire/X", "2024-01-01")
	draft := response("draft", "Questionnaire/X", "2024-01-02")
	draft.Status = fhir.ResponseStatusInProgress

	groups := Group([]*fhir.QuestionnaireResponse{done, draft}, GroupOptions{CompletedOnly: true})
	if ids := responseIDs(groups["Questionnaire/X"]); !equalStrings(ids, []string{"done"}) {
		t.Errorf("expected only completed response, got %v", ids)
	}
	groups = Group([]*fhir.QuestionnaireResponse{done, draft}, GroupOptions{})
	if len(groups["Questionnaire/X"]) != 2 {
		t.Error("expected both responses without the filter")
	}
}

func TestSortNewestFirst_LastUpdatedFallback(t *testing.T) {
	a := response("authored", "Q", "2024-03-01T00:00:00Z")
	b := response("meta-only", "Q", "")
	b.Meta = &fhir.Meta{LastUpdated: "2024-04-01T00:00:00Z"}
	c := response("undated", "Q", "")
	tieOld := response("tie-old", "Q", "2024-02-01")
	tieOld.Meta = &fhir.Meta{LastUpdated: "2024-02-02T00:00:00Z"}
	tieNew := response("tie-new", "Q", "2024-02-01")
	tieNew.Meta = &fhir.Meta{LastUpdated: "2024-02-03T00:00:00Z"}

	in := []*fhir.QuestionnaireResponse{c, tieOld, a, tieNew, b}
	got := responseIDs(SortNewestFirst(in))
	want := []string{"meta-only", "authored", "tie-new", "tie-old", "undated"}
	if !equalStrings(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if in[0].ID != "undated" {
		t.Error("input slice was reordered")
	}
}

func TestSortNewestFirst_UndatedSortsOldest(t *testing.T) {
	undated := response("undated", "Q", "")
	garbled := response("garbled", "Q", "not a date")
	old := response("dated-1965", "Q", "1965-03-01")
	epoch := response("dated-1970", "Q", "1970-01-01T00:00:00Z")
	far := response("dated-2300", "Q", "2300-01-01")
	recent := response("dated-2024", "Q", "2024-01-01")

	in := []*fhir.QuestionnaireResponse{undated, old, far, garbled, epoch, recent}
	got := responseIDs(SortNewestFirst(in))
	want := []string{"dated-2300", "dated-2024", "dated-1970", "dated-1965", "undated", "garbled"}
	if !equalStrings(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestForQuestionnaire_MergesMatchingKeys(t *testing.T) {
	responses := []*fhir.QuestionnaireResponse{
		response("a", "Questionnaire/CIRG-PHQ9", "2024-01-01"),
		response("b", "Questionnaire/PHQ9", "2024-01-03"),
		response("c", "Questionnaire/CIRG-GAD7", "2024-01-02"),
	}
	cfg := &Config{QuestionnaireID: "CIRG-PHQ9", QuestionnaireName: "PHQ9", MatchMode: MatchStrict}
	got := responseIDs(ForQuestionnaire(responses, cfg, GroupOptions{}))
	if !equalStrings(got, []string{"b", "a"}) {
		t.Errorf("expected [b a], got %v", got)
	}
}

func TestForQuestionnaire_VersionedScan(t *testing.T) {
	responses := []*fhir.QuestionnaireResponse{
		response("a", "http://example.org/Questionnaire/slums|3", "2024-01-01"),
	}
	cfg := &Config{QuestionnaireURL: "http://example.org/Questionnaire/slums", MatchMode: MatchStrict}
	if got := ForQuestionnaire(responses, cfg, GroupOptions{}); len(got) != 1 {
		t.Errorf("expected versioned reference to match, got %d", len(got))
	}
}
