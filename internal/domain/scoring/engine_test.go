package scoring

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/proscore/internal/platform/fhir"
)

const phqBundle = `{
  "resourceType": "Bundle",
  "type": "searchset",
  "entry": [
    {"resource": {
      "resourceType": "Questionnaire", "id": "CIRG-PHQ9", "name": "PHQ9",
      "item": [
        {"linkId": "/44260-8", "type": "choice", "text": "Thoughts that you would be better off dead"},
        {"linkId": "/44261-6", "type": "integer", "text": "Total score", "readOnly": true}
      ]
    }},
    {"resource": {
      "resourceType": "QuestionnaireResponse", "id": "phq9-response-1", "status": "completed",
      "questionnaire": "Questionnaire/CIRG-PHQ9", "authored": "2024-01-10T10:00:00Z",
      "subject": {"reference": "Patient/7"},
      "item": [
        {"linkId": "/44260-8", "answer": [{"valueCoding": {"system": "http://loinc.org", "code": "LA6570-1", "display": "More than half the days"}}]},
        {"linkId": "/44261-6", "answer": [{"valueInteger": 12}]}
      ]
    }},
    {"resource": {
      "resourceType": "QuestionnaireResponse", "id": "phq9-response-2", "status": "completed",
      "questionnaire": "Questionnaire/CIRG-PHQ9", "authored": "2024-02-10T10:00:00Z",
      "item": [
        {"linkId": "/44260-8", "answer": [{"valueCoding": {"system": "http://loinc.org", "code": "LA6568-5"}}]},
        {"linkId": "/44261-6", "answer": [{"valueInteger": 4}]}
      ]
    }},
    {"resource": {
      "resourceType": "QuestionnaireResponse", "id": "draft", "status": "in-progress",
      "questionnaire": "Questionnaire/CIRG-PHQ9", "authored": "2024-03-10T10:00:00Z"
    }},
    {"resource": {
      "resourceType": "QuestionnaireResponse", "id": "m1", "status": "completed",
      "questionnaire": "Questionnaire/mystery", "authored": "2024-01-01",
      "item": [{"linkId": "x", "answer": [{"valueInteger": 1}]}]
    }}
  ]
}`

func mustCollection(t *testing.T, data string) *fhir.Collection {
	t.Helper()
	c, err := fhir.ParseCollection([]byte(data))
	if err != nil {
		t.Fatalf("parse bundle: %v", err)
	}
	return c
}

func newTestEngine(t *testing.T, loader DefinitionLoader, opts ...Option) *Engine {
	t.Helper()
	reg, err := DefaultRegistry()
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	return NewEngine(reg, loader, zerolog.Nop(), opts...)
}

func TestEngine_SummarizeAll(t *testing.T) {
	var calls int32
	loader := LoaderFunc(func(ctx context.Context, ref string) (*fhir.Questionnaire, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	})
	e := newTestEngine(t, loader)

	out, err := e.SummarizeAll(context.Background(), mustCollection(t, phqBundle))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected PHQ9 and derived SI summaries, got %d", len(out))
	}
	if _, ok := out["Questionnaire/mystery"]; ok {
		t.Error("questionnaire without definition should be omitted")
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("expected loader calls for mystery and SI only, got %d", got)
	}

	phq := out["Questionnaire/CIRG-PHQ9"]
	if phq == nil {
		t.Fatal("missing PHQ9 summary")
	}
	if got := rowIDs(phq.ResponseData); !equalStrings(got, []string{"phq9-response-2", "phq9-response-1"}) {
		t.Errorf("unexpected PHQ9 rows %v", got)
	}
	if s := phq.ResponseData[1].Score; s == nil || *s != 12 {
		t.Errorf("expected explicit total 12, got %v", s)
	}
	if phq.ResponseData[1].ScoreSeverity != "moderate" {
		t.Errorf("expected moderate, got %q", phq.ResponseData[1].ScoreSeverity)
	}
	if phq.Questionnaire == nil || phq.Questionnaire.ID != "CIRG-PHQ9" {
		t.Error("expected bundled definition on the summary")
	}
	if len(phq.ChartData) != 2 || phq.ChartData[0].ID != "phq9-response-1" {
		t.Errorf("unexpected chart data %+v", phq.ChartData)
	}

	si := out["Questionnaire/CIRG-SI"]
	if si == nil {
		t.Fatal("missing derived SI summary")
	}
	if si.Error != "" {
		t.Errorf("unexpected error %q", si.Error)
	}
	if got := rowIDs(si.ResponseData); !equalStrings(got, []string{"phq9-response-2_CIRG-SI", "phq9-response-1_CIRG-SI"}) {
		t.Errorf("unexpected SI rows %v", got)
	}
	row := si.ResponseData[1]
	if row.Score == nil || *row.Score != 2 || row.ScoreSeverity != "high" {
		t.Errorf("expected SI score 2/high, got %v/%q", row.Score, row.ScoreSeverity)
	}
}

func TestEngine_SummarizeAll_LoaderError(t *testing.T) {
	boom := errors.New("fhir server unavailable")
	loader := LoaderFunc(func(ctx context.Context, ref string) (*fhir.Questionnaire, error) {
		return nil, boom
	})
	e := newTestEngine(t, loader)

	_, err := e.SummarizeAll(context.Background(), mustCollection(t, phqBundle))
	if !errors.Is(err, boom) {
		t.Fatalf("expected loader error, got %v", err)
	}
}

func TestEngine_SummarizeQuestionnaire_LoaderTimeout(t *testing.T) {
	loader := LoaderFunc(func(ctx context.Context, ref string) (*fhir.Questionnaire, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	e := newTestEngine(t, loader, WithLoaderTimeout(20*time.Millisecond))

	_, err := e.SummarizeQuestionnaire(context.Background(), mustCollection(t, phqBundle), "Questionnaire/mystery")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestEngine_SummarizeQuestionnaire_FromLoader(t *testing.T) {
	loader := LoaderFunc(func(ctx context.Context, ref string) (*fhir.Questionnaire, error) {
		if ref != "Questionnaire/mystery" {
			return nil, nil
		}
		return questionnaire("mystery", defItem("x", "integer")), nil
	})
	e := newTestEngine(t, loader)

	s, err := e.SummarizeQuestionnaire(context.Background(), mustCollection(t, phqBundle), "Questionnaire/mystery")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s == nil || len(s.ResponseData) != 1 {
		t.Fatalf("expected one row, got %+v", s)
	}
	if sc := s.ResponseData[0].Score; sc == nil || *sc != 1 {
		t.Errorf("expected score 1, got %v", sc)
	}
}

func TestEngine_DerivedWithoutHosts(t *testing.T) {
	e := newTestEngine(t, nil)
	c := mustCollection(t, `[]`)

	s := e.SummarizeQuestionnaireSync(c, "Questionnaire/CIRG-SI")
	if s == nil {
		t.Fatal("expected a summary carrying the error")
	}
	if s.Error != ErrNoHostResponses.Error() {
		t.Errorf("unexpected error %q", s.Error)
	}
	if s.ResponseData == nil || len(s.ResponseData) != 0 {
		t.Error("expected empty response data")
	}
}

func TestEngine_DerivedWithExplicitHosts(t *testing.T) {
	e := newTestEngine(t, nil)
	host := response("h1", "Questionnaire/other-host", "2024-01-01",
		fhir.ResponseItem{LinkID: "/44260-8", BareAnswer: float64(3)})

	s := e.SummarizeQuestionnaireSync(&fhir.Collection{}, "Questionnaire/CIRG-SI", host)
	if s == nil || len(s.ResponseData) != 1 {
		t.Fatalf("expected one derived row, got %+v", s)
	}
	row := s.ResponseData[0]
	if row.ID != "h1_CIRG-SI" || row.Score == nil || *row.Score != 3 {
		t.Errorf("unexpected row %+v", row)
	}
}

func TestEngine_UnknownQuestionnaireOmitted(t *testing.T) {
	e := newTestEngine(t, nil)
	if s := e.SummarizeQuestionnaireSync(mustCollection(t, phqBundle), "Questionnaire/mystery"); s != nil {
		t.Errorf("expected nil summary, got %+v", s)
	}
	if s := e.SummarizeQuestionnaireSync(nil, "Questionnaire/CIRG-PHQ9"); s == nil || len(s.ResponseData) != 0 {
		t.Errorf("expected an empty PHQ9 summary, got %+v", s)
	}
}

func TestEngine_IncludeInProgress(t *testing.T) {
	e := newTestEngine(t, nil, WithCompletedOnly(false))
	s := e.SummarizeQuestionnaireSync(mustCollection(t, phqBundle), "Questionnaire/CIRG-PHQ9")
	if s == nil || len(s.ResponseData) != 3 || s.ResponseData[0].ID != "draft" {
		t.Fatalf("expected draft first among 3 rows, got %+v", s)
	}
}

func TestEngine_DeriveFromBundle(t *testing.T) {
	e := newTestEngine(t, nil)
	c := mustCollection(t, phqBundle)
	out := e.DeriveFromBundle(c, []string{"CIRG-PHQ9"}, siOptions())
	if got := responseIDs(out); !equalStrings(got, []string{"phq9-response-1_CIRG-SI", "phq9-response-2_CIRG-SI"}) {
		t.Errorf("unexpected derived ids %v", got)
	}
	if e.DeriveFromBundle(nil, nil, siOptions()) != nil {
		t.Error("expected nil for nil collection")
	}
}
