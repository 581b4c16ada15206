package scoring

import (
	"context"

	"github.com/ehr/proscore/internal/platform/fhir"
)

// DefinitionLoader resolves a questionnaire definition by canonical
// reference. A nil definition with a nil error means "not found"; an error
// is a collaborator failure.
type DefinitionLoader interface {
	LoadQuestionnaire(ctx context.Context, ref string) (*fhir.Questionnaire, error)
}

// LoaderFunc adapts a function to DefinitionLoader.
type LoaderFunc func(ctx context.Context, ref string) (*fhir.Questionnaire, error)

func (f LoaderFunc) LoadQuestionnaire(ctx context.Context, ref string) (*fhir.Questionnaire, error) {
	return f(ctx, ref)
}

// BundleIndex finds Questionnaire resources shipped in the same bundle as
// the responses, keyed by "Questionnaire/<id>", name and url.
type BundleIndex struct {
	byKey map[string]*fhir.Questionnaire
	all   []*fhir.Questionnaire
}

// NewBundleIndex indexes qs. When two definitions share a key the first
// one wins.
func NewBundleIndex(qs []*fhir.Questionnaire) *BundleIndex {
	idx := &BundleIndex{byKey: make(map[string]*fhir.Questionnaire, len(qs)*3)}
	for _, q := range qs {
		if q == nil {
			continue
		}
		idx.all = append(idx.all, q)
		for _, k := range []string{
			fhir.FormatReference("Questionnaire", q.ID),
			q.Name,
			q.URL,
		} {
			nk := NormalizeRef(k)
			if nk == "" {
				continue
			}
			if _, exists := idx.byKey[nk]; !exists {
				idx.byKey[nk] = q
			}
		}
	}
	return idx
}

// Len returns the number of indexed definitions.
func (idx *BundleIndex) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.all)
}

// Find looks ref up directly, then by the identifiers in cfg, then by
// matching every definition against cfg.
func (idx *BundleIndex) Find(ref string, cfg *Config) *fhir.Questionnaire {
	if idx == nil || len(idx.all) == 0 {
		return nil
	}
	for _, k := range []string{ref, stripVersion(ref)} {
		if q, ok := idx.byKey[NormalizeRef(k)]; ok {
			return q
		}
	}
	if cfg == nil {
		return nil
	}
	for _, k := range []string{cfg.QuestionnaireURL, cfg.QuestionnaireID, cfg.QuestionnaireName} {
		if nk := NormalizeRef(k); nk != "" {
			if q, ok := idx.byKey[nk]; ok {
				return q
			}
		}
	}
	for _, q := range idx.all {
		if MatchesIdentifiers(q.URL, cfg.QuestionnaireURL, cfg.QuestionnaireID, cfg.QuestionnaireName, cfg.mode()) ||
			MatchesIdentifiers(q.ID, cfg.QuestionnaireURL, cfg.QuestionnaireID, cfg.QuestionnaireName, cfg.mode()) {
			return q
		}
	}
	return nil
}
