package definitions

import (
	"context"

	"github.com/ehr/proscore/internal/domain/scoring"
	"github.com/ehr/proscore/internal/platform/fhir"
)

// Chain asks each loader in turn and returns the first definition found.
// An error from any loader ends the lookup.
type Chain []scoring.DefinitionLoader

func (c Chain) LoadQuestionnaire(ctx context.Context, ref string) (*fhir.Questionnaire, error) {
	for _, l := range c {
		if l == nil {
			continue
		}
		q, err := l.LoadQuestionnaire(ctx, ref)
		if err != nil {
			return nil, err
		}
		if q != nil {
			return q, nil
		}
	}
	return nil, nil
}

// NewChain drops nil loaders and returns nil when none remain.
func NewChain(loaders ...scoring.DefinitionLoader) scoring.DefinitionLoader {
	var c Chain
	for _, l := range loaders {
		if l != nil {
			c = append(c, l)
		}
	}
	switch len(c) {
	case 0:
		return nil
	case 1:
		return c[0]
	}
	return c
}
