package scoring

import (
	"strings"

	"github.com/ehr/proscore/internal/platform/fhir"
)

// ScoreOf resolves the numeric score of the item linkID within one flattened
// response. Resolution order: a numeric primitive on the first answer, the
// ordinal weight of the matching answerOption in def, the config's
// fallbackScoreMap. Anything else yields nil.
func ScoreOf(def *fhir.Questionnaire, flat []*fhir.ResponseItem, linkID string, cfg *Config) *float64 {
	mode := cfg.mode()
	it := findFlat(flat, linkID, mode)
	if it == nil {
		return nil
	}
	if len(it.Answer) == 0 {
		if v, ok := bareNumeric(it.BareAnswer); ok {
			return &v
		}
		return nil
	}
	first := &it.Answer[0]
	if p, ok := PrimitiveOf(first); ok {
		if v, ok := NumericOf(p); ok {
			return &v
		}
	}
	coded, ok := CodingOf(first)
	if !ok {
		return nil
	}
	if v, ok := ordinalOf(def, it.LinkID, coded, mode); ok {
		return &v
	}
	if cfg != nil && coded.Code != "" {
		if v, ok := cfg.FallbackScoreMap[coded.Code]; ok {
			f := float64(v)
			return &f
		}
	}
	return nil
}

// ordinalOf looks up the ordinal weight of the option with the answer's code.
func ordinalOf(def *fhir.Questionnaire, linkID string, coded CodedValue, mode MatchMode) (float64, bool) {
	item := findDefinitionItem(def, linkID, mode)
	if item == nil || coded.Code == "" {
		return 0, false
	}
	for i := range item.AnswerOption {
		opt := &item.AnswerOption[i]
		if opt.ValueCoding == nil || opt.ValueCoding.Code != coded.Code {
			continue
		}
		if opt.ValueCoding.System != "" && coded.System != "" && !strings.EqualFold(opt.ValueCoding.System, coded.System) {
			continue
		}
		return opt.OrdinalValue()
	}
	return 0, false
}

// sumAll adds the scores of every linkId and returns nil unless all of them
// resolve.
func sumAll(def *fhir.Questionnaire, flat []*fhir.ResponseItem, linkIDs []string, cfg *Config) *float64 {
	if len(linkIDs) == 0 {
		return nil
	}
	var total float64
	for _, id := range linkIDs {
		s := ScoreOf(def, flat, id, cfg)
		if s == nil {
			return nil
		}
		total += *s
	}
	return &total
}

// sumAnswered adds the scores that resolve and returns nil when none do.
func sumAnswered(def *fhir.Questionnaire, flat []*fhir.ResponseItem, linkIDs []string, cfg *Config) *float64 {
	var total float64
	found := false
	for _, id := range linkIDs {
		if s := ScoreOf(def, flat, id, cfg); s != nil {
			total += *s
			found = true
		}
	}
	if !found {
		return nil
	}
	return &total
}

func clamp(v *float64, lo, hi float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	if c < lo {
		c = lo
	}
	if c > hi {
		c = hi
	}
	return &c
}
