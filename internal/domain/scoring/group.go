package scoring

import (
	"sort"
	"time"

	"github.com/ehr/proscore/internal/platform/fhir"
)

// GroupOptions controls which responses take part in grouping.
type GroupOptions struct {
	CompletedOnly bool
}

func (o GroupOptions) keep(qr *fhir.QuestionnaireResponse) bool {
	if qr == nil {
		return false
	}
	return !o.CompletedOnly || qr.Status == fhir.ResponseStatusCompleted
}

// Group buckets responses by their literal questionnaire reference and sorts
// each bucket newest first. Responses without a reference are dropped.
func Group(responses []*fhir.QuestionnaireResponse, opts GroupOptions) map[string][]*fhir.QuestionnaireResponse {
	groups := make(map[string][]*fhir.QuestionnaireResponse)
	for _, qr := range responses {
		if !opts.keep(qr) || qr.Questionnaire == "" {
			continue
		}
		groups[qr.Questionnaire] = append(groups[qr.Questionnaire], qr)
	}
	for k, g := range groups {
		groups[k] = SortNewestFirst(g)
	}
	return groups
}

// GroupKeys returns the keys of groups in lexical order.
func GroupKeys(groups map[string][]*fhir.QuestionnaireResponse) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// stamp is an optional instant. Absent stamps order below every present one.
type stamp struct {
	at      time.Time
	present bool
}

func stampOf(s string) stamp {
	t, ok := fhir.ParseDateTime(s)
	return stamp{at: t, present: ok}
}

// newer reports whether a orders before b in a newest-first list.
func (a stamp) newer(b stamp) bool {
	if a.present != b.present {
		return a.present
	}
	return a.present && a.at.After(b.at)
}

func (a stamp) equal(b stamp) bool {
	return a.present == b.present && (!a.present || a.at.Equal(b.at))
}

// sortKey is what a response is ordered by: authored, or meta.lastUpdated
// when authored is missing, then meta.lastUpdated.
type sortKey struct {
	primary  stamp
	fallback stamp
}

func keyOf(qr *fhir.QuestionnaireResponse) sortKey {
	var k sortKey
	if qr == nil {
		return k
	}
	k.fallback = stampOf(qr.LastUpdated())
	k.primary = stampOf(qr.Authored)
	if !k.primary.present {
		k.primary = k.fallback
	}
	return k
}

// SortNewestFirst returns a copy of responses ordered by authored
// descending, using meta.lastUpdated when authored is absent and as the
// tie-breaker. Undated responses go last. The sort is stable.
func SortNewestFirst(responses []*fhir.QuestionnaireResponse) []*fhir.QuestionnaireResponse {
	out := make([]*fhir.QuestionnaireResponse, len(responses))
	copy(out, responses)
	keys := make(map[*fhir.QuestionnaireResponse]sortKey, len(out))
	for _, qr := range out {
		keys[qr] = keyOf(qr)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := keys[out[i]], keys[out[j]]
		if !a.primary.equal(b.primary) {
			return a.primary.newer(b.primary)
		}
		return a.fallback.newer(b.fallback)
	})
	return out
}

// ForQuestionnaire returns the responses that belong to cfg's questionnaire,
// newest first. Group keys are matched first; when none match, every
// response is scanned individually with any "|version" suffix removed.
func ForQuestionnaire(responses []*fhir.QuestionnaireResponse, cfg *Config, opts GroupOptions) []*fhir.QuestionnaireResponse {
	groups := Group(responses, opts)
	var matched []*fhir.QuestionnaireResponse
	for _, key := range GroupKeys(groups) {
		if Matches(key, cfg) {
			matched = append(matched, groups[key]...)
		}
	}
	if len(matched) > 0 {
		return SortNewestFirst(matched)
	}
	for _, qr := range responses {
		if !opts.keep(qr) {
			continue
		}
		if Matches(stripVersion(qr.Questionnaire), cfg) {
			matched = append(matched, qr)
		}
	}
	return SortNewestFirst(matched)
}
