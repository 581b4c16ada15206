package scoring

import (
	"strings"

	"github.com/ehr/proscore/internal/platform/fhir"
)

// answerableTypes are the item types that carry an answer.
var answerableTypes = map[string]bool{
	"boolean":     true,
	"decimal":     true,
	"integer":     true,
	"date":        true,
	"dateTime":    true,
	"time":        true,
	"string":      true,
	"text":        true,
	"url":         true,
	"choice":      true,
	"open-choice": true,
	"attachment":  true,
	"reference":   true,
	"quantity":    true,
	"coding":      true,
}

// PatientContext carries what the strategies read about the patient.
type PatientContext struct {
	Conditions []*fhir.Condition
}

// HasConditionCode reports whether any condition carries code.
func (p *PatientContext) HasConditionCode(code string) bool {
	if p == nil || code == "" {
		return false
	}
	for _, c := range p.Conditions {
		if c != nil && c.Code.HasCode(code) {
			return true
		}
	}
	return false
}

// Summarize scores every response against def and cfg and returns one row
// per response, newest first. Identical inputs give identical output; the
// inputs are never modified.
func Summarize(responses []*fhir.QuestionnaireResponse, def *fhir.Questionnaire, cfg *Config, patient *PatientContext) []ResponseSummaryRow {
	if cfg == nil {
		cfg = &Config{}
	}
	sorted := SortNewestFirst(nonNil(responses))
	rows := make([]ResponseSummaryRow, 0, len(sorted))
	strategy := strategyFor(cfg.StrategyKind())
	for _, qr := range sorted {
		rows = append(rows, strategy(qr, def, cfg, patient))
	}
	return rows
}

func nonNil(in []*fhir.QuestionnaireResponse) []*fhir.QuestionnaireResponse {
	out := make([]*fhir.QuestionnaireResponse, 0, len(in))
	for _, qr := range in {
		if qr != nil {
			out = append(out, qr)
		}
	}
	return out
}

// isAnswerable reports whether a definition item counts toward scoring.
func isAnswerable(item *fhir.QuestionnaireItem) bool {
	return answerableTypes[item.Type] && !item.ReadOnly && !item.IsCalculated() &&
		!strings.Contains(item.LinkID, "ignore")
}

// ScoreLinkIDs returns the configured scoring items, or every answerable
// item of def except the explicit total-score item.
func ScoreLinkIDs(def *fhir.Questionnaire, cfg *Config) []string {
	if len(cfg.QuestionLinkIDs) > 0 {
		return cfg.QuestionLinkIDs
	}
	var ids []string
	def.Walk(func(item *fhir.QuestionnaireItem) {
		if !isAnswerable(item) {
			return
		}
		if cfg.ScoringQuestionID != "" && LinkIDMatches(item.LinkID, cfg.ScoringQuestionID, MatchStrict) {
			return
		}
		ids = append(ids, item.LinkID)
	})
	return ids
}

// rowContext is the per-response state shared by every strategy.
type rowContext struct {
	qr     *fhir.QuestionnaireResponse
	def    *fhir.Questionnaire
	cfg    *Config
	flat   []*fhir.ResponseItem
	linkID []string
}

func newRowContext(qr *fhir.QuestionnaireResponse, def *fhir.Questionnaire, cfg *Config, scoreLinkIDs []string) *rowContext {
	return &rowContext{qr: qr, def: def, cfg: cfg, flat: Flatten(qr.Item), linkID: scoreLinkIDs}
}

func (rc *rowContext) score(linkID string) *float64 {
	return ScoreOf(rc.def, rc.flat, linkID, rc.cfg)
}

// baseRow fills the fields that do not depend on the scoring strategy.
func (rc *rowContext) baseRow(hidden []string) ResponseSummaryRow {
	qr := rc.qr
	total, answered := rc.counts()
	row := ResponseSummaryRow{
		ID:                 qr.ID,
		Date:               qr.Authored,
		Responses:          rc.qaList(hidden),
		TotalItems:         total,
		TotalAnsweredItems: answered,
		AuthoredDate:       qr.Authored,
		LastUpdated:        qr.LastUpdated(),
		ScoreSeverity:      SeverityLow,
		ScoringParams: ScoringParams{
			Strategy:          rc.cfg.StrategyKind(),
			MaxScore:          rc.cfg.MaxScore,
			ScoringQuestionID: rc.cfg.ScoringQuestionID,
			QuestionLinkIDs:   rc.linkID,
			SeverityBands:     rc.cfg.SeverityBands,
		},
	}
	if row.Date == "" {
		row.Date = row.LastUpdated
	}
	return row
}

// counts returns totalItems and totalAnsweredItems. Answered items are the
// distinct answered linkIds among the scoring items; the explicit total
// item is not counted when it is one of only two flattened items.
func (rc *rowContext) counts() (int, int) {
	countable := rc.linkID
	if len(countable) == 0 {
		countable = distinctLeafLinkIDs(rc.flat)
	}
	total := len(countable)

	excludeScoring := rc.cfg.ScoringQuestionID != "" && len(rc.flat) == 2
	seen := make(map[string]bool)
	answered := 0
	for _, it := range rc.flat {
		if !it.HasAnswer() || seen[it.LinkID] {
			continue
		}
		if excludeScoring && LinkIDMatches(it.LinkID, rc.cfg.ScoringQuestionID, MatchStrict) {
			continue
		}
		if !containsLinkID(countable, it.LinkID) {
			continue
		}
		seen[it.LinkID] = true
		answered++
	}
	if answered > total {
		answered = total
	}
	return total, answered
}

func containsLinkID(ids []string, linkID string) bool {
	for _, id := range ids {
		if LinkIDMatches(id, linkID, MatchStrict) {
			return true
		}
	}
	return false
}

func distinctLeafLinkIDs(flat []*fhir.ResponseItem) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, it := range flat {
		if it.LinkID == "" || seen[it.LinkID] {
			continue
		}
		if len(it.Item) > 0 && !it.HasAnswer() {
			continue
		}
		seen[it.LinkID] = true
		ids = append(ids, it.LinkID)
	}
	return ids
}

// qaList renders every answered item in document order, skipping hidden
// linkIds.
func (rc *rowContext) qaList(hidden []string) []QA {
	out := make([]QA, 0, len(rc.flat))
	for _, it := range rc.flat {
		if !it.HasAnswer() || containsLinkID(hidden, it.LinkID) {
			continue
		}
		question := it.Text
		if d := findDefinitionItem(rc.def, it.LinkID, MatchStrict); d != nil && d.Text != "" {
			question = d.Text
		}
		out = append(out, QA{
			ID:       it.LinkID,
			Question: question,
			Answer:   itemAnswerText(it),
			Text:     it.Text,
		})
	}
	return out
}

// genericScore is the explicit total item when it resolves, otherwise the
// all-or-nothing sum of the scoring items.
func (rc *rowContext) genericScore() *float64 {
	if rc.cfg.ScoringQuestionID != "" {
		if s := rc.score(rc.cfg.ScoringQuestionID); s != nil {
			return s
		}
	}
	return sumAll(rc.def, rc.flat, rc.linkID, rc.cfg)
}

func classify(row *ResponseSummaryRow, bands []SeverityBand) {
	row.ScoreSeverity = SeverityOf(row.Score, bands)
	row.ScoreMeaning = nil
	if row.Score != nil {
		row.ScoreMeaning = meaningForLabel(row.ScoreSeverity, bands)
	}
}

// summarizeGeneric is the default strategy.
func summarizeGeneric(qr *fhir.QuestionnaireResponse, def *fhir.Questionnaire, cfg *Config, _ *PatientContext) ResponseSummaryRow {
	rc := newRowContext(qr, def, cfg, ScoreLinkIDs(def, cfg))
	row := rc.baseRow(nil)
	row.Score = rc.genericScore()
	classify(&row, cfg.SeverityBands)
	return row
}
