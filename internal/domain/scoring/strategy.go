package scoring

import (
	"fmt"
	"strings"

	"github.com/ehr/proscore/internal/platform/fhir"
)

// StrategyKind selects how a questionnaire is scored. The set is closed;
// anything unrecognised is scored with StrategyGeneric.
type StrategyKind string

const (
	StrategyGeneric          StrategyKind = "generic"
	StrategyEducationAware   StrategyKind = "education-aware"
	StrategySummedWithSafety StrategyKind = "summed-with-safety"
	StrategyDualSubscore     StrategyKind = "dual-subscore"
)

// Reserved instrument keys bound to a non-generic strategy.
const (
	KeySLUMS   = "CIRG-SLUMS"
	KeyMH18    = "CIRG-MH18"
	KeyMiniCog = "CIRG-MINICOG"
)

var reservedStrategies = map[string]StrategyKind{
	KeySLUMS:   StrategyEducationAware,
	KeyMH18:    StrategySummedWithSafety,
	KeyMiniCog: StrategyDualSubscore,
}

// Valid reports whether k is one of the known kinds.
func (k StrategyKind) Valid() bool {
	switch k {
	case StrategyGeneric, StrategyEducationAware, StrategySummedWithSafety, StrategyDualSubscore:
		return true
	}
	return false
}

// StrategyForKey returns the strategy reserved for an instrument key. The
// key may be given as a "Questionnaire/<id>" reference.
func StrategyForKey(key string) StrategyKind {
	k := NormalizeRef(stripVersion(key))
	for reserved, kind := range reservedStrategies {
		if strings.EqualFold(reserved, k) {
			return kind
		}
	}
	return StrategyGeneric
}

// StrategyKind resolves the effective strategy: an explicit valid Strategy,
// then the reserved key table, then generic.
func (c *Config) StrategyKind() StrategyKind {
	if c == nil {
		return StrategyGeneric
	}
	if c.Strategy != "" && c.Strategy.Valid() {
		return c.Strategy
	}
	return StrategyForKey(c.Key)
}

type strategyFunc func(qr *fhir.QuestionnaireResponse, def *fhir.Questionnaire, cfg *Config, patient *PatientContext) ResponseSummaryRow

func strategyFor(kind StrategyKind) strategyFunc {
	switch kind {
	case StrategyEducationAware:
		return summarizeEducationAware
	case StrategySummedWithSafety:
		return summarizeSummedWithSafety
	case StrategyDualSubscore:
		return summarizeDualSubscore
	default:
		return summarizeGeneric
	}
}

// DefaultLowEducationMarker is the Condition code that selects the
// low-education cutoffs.
const DefaultLowEducationMarker = "CIRG-LOW-EDUCATION"

// SLUMS cutoffs for patients with and without a high school education.
var (
	slumsStandardBands = []SeverityBand{
		{Min: 27, Label: "low", Meaning: "Normal"},
		{Min: 21, Label: "moderate", Meaning: "Mild neurocognitive disorder"},
		{Min: 0, Label: "high", Meaning: "Dementia"},
	}
	slumsLowEducationBands = []SeverityBand{
		{Min: 25, Label: "low", Meaning: "Normal"},
		{Min: 20, Label: "moderate", Meaning: "Mild neurocognitive disorder"},
		{Min: 0, Label: "high", Meaning: "Dementia"},
	}
)

// summarizeEducationAware scores generically and classifies against the
// cutoff set chosen by the patient's education marker.
func summarizeEducationAware(qr *fhir.QuestionnaireResponse, def *fhir.Questionnaire, cfg *Config, patient *PatientContext) ResponseSummaryRow {
	rc := newRowContext(qr, def, cfg, ScoreLinkIDs(def, cfg))
	row := rc.baseRow(nil)
	row.Score = rc.genericScore()

	marker := DefaultLowEducationMarker
	standard, low := slumsStandardBands, slumsLowEducationBands
	if p := cfg.Education; p != nil {
		if p.MarkerCode != "" {
			marker = p.MarkerCode
		}
		if len(p.Standard) > 0 {
			standard = SortBands(p.Standard)
		}
		if len(p.LowEducation) > 0 {
			low = SortBands(p.LowEducation)
		}
	}
	lowEducation := patient.HasConditionCode(marker)
	bands := standard
	if lowEducation {
		bands = low
	}
	row.ScoringParams.SeverityBands = bands
	row.ScoringParams.LowEducation = &lowEducation
	classify(&row, bands)
	return row
}

// Defaults for the summed-with-safety strategy.
const (
	defaultSafetyLinkID = "q18"
	defaultSafetyCutoff = 18
	defaultSafetyAlert  = "Safety item endorsed: review for risk of self-harm."
)

func defaultSafetyItems() []string {
	ids := make([]string, 18)
	for i := range ids {
		ids[i] = fmt.Sprintf("q%d", i+1)
	}
	return ids
}

// summarizeSummedWithSafety sums the answered items and separately checks a
// designated safety item. Exceeding the cutoff or a positive safety item
// makes the row "high".
func summarizeSummedWithSafety(qr *fhir.QuestionnaireResponse, def *fhir.Questionnaire, cfg *Config, _ *PatientContext) ResponseSummaryRow {
	p := SafetyParams{SafetyLinkID: defaultSafetyLinkID, Cutoff: defaultSafetyCutoff, AlertNote: defaultSafetyAlert}
	if cfg.Safety != nil {
		p.ItemLinkIDs = cfg.Safety.ItemLinkIDs
		if cfg.Safety.SafetyLinkID != "" {
			p.SafetyLinkID = cfg.Safety.SafetyLinkID
		}
		if cfg.Safety.Cutoff > 0 {
			p.Cutoff = cfg.Safety.Cutoff
		}
		if cfg.Safety.AlertNote != "" {
			p.AlertNote = cfg.Safety.AlertNote
		}
	}
	items := p.ItemLinkIDs
	if len(items) == 0 {
		items = cfg.QuestionLinkIDs
	}
	if len(items) == 0 {
		items = defaultSafetyItems()
	}

	rc := newRowContext(qr, def, cfg, items)
	row := rc.baseRow(nil)
	row.Score = sumAnswered(def, rc.flat, items, cfg)

	safety := safetyPositive(rc, p.SafetyLinkID)
	row.ScoringParams.SafetyPositive = &safety
	switch {
	case row.Score != nil && *row.Score > p.Cutoff:
		row.ScoreSeverity = "high"
	case safety:
		row.ScoreSeverity = "high"
	default:
		row.ScoreSeverity = SeverityOf(row.Score, cfg.SeverityBands)
	}
	row.ScoreMeaning = meaningForLabel(row.ScoreSeverity, cfg.SeverityBands)
	if safety {
		row.Alert = p.AlertNote
	}
	return row
}

// safetyPositive is true when the safety item scores at least 1 or is
// answered with boolean true.
func safetyPositive(rc *rowContext, linkID string) bool {
	if s := rc.score(linkID); s != nil {
		return *s >= 1
	}
	it := findFlat(rc.flat, linkID, rc.cfg.mode())
	if it == nil {
		return false
	}
	if len(it.Answer) > 0 {
		if p, ok := PrimitiveOf(&it.Answer[0]); ok && p.Kind == KindBoolean {
			return p.Value == true
		}
		return false
	}
	b, ok := it.BareAnswer.(bool)
	return ok && b
}

// Ranges of the dual-subscore instrument.
const (
	recallMax = 3
	clockMax  = 2
	totalMax  = 5
)

// Subscore names emitted by the dual-subscore strategy.
const (
	SubscoreWordRecall = "wordRecall"
	SubscoreClockDraw  = "clockDraw"
)

// summarizeDualSubscore computes a multi-item recall subscore and a
// single-item clock subscore, each clamped, and a total taken from an
// explicit total item or their clamped sum.
func summarizeDualSubscore(qr *fhir.QuestionnaireResponse, def *fhir.Questionnaire, cfg *Config, _ *PatientContext) ResponseSummaryRow {
	p := DualSubscoreParams{}
	if cfg.DualSubscore != nil {
		p = *cfg.DualSubscore
	}
	items := append(append([]string(nil), p.RecallLinkIDs...), p.ClockLinkID)
	if p.ClockLinkID == "" {
		items = items[:len(items)-1]
	}

	rc := newRowContext(qr, def, cfg, items)
	row := rc.baseRow(p.HiddenLinkIDs)

	recall := clamp(sumAll(def, rc.flat, p.RecallLinkIDs, cfg), 0, recallMax)
	var clock *float64
	if p.ClockLinkID != "" {
		clock = clamp(rc.score(p.ClockLinkID), 0, clockMax)
	}

	var total *float64
	if p.TotalLinkID != "" {
		total = clamp(rc.score(p.TotalLinkID), 0, totalMax)
	}
	if total == nil && recall != nil && clock != nil {
		sum := *recall + *clock
		total = clamp(&sum, 0, totalMax)
	}

	row.Score = total
	row.Subscores = map[string]*float64{
		SubscoreWordRecall: recall,
		SubscoreClockDraw:  clock,
	}
	classify(&row, cfg.SeverityBands)
	return row
}
