package scoring

// MatchMode selects how questionnaire references and linkIds are compared.
type MatchMode string

const (
	MatchFuzzy  MatchMode = "fuzzy"
	MatchStrict MatchMode = "strict"
)

// orDefault returns fuzzy for the zero value.
func (m MatchMode) orDefault() MatchMode {
	if m == MatchStrict {
		return MatchStrict
	}
	return MatchFuzzy
}

// SeverityBand converts a score at or above Min into Label.
type SeverityBand struct {
	Min     float64 `yaml:"min" json:"min"`
	Label   string  `yaml:"label" json:"label" validate:"required"`
	Meaning string  `yaml:"meaning,omitempty" json:"meaning,omitempty"`
}

// DeriveConfig declares that a questionnaire's single answer lives inside the
// responses of one or more host questionnaires.
type DeriveConfig struct {
	LinkID                string    `yaml:"linkId" json:"linkId" validate:"required"`
	HostIDs               []string  `yaml:"hostIds" json:"hostIds" validate:"min=1,dive,required"`
	TargetQuestionnaireID string    `yaml:"targetQuestionnaireId" json:"targetQuestionnaireId" validate:"required"`
	MatchMode             MatchMode `yaml:"matchMode,omitempty" json:"matchMode,omitempty" validate:"omitempty,oneof=strict fuzzy"`

	// NormalizeAnswerToCoding converts bare scalar answers. Nil selects
	// DefaultAnswerCoding.
	NormalizeAnswerToCoding AnswerNormalizer `yaml:"-" json:"-"`
}

// EducationParams configures the education-aware strategy.
type EducationParams struct {
	MarkerCode   string         `yaml:"markerCode,omitempty" json:"markerCode,omitempty"`
	Standard     []SeverityBand `yaml:"standard" json:"standard" validate:"dive"`
	LowEducation []SeverityBand `yaml:"lowEducation" json:"lowEducation" validate:"dive"`
}

// SafetyParams configures the summed-with-safety strategy.
type SafetyParams struct {
	ItemLinkIDs  []string `yaml:"itemLinkIds,omitempty" json:"itemLinkIds,omitempty"`
	SafetyLinkID string   `yaml:"safetyLinkId,omitempty" json:"safetyLinkId,omitempty"`
	Cutoff       float64  `yaml:"cutoff" json:"cutoff"`
	AlertNote    string   `yaml:"alertNote,omitempty" json:"alertNote,omitempty"`
}

// DualSubscoreParams configures the dual-subscore strategy.
type DualSubscoreParams struct {
	RecallLinkIDs []string `yaml:"recallLinkIds" json:"recallLinkIds"`
	ClockLinkID   string   `yaml:"clockLinkId" json:"clockLinkId"`
	TotalLinkID   string   `yaml:"totalLinkId,omitempty" json:"totalLinkId,omitempty"`
	HiddenLinkIDs []string `yaml:"hiddenLinkIds,omitempty" json:"hiddenLinkIds,omitempty"`
}

// Config is the per-instrument scoring configuration. Values handed out by
// the Registry are copies and may be adjusted by the caller.
type Config struct {
	Key               string         `yaml:"key" json:"key" validate:"required"`
	QuestionnaireID   string         `yaml:"questionnaireId,omitempty" json:"questionnaireId,omitempty"`
	QuestionnaireName string         `yaml:"questionnaireName,omitempty" json:"questionnaireName,omitempty"`
	QuestionnaireURL  string         `yaml:"questionnaireUrl,omitempty" json:"questionnaireUrl,omitempty"`
	Title             string         `yaml:"title,omitempty" json:"title,omitempty"`
	MatchMode         MatchMode      `yaml:"matchMode,omitempty" json:"matchMode,omitempty" validate:"omitempty,oneof=strict fuzzy"`
	Strategy          StrategyKind   `yaml:"strategy,omitempty" json:"strategy,omitempty" validate:"omitempty,strategy"`
	ScoringQuestionID string         `yaml:"scoringQuestionId,omitempty" json:"scoringQuestionId,omitempty"`
	QuestionLinkIDs   []string       `yaml:"questionLinkIds,omitempty" json:"questionLinkIds,omitempty"`
	MaxScore          float64        `yaml:"maxScore,omitempty" json:"maxScore,omitempty" validate:"gte=0"`
	SeverityBands     []SeverityBand `yaml:"severityBands,omitempty" json:"severityBands,omitempty" validate:"dive"`
	FallbackScoreMap  map[string]int `yaml:"fallbackScoreMap,omitempty" json:"fallbackScoreMap,omitempty"`
	DeriveFrom        *DeriveConfig  `yaml:"deriveFrom,omitempty" json:"deriveFrom,omitempty" validate:"omitempty"`

	Education    *EducationParams    `yaml:"education,omitempty" json:"education,omitempty" validate:"omitempty"`
	Safety       *SafetyParams       `yaml:"safety,omitempty" json:"safety,omitempty" validate:"omitempty"`
	DualSubscore *DualSubscoreParams `yaml:"dualSubscore,omitempty" json:"dualSubscore,omitempty" validate:"omitempty"`
}

// Clone returns a shallow copy; slices and maps are shared and must be
// treated as read-only.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

func (c *Config) mode() MatchMode {
	if c == nil {
		return MatchFuzzy
	}
	return c.MatchMode.orDefault()
}

// scorableWithoutDefinition reports whether the config alone names the items
// to score, so a summary can be produced when no definition resolves.
func (c *Config) scorableWithoutDefinition() bool {
	return len(c.QuestionLinkIDs) > 0 || c.ScoringQuestionID != "" ||
		c.DeriveFrom != nil || c.StrategyKind() != StrategyGeneric
}

// QA is one flattened question/answer pair of a response.
type QA struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Text     string `json:"text,omitempty"`
}

// ScoringParams echoes the parameters a row was scored with.
type ScoringParams struct {
	Strategy          StrategyKind   `json:"strategy"`
	MaxScore          float64        `json:"maxScore,omitempty"`
	ScoringQuestionID string         `json:"scoringQuestionId,omitempty"`
	QuestionLinkIDs   []string       `json:"questionLinkIds,omitempty"`
	SeverityBands     []SeverityBand `json:"severityBands,omitempty"`
	LowEducation      *bool          `json:"lowEducation,omitempty"`
	SafetyPositive    *bool          `json:"safetyPositive,omitempty"`
}

// ResponseSummaryRow is the scored view of one response.
type ResponseSummaryRow struct {
	ID                 string              `json:"id"`
	Date               string              `json:"date"`
	Responses          []QA                `json:"responses"`
	Score              *float64            `json:"score"`
	ScoreSeverity      string              `json:"scoreSeverity"`
	ScoreMeaning       *string             `json:"scoreMeaning"`
	TotalItems         int                 `json:"totalItems"`
	TotalAnsweredItems int                 `json:"totalAnsweredItems"`
	ScoringParams      ScoringParams       `json:"scoringParams"`
	AuthoredDate       string              `json:"authoredDate,omitempty"`
	LastUpdated        string              `json:"lastUpdated,omitempty"`
	Alert              string              `json:"alert,omitempty"`
	Subscores          map[string]*float64 `json:"subscores,omitempty"`
}
