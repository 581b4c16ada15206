package scoring

import "testing"

func TestNormalizeRef(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Questionnaire/CIRG-PHQ9", "cirg-phq9"},
		{"/Questionnaire/PHQ9", "phq9"},
		{"  questionnaire/abc  ", "abc"},
		{"http://example.org/q/phq9", "http://example.org/q/phq9"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeRef(tt.in); got != tt.want {
			t.Errorf("NormalizeRef(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMatches_FuzzyAcceptsPunctuationDifferences(t *testing.T) {
	cfg := &Config{QuestionnaireID: "phq9"}
	if !Matches("PHQ-9", cfg) {
		t.Error("expected PHQ-9 to match phq9 in fuzzy mode")
	}
	if !Matches("Questionnaire/CIRG-PHQ9", cfg) {
		t.Error("expected containment to match in fuzzy mode")
	}
}

func TestMatches_StrictRequiresEquality(t *testing.T) {
	cfg := &Config{QuestionnaireID: "phq9", MatchMode: MatchStrict}
	if Matches("PHQ-9", cfg) {
		t.Error("expected PHQ-9 not to match phq9 in strict mode")
	}
	if !Matches("Questionnaire/PHQ9", cfg) {
		t.Error("expected case-insensitive equality to match in strict mode")
	}
}

func TestMatches_EmptyNeverMatches(t *testing.T) {
	if Matches("", &Config{QuestionnaireID: "phq9"}) {
		t.Error("empty candidate matched")
	}
	if Matches("phq9", &Config{}) {
		t.Error("config without identifiers matched")
	}
	if Matches("phq9", nil) {
		t.Error("nil config matched")
	}
}

func TestMatches_URLNameAndID(t *testing.T) {
	cfg := &Config{
		QuestionnaireURL:  "http://www.cdc.gov/ncbddd/fasd/phq9",
		QuestionnaireID:   "CIRG-PHQ9",
		QuestionnaireName: "PHQ9",
		MatchMode:         MatchStrict,
	}
	for _, ref := range []string{"http://www.cdc.gov/ncbddd/fasd/phq9", "Questionnaire/CIRG-PHQ9", "phq9"} {
		if !Matches(ref, cfg) {
			t.Errorf("expected %q to match", ref)
		}
	}
	if Matches("Questionnaire/CIRG-GAD7", cfg) {
		t.Error("unexpected match for a different instrument")
	}
}

func TestLinkIDMatches(t *testing.T) {
	tests := []struct {
		a, b string
		mode MatchMode
		want bool
	}{
		{"/44250-9", "/44250-9", MatchStrict, true},
		{" /44250-9 ", "/44250-9", MatchStrict, true},
		{"44250-9", "/44250-9", MatchStrict, false},
		{"44250-9", "/44250-9", MatchFuzzy, true},
		{"Q1", "q1", MatchFuzzy, true},
		{"q1", "", MatchFuzzy, false},
		{"q1", "q2", MatchFuzzy, false},
		{"q1", "q10", MatchFuzzy, false},
		{"q18", "q1", MatchFuzzy, false},
		{"q1", "phq9-q1", MatchFuzzy, true},
		{"phq9/q1/score", "Q1", MatchFuzzy, true},
		{"/", "/", MatchFuzzy, false},
	}
	for _, tt := range tests {
		if got := LinkIDMatches(tt.a, tt.b, tt.mode); got != tt.want {
			t.Errorf("LinkIDMatches(%q, %q, %s) = %v, want %v", tt.a, tt.b, tt.mode, got, tt.want)
		}
	}
}

func TestHostMatches(t *testing.T) {
	tests := []struct {
		ref, host string
		want      bool
	}{
		{"Questionnaire/CIRG-PHQ9", "CIRG-PHQ9", true},
		{"Questionnaire/CIRG-PHQ9|1.0", "cirg-phq9", true},
		{"http://example.org/Questionnaire/PHQ9", "PHQ9", true},
		{"Questionnaire/CIRG-PHQ9", "PHQ9", false},
		{"", "PHQ9", false},
	}
	for _, tt := range tests {
		if got := hostMatches(tt.ref, tt.host); got != tt.want {
			t.Errorf("hostMatches(%q, %q) = %v, want %v", tt.ref, tt.host, got, tt.want)
		}
	}
}
