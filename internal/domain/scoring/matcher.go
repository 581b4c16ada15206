package scoring

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// NormalizeRef trims s, strips a leading "Questionnaire/" (with or without a
// leading slash) and lower-cases the result.
func NormalizeRef(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "/")
	if len(s) >= len("questionnaire/") && strings.EqualFold(s[:len("questionnaire/")], "questionnaire/") {
		s = s[len("questionnaire/"):]
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// stripVersion drops a canonical "|version" suffix.
func stripVersion(ref string) string {
	if i := strings.IndexByte(ref, '|'); i >= 0 {
		return ref[:i]
	}
	return ref
}

// compact keeps only letters and digits so that "PHQ-9" and "phq9" meet.
func compact(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// refMatches compares two already-normalized references.
func refMatches(a, b string, mode MatchMode) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if mode == MatchStrict {
		return false
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	ca, cb := compact(a), compact(b)
	if ca == "" || cb == "" {
		return false
	}
	return strings.Contains(ca, cb) || strings.Contains(cb, ca)
}

// Matches reports whether candidateRef identifies the questionnaire described
// by cfg, comparing against url, id and name in that order.
func Matches(candidateRef string, cfg *Config) bool {
	if cfg == nil {
		return false
	}
	return MatchesIdentifiers(candidateRef, cfg.QuestionnaireURL, cfg.QuestionnaireID, cfg.QuestionnaireName, cfg.mode())
}

// MatchesIdentifiers is Matches without a Config.
func MatchesIdentifiers(candidateRef, url, id, name string, mode MatchMode) bool {
	c := NormalizeRef(candidateRef)
	if c == "" {
		return false
	}
	mode = mode.orDefault()
	for _, field := range [...]string{url, id, name} {
		if refMatches(c, NormalizeRef(field), mode) {
			return true
		}
	}
	return false
}

// normalizeLinkID trims whitespace and leading slashes and lower-cases.
func normalizeLinkID(s string) string {
	return strings.ToLower(strings.TrimLeft(strings.TrimSpace(s), "/"))
}

// LinkIDMatches compares two linkIds. Strict requires equality after
// trimming. Fuzzy also accepts case differences, a missing leading slash and
// containment on segment boundaries, so "q1" finds "phq9-q1" but never "q10".
func LinkIDMatches(a, b string, mode MatchMode) bool {
	ta, tb := strings.TrimSpace(a), strings.TrimSpace(b)
	if ta == "" || tb == "" {
		return false
	}
	if mode == MatchStrict {
		return ta == tb
	}
	na, nb := normalizeLinkID(ta), normalizeLinkID(tb)
	if na == "" || nb == "" {
		return false
	}
	return na == nb || containsSegment(na, nb) || containsSegment(nb, na)
}

// containsSegment reports whether sub occurs in s with no letter or digit
// directly before or after it.
func containsSegment(s, sub string) bool {
	for from := 0; from <= len(s)-len(sub); {
		i := strings.Index(s[from:], sub)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(sub)
		if !alnumBefore(s, start) && !alnumAfter(s, end) {
			return true
		}
		from = start + 1
	}
	return false
}

func alnumBefore(s string, i int) bool {
	if i == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func alnumAfter(s string, i int) bool {
	if i >= len(s) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// hostMatches reports whether a response's literal questionnaire reference
// names hostID, either directly or as the last path segment of a canonical
// url.
func hostMatches(ref, hostID string) bool {
	r := NormalizeRef(stripVersion(ref))
	h := NormalizeRef(hostID)
	if r == "" || h == "" {
		return false
	}
	if r == h {
		return true
	}
	if i := strings.LastIndexByte(r, '/'); i >= 0 {
		return r[i+1:] == h
	}
	return false
}
