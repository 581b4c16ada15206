package scoring

// ChartPoint is one plotted response.
type ChartPoint struct {
	ID        string              `json:"id"`
	Date      string              `json:"date"`
	Total     *float64            `json:"total"`
	Severity  string              `json:"severity"`
	Subscores map[string]*float64 `json:"subscores,omitempty"`
}

// ChartSeries returns the scored rows in chronological order, skipping rows
// with neither a date nor a score since they cannot be placed on an axis.
func ChartSeries(rows []ResponseSummaryRow) []ChartPoint {
	out := make([]ChartPoint, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		if r.Date == "" && r.Score == nil {
			continue
		}
		out = append(out, ChartPoint{
			ID:        r.ID,
			Date:      r.Date,
			Total:     r.Score,
			Severity:  r.ScoreSeverity,
			Subscores: r.Subscores,
		})
	}
	return out
}

// PrintTable is a question-by-date grid of answers.
type PrintTable struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// FormatPrintResponseData lays rows out as a table with one column per
// response and one row per question, in first-seen order, followed by a
// score row. It returns nil when there is nothing to render.
func FormatPrintResponseData(rows []ResponseSummaryRow) *PrintTable {
	if len(rows) == 0 {
		return nil
	}
	t := &PrintTable{Headers: make([]string, 0, len(rows)+1)}
	t.Headers = append(t.Headers, "Question")
	for _, r := range rows {
		t.Headers = append(t.Headers, r.Date)
	}

	var order []string
	questions := make(map[string]string)
	for _, r := range rows {
		for _, qa := range r.Responses {
			if _, ok := questions[qa.ID]; !ok {
				order = append(order, qa.ID)
				questions[qa.ID] = qa.Question
			}
		}
	}
	for _, id := range order {
		line := make([]string, 0, len(rows)+1)
		line = append(line, questions[id])
		for _, r := range rows {
			line = append(line, answerFor(r.Responses, id))
		}
		t.Rows = append(t.Rows, line)
	}

	score := make([]string, 0, len(rows)+1)
	score = append(score, "Score")
	for _, r := range rows {
		if r.Score == nil {
			score = append(score, "")
			continue
		}
		s := formatValue(*r.Score)
		if r.ScoreSeverity != "" {
			s += " (" + r.ScoreSeverity + ")"
		}
		score = append(score, s)
	}
	t.Rows = append(t.Rows, score)
	return t
}

func answerFor(qas []QA, id string) string {
	for _, qa := range qas {
		if qa.ID == id {
			return qa.Answer
		}
	}
	return ""
}
