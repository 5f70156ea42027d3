package intake

import (
	"math"

	"uccs/api/internal/store"
)

// CountMode selects the progress denominator. CountAll keeps every
// question in the total whether or not its showIf rule currently hides it
// (the historical behavior); CountVisible evaluates showIf against the
// answer snapshot and counts only visible questions.
type CountMode int

const (
	CountAll CountMode = iota
	CountVisible
)

type PhaseProgress struct {
	Phase    string
	Answered int
	Total    int
}

type Report struct {
	Answered int
	Total    int
	Percent  int
	Phases   []PhaseProgress
}

// Progress derives completion from persisted answers against the schema.
// A question counts as answered when its decoded value is non-empty; a
// checkbox row with zero selections is unanswered.
func Progress(questions []store.Question, answers map[string]string, mode CountMode) Report {
	report := Report{}
	byPhase := make(map[string]int)

	for _, q := range questions {
		if mode == CountVisible && !Visible(q, answers) {
			continue
		}
		idx, ok := byPhase[q.Phase]
		if !ok {
			idx = len(report.Phases)
			byPhase[q.Phase] = idx
			report.Phases = append(report.Phases, PhaseProgress{Phase: q.Phase})
		}
		report.Phases[idx].Total++
		report.Total++
		if !Decode(answers[q.ID]).IsEmpty() {
			report.Phases[idx].Answered++
			report.Answered++
		}
	}

	if report.Total > 0 {
		report.Percent = int(math.Round(100 * float64(report.Answered) / float64(report.Total)))
	}
	return report
}
