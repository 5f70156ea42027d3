package intake

import (
	"testing"

	"uccs/api/internal/store"
)

func progressSchema() []store.Question {
	return []store.Question{
		{ID: "goal", Phase: PhaseDiscovery, Order: 1, Type: store.QuestionCheckbox},
		{ID: "audience", Phase: PhaseAudience, Order: 1, Type: store.QuestionTextarea},
		{ID: "platform", Phase: PhaseFunctional, Order: 1, Type: store.QuestionDropdown},
		{
			ID: "payments", Phase: PhaseFunctional, Order: 2, Type: store.QuestionCheckbox,
			ShowIf: &store.ShowIf{QuestionID: "platform", Equals: "E-commerce"},
		},
	}
}

func TestProgressCountAll(t *testing.T) {
	answers := map[string]string{
		"goal":     `["Generate leads","Increase online sales"]`,
		"audience": "Small business owners",
	}
	report := Progress(progressSchema(), answers, CountAll)
	if report.Total != 4 || report.Answered != 2 || report.Percent != 50 {
		t.Fatalf("report: %+v", report)
	}
	if len(report.Phases) != 3 {
		t.Fatalf("phases: %+v", report.Phases)
	}
	functional := report.Phases[2]
	if functional.Phase != PhaseFunctional || functional.Total != 2 || functional.Answered != 0 {
		t.Fatalf("functional phase: %+v", functional)
	}
}

func TestProgressCountVisibleHidesGatedQuestion(t *testing.T) {
	answers := map[string]string{
		"goal":     "Generate leads",
		"audience": "Small business owners",
		"platform": "Brochure site",
	}
	report := Progress(progressSchema(), answers, CountVisible)
	if report.Total != 3 || report.Answered != 3 || report.Percent != 100 {
		t.Fatalf("report: %+v", report)
	}

	// Flipping the gate answer brings the hidden question back into the total.
	answers["platform"] = "E-commerce"
	report = Progress(progressSchema(), answers, CountVisible)
	if report.Total != 4 || report.Answered != 3 || report.Percent != 75 {
		t.Fatalf("report after gate flip: %+v", report)
	}
}

func TestProgressEmptyValuesDoNotCount(t *testing.T) {
	answers := map[string]string{
		"goal":     "",
		"audience": "filled",
	}
	report := Progress(progressSchema(), answers, CountAll)
	if report.Answered != 1 {
		t.Fatalf("blank value counted as answered: %+v", report)
	}
}

func TestProgressMonotonic(t *testing.T) {
	schema := progressSchema()
	answers := map[string]string{}
	last := Progress(schema, answers, CountAll)
	for _, step := range []struct{ id, value string }{
		{"audience", "Busy parents"},
		{"goal", `["Generate leads"]`},
		{"platform", "E-commerce"},
		{"payments", "Stripe"},
	} {
		answers[step.id] = step.value
		report := Progress(schema, answers, CountAll)
		if report.Answered < last.Answered || report.Percent < last.Percent {
			t.Fatalf("progress regressed after answering %s: %+v -> %+v", step.id, last, report)
		}
		last = report
	}
	if last.Percent != 100 {
		t.Fatalf("expected full completion, got %+v", last)
	}
}

func TestProgressZeroQuestions(t *testing.T) {
	report := Progress(nil, nil, CountAll)
	if report.Total != 0 || report.Percent != 0 {
		t.Fatalf("empty schema report: %+v", report)
	}
}

func TestVisibleMatchesAnyDecodedValue(t *testing.T) {
	q := store.Question{
		ID:     "payments",
		ShowIf: &store.ShowIf{QuestionID: "platform", Equals: "E-commerce"},
	}
	if Visible(q, map[string]string{"platform": `["Marketing","E-commerce"]`}) != true {
		t.Fatal("multi-value gate answer should satisfy the rule")
	}
	if Visible(q, map[string]string{"platform": "Brochure site"}) {
		t.Fatal("non-matching gate answer should hide the question")
	}
	if Visible(q, nil) {
		t.Fatal("missing gate answer should hide the question")
	}
}
