// Package brief assembles the consultation brief from a project's answers
// and renders it to HTML and PDF.
package brief

import (
	"errors"
	"time"

	"uccs/api/internal/intake"
	"uccs/api/internal/store"
)

type Item struct {
	Label string
	Value string
}

type Section struct {
	Phase string
	Title string
	Items []Item
}

// Document is one assembled brief, ready to render.
type Document struct {
	ProjectName string
	ClientName  string
	ProjectType string
	GeneratedAt time.Time
	Sections    []Section
}

// Result contains a rendered binary artifact.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates the headless browser is not installed.
var ErrPDFDependencyMissing = errors.New("brief pdf dependency missing")

// Build walks the questionnaire in phase/order sequence and groups one item
// per question into phase sections. Questions must already be sorted by
// phase then order, as the store returns them. Unanswered questions appear
// with an em dash so the brief shows gaps rather than hiding them.
func Build(project store.Project, client store.Client, questions []store.Question, answers map[string]string) Document {
	doc := Document{
		ProjectName: project.Name,
		ClientName:  client.Name,
		ProjectType: project.ProjectType,
		GeneratedAt: time.Now(),
	}

	byPhase := make(map[string]int)
	for _, q := range questions {
		idx, ok := byPhase[q.Phase]
		if !ok {
			idx = len(doc.Sections)
			byPhase[q.Phase] = idx
			doc.Sections = append(doc.Sections, Section{
				Phase: q.Phase,
				Title: intake.PhaseTitle(q.Phase),
			})
		}
		doc.Sections[idx].Items = append(doc.Sections[idx].Items, Item{
			Label: q.QuestionText,
			Value: intake.DisplayValue(answers[q.ID]),
		})
	}
	return doc
}
