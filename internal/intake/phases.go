package intake

import "uccs/api/internal/store"

// Intake phases in presentation order. The database phase enum declares
// the same sequence, so store queries ordered by phase agree with this.
const (
	PhaseDiscovery  = "DISCOVERY"
	PhaseAudience   = "AUDIENCE"
	PhaseFunctional = "FUNCTIONAL"
	PhaseTech       = "TECH"
	PhaseDesign     = "DESIGN"
	PhaseContent    = "CONTENT"
	PhaseStack      = "STACK"
)

var phaseOrder = []string{
	PhaseDiscovery,
	PhaseAudience,
	PhaseFunctional,
	PhaseTech,
	PhaseDesign,
	PhaseContent,
	PhaseStack,
}

var phaseTitles = map[string]string{
	PhaseDiscovery:  "Discovery",
	PhaseAudience:   "Audience & UX",
	PhaseFunctional: "Functional Requirements",
	PhaseTech:       "Technical Requirements",
	PhaseDesign:     "Design",
	PhaseContent:    "Content",
	PhaseStack:      "Tech Stack",
}

// Phases returns the phase keys in presentation order.
func Phases() []string {
	return phaseOrder
}

// PhaseTitle maps a phase key to its display name; unknown keys pass
// through unchanged.
func PhaseTitle(phase string) string {
	if title, ok := phaseTitles[phase]; ok {
		return title
	}
	return phase
}

// MultiValued reports whether a question type accepts more than one value.
func MultiValued(questionType string) bool {
	return questionType == store.QuestionCheckbox
}

// HasOtherOption reports whether a question offers the companion free-text
// field, signaled by the literal option value "Other".
func HasOtherOption(q store.Question) bool {
	for _, option := range q.Options {
		if option == OtherOption {
			return true
		}
	}
	return false
}
