package intake

import "uccs/api/internal/store"

// Visible evaluates a question's showIf rule against the current answer
// snapshot (encoded values keyed by question id). Questions without a rule
// are always visible. The predicate matches when any decoded value of the
// referenced answer equals the expected string, so it works for dropdown
// and checkbox sources alike.
func Visible(q store.Question, answers map[string]string) bool {
	if q.ShowIf == nil {
		return true
	}
	v := Decode(answers[q.ShowIf.QuestionID])
	for _, value := range v.Values {
		if value == q.ShowIf.Equals {
			return true
		}
	}
	return false
}
