// Package intake implements the answer encoding rules, form-field parsing
// and progress calculation for the consultation questionnaire.
package intake

import (
	"encoding/json"
	"strings"
)

// OtherOption is the literal option value that enables the companion
// free-text field on a question.
const OtherOption = "Other"

const otherPrefix = "Other: "

// Value is the decoded form of one answer: zero, one or many strings.
// The persisted column is always a single string; Encode and Decode are
// the only places that flatten or re-inflate this.
type Value struct {
	Values []string
}

func NewValue(values ...string) Value {
	kept := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			kept = append(kept, v)
		}
	}
	return Value{Values: kept}
}

func (v Value) IsEmpty() bool {
	return len(v.Values) == 0
}

func (v Value) IsMulti() bool {
	return len(v.Values) > 1
}

// Single returns the sole value, or "" when empty or multi-valued.
func (v Value) Single() string {
	if len(v.Values) == 1 {
		return v.Values[0]
	}
	return ""
}

// Encode flattens a Value to the persisted string: empty -> "", one value
// -> that string verbatim, two or more -> a JSON array of strings in
// submission order.
func Encode(v Value) string {
	switch len(v.Values) {
	case 0:
		return ""
	case 1:
		return v.Values[0]
	default:
		encoded, err := json.Marshal(v.Values)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}

// Decode re-inflates a persisted string. A JSON array of strings becomes a
// multi-value answer; anything else is one literal value, which also covers
// legacy single-value rows that happen to contain brackets. Empty elements
// inside a stored array are dropped: "" always means unanswered, so
// `["A",""]` normalizes to just "A" rather than round-tripping the blank.
func Decode(encoded string) Value {
	if encoded == "" {
		return Value{}
	}
	if strings.HasPrefix(encoded, "[") {
		var values []string
		if err := json.Unmarshal([]byte(encoded), &values); err == nil {
			return NewValue(values...)
		}
	}
	return Value{Values: []string{encoded}}
}

// MergeOther folds companion "Other" text into a value set. For
// multi-valued questions the literal "Other" selection is replaced by
// "Other: <text>" as one more element; for single-valued questions the
// companion text becomes the whole answer.
func MergeOther(v Value, otherText string, multi bool) Value {
	text := strings.TrimSpace(otherText)
	if text == "" {
		return v
	}
	if !multi {
		return Value{Values: []string{otherPrefix + text}}
	}
	kept := make([]string, 0, len(v.Values)+1)
	for _, value := range v.Values {
		if value == OtherOption {
			continue
		}
		kept = append(kept, value)
	}
	return Value{Values: append(kept, otherPrefix+text)}
}

// SplitOther recognizes an "Other: <text>" value and returns the companion
// text, so a form can re-select the "Other" option and re-fill its field.
func SplitOther(value string) (string, bool) {
	if !strings.HasPrefix(value, otherPrefix) {
		return "", false
	}
	return strings.TrimPrefix(value, otherPrefix), true
}

// DisplayValue renders a persisted string for human reading: multi-value
// answers joined with ", ", missing answers as an em dash.
func DisplayValue(encoded string) string {
	v := Decode(encoded)
	if v.IsEmpty() {
		return "—"
	}
	return strings.Join(v.Values, ", ")
}
