package intake

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// Inbound field names: q_<questionId> carries answer values,
// q_<questionId>__other carries the companion free-text.
var (
	answerField = regexp.MustCompile(`^q_([A-Za-z0-9_-]+)$`)
	otherField  = regexp.MustCompile(`^q_([A-Za-z0-9_-]+)__other$`)
)

// FieldBatch is one parsed autosave submission: raw values and companion
// text keyed by question id. Field names that do not match either pattern
// are ignored here; unknown question ids are the synchronizer's problem.
type FieldBatch struct {
	Values map[string][]string
	Other  map[string]string
}

// ParseFields extracts answer entries from a flat form submission,
// dropping empty values the way the form layer posts unchecked inputs.
func ParseFields(form url.Values) FieldBatch {
	batch := FieldBatch{
		Values: make(map[string][]string),
		Other:  make(map[string]string),
	}
	for name, raw := range form {
		if match := otherField.FindStringSubmatch(name); match != nil {
			text := ""
			if len(raw) > 0 {
				text = strings.TrimSpace(raw[0])
			}
			if text != "" {
				batch.Other[match[1]] = text
			}
			continue
		}
		if match := answerField.FindStringSubmatch(name); match != nil {
			questionID := match[1]
			values := batch.Values[questionID]
			for _, v := range raw {
				if v != "" {
					values = append(values, v)
				}
			}
			batch.Values[questionID] = values
		}
	}
	return batch
}

// QuestionIDs returns every question id touched by the batch, sorted for
// deterministic processing order.
func (b FieldBatch) QuestionIDs() []string {
	seen := make(map[string]struct{}, len(b.Values)+len(b.Other))
	for id := range b.Values {
		seen[id] = struct{}{}
	}
	for id := range b.Other {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
