package intake

import (
	"net/url"
	"reflect"
	"testing"
)

func TestParseFields(t *testing.T) {
	form := url.Values{
		"q_goal":        {"Generate leads", "Other"},
		"q_goal__other": {"  kiosk mode  "},
		"q_budget":      {"10-25k"},
		"q_notes":       {""},
		"csrf_token":    {"abc"},
		"q_":            {"ignored"},
	}
	batch := ParseFields(form)

	if got := batch.Values["goal"]; !reflect.DeepEqual(got, []string{"Generate leads", "Other"}) {
		t.Fatalf("goal values: %v", got)
	}
	if got := batch.Values["budget"]; !reflect.DeepEqual(got, []string{"10-25k"}) {
		t.Fatalf("budget values: %v", got)
	}
	if got := batch.Other["goal"]; got != "kiosk mode" {
		t.Fatalf("companion text not trimmed: %q", got)
	}
	if _, ok := batch.Values["csrf_token"]; ok {
		t.Fatal("non-answer field leaked into batch")
	}
	if values, ok := batch.Values["notes"]; !ok || len(values) != 0 {
		t.Fatalf("blank submission should keep the key with no values, got %v ok=%v", values, ok)
	}
}

func TestQuestionIDsSortedUnion(t *testing.T) {
	form := url.Values{
		"q_zebra":        {"z"},
		"q_alpha":        {"a"},
		"q_mango__other": {"custom"},
	}
	batch := ParseFields(form)
	if got := batch.QuestionIDs(); !reflect.DeepEqual(got, []string{"alpha", "mango", "zebra"}) {
		t.Fatalf("ids: %v", got)
	}
}
