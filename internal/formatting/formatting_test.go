package formatting

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/aonescu/kubedit/internal/engine"
	"github.com/aonescu/kubedit/internal/resource"
	"github.com/aonescu/kubedit/internal/types"
)

var deployment = resource.Identity{Kind: "Deployment", Namespace: "ns", Name: "foo"}

func TestFormatDecision(t *testing.T) {
	decision := engine.Decision{
		Verdict:         engine.Outdated,
		HasLocalChanges: true,
		Reason:          "Deployment/ns/foo changed on the cluster (version 7, editing 5)",
	}

	explanation := FormatDecision("foo@ns.yaml", decision)

	for _, section := range []string{"DOCUMENT", "VERDICT", "NEXT ACTION"} {
		if !strings.Contains(explanation, section) {
			t.Errorf("Expected '%s' section in explanation", section)
		}
	}
	if !strings.Contains(explanation, "foo@ns.yaml") {
		t.Error("Expected document in explanation")
	}
	if !strings.Contains(explanation, decision.Reason) {
		t.Error("Expected reason in explanation")
	}
	if !strings.Contains(explanation, "Reload the document") {
		t.Error("Expected reload advice for a conflicting outdated document")
	}
}

func TestFormatDecisionAutoReload(t *testing.T) {
	explanation := FormatDecision("foo@ns.yaml", engine.Decision{Verdict: engine.Outdated, AutoReloadable: true})

	if !strings.Contains(explanation, "reloaded from the cluster") {
		t.Errorf("Expected auto reload advice, got %s", explanation)
	}
}

func TestSaveFailureMessage(t *testing.T) {
	if got := SaveFailureMessage(deployment); got != "Could not save Deployment foo to cluster" {
		t.Errorf("Unexpected message: %s", got)
	}
}

func TestTrimCause(t *testing.T) {
	short := errors.New("connection refused")
	if got := TrimCause(short); got != "connection refused" {
		t.Errorf("Expected short cause unchanged, got %s", got)
	}

	long := errors.New(strings.Repeat("x", 400))
	got := TrimCause(long)
	if utf8.RuneCountInString(got) != maxCauseLength+1 {
		t.Errorf("Expected %d runes, got %d", maxCauseLength+1, utf8.RuneCountInString(got))
	}
	if !strings.HasSuffix(got, "…") {
		t.Error("Expected trimmed cause to end with an ellipsis")
	}

	if TrimCause(nil) != "" {
		t.Error("Expected empty cause for nil error")
	}
}

func TestGenerateSummary(t *testing.T) {
	events := []types.SyncEvent{
		{Action: types.ActionDecide, Verdict: "Pushable"},
		{Action: types.ActionPush, Verdict: "InSync"},
		{Action: types.ActionDecide, Verdict: "InSync"},
		{Action: types.ActionReload, Verdict: "InSync"},
		{Action: types.ActionError},
	}

	summary := GenerateSummary(events)

	if summary["total"].(int) != 5 {
		t.Errorf("Expected total 5, got %d", summary["total"].(int))
	}
	if summary["pushes"].(int) != 1 {
		t.Errorf("Expected 1 push, got %d", summary["pushes"].(int))
	}
	if summary["reloads"].(int) != 1 {
		t.Errorf("Expected 1 reload, got %d", summary["reloads"].(int))
	}
	if summary["errors"].(int) != 1 {
		t.Errorf("Expected 1 error, got %d", summary["errors"].(int))
	}

	verdicts := summary["verdicts"].(map[string]int)
	if verdicts["InSync"] != 3 {
		t.Errorf("Expected 3 InSync verdicts, got %d", verdicts["InSync"])
	}
	if verdicts["Pushable"] != 1 {
		t.Errorf("Expected 1 Pushable verdict, got %d", verdicts["Pushable"])
	}
}
