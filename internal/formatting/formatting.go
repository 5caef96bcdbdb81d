package formatting

import (
	"fmt"
	"strings"

	"github.com/aonescu/kubedit/internal/engine"
	"github.com/aonescu/kubedit/internal/resource"
	"github.com/aonescu/kubedit/internal/types"
)

const maxCauseLength = 300

// SaveFailureMessage is the text shown when a push fails for any reason other than a
// conflict.
func SaveFailureMessage(id resource.Identity) string {
	return fmt.Sprintf("Could not save %s %s to cluster", id.Kind, id.Name)
}

// TrimCause shortens an error message for display.
func TrimCause(err error) string {
	if err == nil {
		return ""
	}
	return trimWithEllipsis(err.Error(), maxCauseLength)
}

func trimWithEllipsis(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "…"
}

func FormatDecision(document string, decision engine.Decision) string {
	var output strings.Builder

	output.WriteString("\nDOCUMENT\n")
	output.WriteString("────────────────────────\n")
	output.WriteString(fmt.Sprintf("%s\n\n", document))

	output.WriteString("VERDICT\n")
	output.WriteString("────────────────────────\n")
	output.WriteString(fmt.Sprintf("%s\n", decision.Verdict))
	output.WriteString(fmt.Sprintf("%s\n\n", decision.Reason))

	output.WriteString("NEXT ACTION\n")
	output.WriteString("────────────────────────\n")
	output.WriteString(nextAction(decision) + "\n")

	return output.String()
}

func nextAction(decision engine.Decision) string {
	switch decision.Verdict {
	case engine.Outdated:
		if decision.AutoReloadable {
			return "None, the document is reloaded from the cluster"
		}
		return "Reload the document or push over the cluster copy"
	case engine.Pushable:
		return "Push the document to the cluster"
	case engine.Deleted:
		return "Push to recreate the resource or close the document"
	case engine.Conflict:
		return "Push to recreate the resource or discard the edits"
	case engine.Indeterminate:
		return "Fix the document so it describes a valid resource"
	default:
		return "None"
	}
}

// GenerateSummary counts verdicts and actions over a set of history events.
func GenerateSummary(events []types.SyncEvent) map[string]interface{} {
	summary := map[string]interface{}{
		"total":    len(events),
		"pushes":   0,
		"reloads":  0,
		"errors":   0,
		"verdicts": make(map[string]int),
	}

	for _, event := range events {
		switch event.Action {
		case types.ActionPush:
			summary["pushes"] = summary["pushes"].(int) + 1
		case types.ActionReload:
			summary["reloads"] = summary["reloads"].(int) + 1
		case types.ActionError:
			summary["errors"] = summary["errors"].(int) + 1
		}
		if event.Verdict != "" {
			verdicts := summary["verdicts"].(map[string]int)
			verdicts[event.Verdict]++
		}
	}

	return summary
}
