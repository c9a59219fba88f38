package diff

import (
	"fmt"
	"strings"

	"github.com/opensource-legal/covenant/internal/domain"
)

// narrativeConfidenceShift is the confidence level whose crossing is called
// out in change explanations. It is deliberately distinct from the 0.5/0.6
// evaluation thresholds: it describes narrative sensitivity, not scoring, and
// the two must not be unified without product-owner sign-off.
const narrativeConfidenceShift = 0.75

// valueDisplayLimit caps rendered values in explanations.
const valueDisplayLimit = 50

func explain(changeType domain.ChangeType, from, to *domain.FindingSnapshot) string {
	switch changeType {
	case domain.ChangeAdded:
		return fmt.Sprintf("clause evaluated for the first time: %s", to.Status)
	case domain.ChangeRemoved:
		return fmt.Sprintf("clause no longer evaluated (was %s)", from.Status)
	case domain.ChangeUnchanged:
		return ""
	}

	var parts []string

	if from.Status != to.Status {
		parts = append(parts, fmt.Sprintf("status changed %s to %s", from.Status, to.Status))
		if crossed(from.Confidence, to.Confidence) {
			parts = append(parts, fmt.Sprintf("extraction confidence crossed %.2f (%.2f to %.2f)",
				narrativeConfidenceShift, from.Confidence, to.Confidence))
		}
	}

	if from.Overridden != to.Overridden {
		if to.Overridden {
			parts = append(parts, "exception override added")
		} else {
			parts = append(parts, "exception override removed")
		}
	}

	if !canonicalEqual(from.Value, to.Value) {
		parts = append(parts, fmt.Sprintf("value changed from %s to %s",
			displayValue(from.Value), displayValue(to.Value)))
	} else if from.Excerpt != to.Excerpt {
		parts = append(parts, "supporting excerpt changed")
	}

	return strings.Join(parts, "; ")
}

func crossed(from, to float64) bool {
	return (from < narrativeConfidenceShift) != (to < narrativeConfidenceShift)
}

// displayValue renders a value for explanation text, truncated to
// valueDisplayLimit characters with an ellipsis.
func displayValue(v any) string {
	if v == nil {
		return "(none)"
	}
	s, ok := canonicalJSON(v)
	if !ok {
		s = fmt.Sprintf("%v", v)
	}
	runes := []rune(s)
	if len(runes) > valueDisplayLimit {
		return string(runes[:valueDisplayLimit]) + "…"
	}
	return s
}
