package decision

import (
	"fmt"
	"strings"

	"github.com/opensource-legal/covenant/internal/domain"
)

// renderRationale produces the deterministic markdown rationale. It contains
// no timestamps and no randomness: the same inputs yield the same bytes.
func renderRationale(a *domain.RiskAssessment, dec *domain.DealDecision) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Decision: %s\n\n", dec.Outcome)
	fmt.Fprintf(&b, "Score: %d/100 effective (%d raw).\n\n", a.EffectiveScore, a.RawScore)

	fmt.Fprintf(&b, "Findings: %d violation(s) (%d overridden), %d unclear.\n",
		dec.Counts.Violations, dec.Counts.OverriddenViolations, dec.Counts.Unclear)
	fmt.Fprintf(&b, "Exceptions: %d open, %d approved.\n\n",
		dec.Counts.OpenExceptions, dec.Counts.ApprovedExceptions)

	wroteHeader := false
	for _, cluster := range a.Clusters {
		if cluster.ViolationCount == 0 && cluster.UnclearCount == 0 {
			continue
		}
		if !wroteHeader {
			b.WriteString("### Risk by category\n\n")
			wroteHeader = true
		}
		fmt.Fprintf(&b, "- **%s** (%s): %d violation(s), %d unclear, %d overridden\n",
			cluster.Category, cluster.Level,
			cluster.ViolationCount, cluster.UnclearCount, cluster.OverriddenCount)
	}
	if wroteHeader {
		b.WriteString("\n")
	}

	if len(dec.TopDrivers) > 0 {
		b.WriteString("### Top drivers\n\n")
		for _, d := range dec.TopDrivers {
			marker := ""
			if d.Overridden {
				marker = " (overridden)"
			}
			fmt.Fprintf(&b, "- [%s, weight %d] %s: %s%s\n",
				d.Status, d.Weight, d.ClauseCategory, d.Reason, marker)
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}
