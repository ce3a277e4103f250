package report

import (
	"fmt"
	"strings"

	"qsafp-harness/internal/failsafe"
)

const rule = "================================================================================"

// Summary は結果をフォーマットして返す
func Summary(outcomes []failsafe.Outcome) string {
	var (
		quorum, lease, skipped, aborted int
		total, worst, decisions         float64
	)
	for _, o := range outcomes {
		if o.TriggerReason == failsafe.ReasonQuorum {
			quorum++
		} else {
			lease++
		}
		skipped += o.SkippedThreats
		aborted += o.AbortedThreats
		total += o.ContainmentTimeMs
		decisions += o.DecisionTimeMs
		worst = max(worst, o.ContainmentTimeMs)
	}

	var avg, avgDecision float64
	if n := len(outcomes); n > 0 {
		avg = total / float64(n)
		avgDecision = decisions / float64(n)
	}

	var b strings.Builder
	fmt.Fprintf(&b, `
%s
                         FAIL-SAFE RUN REPORT
%s

EXECUTION SUMMARY
-----------------
  Scenarios:        %d
  Quorum Triggers:  %d
  Lease Expiries:   %d
  Skipped Threats:  %d
  Aborted Threats:  %d

CONTAINMENT
-----------
  Avg Decision:     %.2fms
  Avg Containment:  %.2fms
  Max Containment:  %.2fms

SCENARIOS
---------
`, rule, rule,
		len(outcomes), quorum, lease, skipped, aborted,
		avgDecision, avg, worst)

	for _, o := range outcomes {
		fmt.Fprintf(&b, "  %-20s %-13s %9.2fms  threats=%d votes=%d/%d\n",
			o.ScenarioID+":", o.TriggerReason, o.ContainmentTimeMs,
			o.ThreatCount, o.TriggerVotes, o.Threshold)
	}

	b.WriteString("\n" + rule)
	return b.String()
}
