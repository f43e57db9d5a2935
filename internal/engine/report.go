package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/miradorstack/mirador-autopilot/internal/models"
)

// BuildReport renders the human-readable incident summary attached to the
// incident once the postcheck has run. Output is deterministic for a given
// incident so repeated renders diff cleanly.
func BuildReport(incident *models.Incident, recovery RecoveryStatus, rootCause string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Incident Report: %s\n\n", incident.ID)
	fmt.Fprintf(&b, "**Service:** %s\n", incident.ServiceName)
	fmt.Fprintf(&b, "**Severity:** %s\n", incident.Severity)
	fmt.Fprintf(&b, "**Type:** %s\n", incident.IncidentType)
	fmt.Fprintf(&b, "**Started:** %s\n", incident.StartTime.UTC().Format(time.RFC3339))
	if incident.EndTime != nil {
		fmt.Fprintf(&b, "**Duration:** %s\n", incident.EndTime.Sub(incident.StartTime).Round(time.Second))
	}
	b.WriteString("\n")

	b.WriteString("## Root Cause\n\n")
	if rootCause != "" {
		fmt.Fprintf(&b, "%s\n\n", rootCause)
	} else {
		b.WriteString("No hypothesis was validated with sufficient confidence.\n\n")
	}

	if len(incident.Hypotheses) > 0 {
		b.WriteString("## Investigation\n\n")
		for i, h := range incident.Hypotheses {
			verdict := "not validated"
			if i < len(incident.Experiments) && incident.Experiments[i].Validated {
				verdict = "validated"
			}
			fmt.Fprintf(&b, "%d. %s (%s, confidence %.2f)\n", i+1, h.Description, verdict, h.Confidence)
			if i < len(incident.Experiments) && incident.Experiments[i].Findings != "" {
				fmt.Fprintf(&b, "   - %s\n", incident.Experiments[i].Findings)
			}
		}
		b.WriteString("\n")
	}

	if m := incident.AppliedMitigation; m != nil {
		b.WriteString("## Mitigation\n\n")
		fmt.Fprintf(&b, "**Action:** %s\n", m.Type)
		fmt.Fprintf(&b, "**Description:** %s\n", m.Description)
		fmt.Fprintf(&b, "**Risk level:** %s\n", m.RiskLevel)
		if incident.Metrics.TimeToMitigationSeconds > 0 {
			fmt.Fprintf(&b, "**Time to mitigation:** %.1fs\n", incident.Metrics.TimeToMitigationSeconds)
		}
		b.WriteString("\n")
	} else if m := incident.ProposedMitigation; m != nil {
		b.WriteString("## Proposed Mitigation (not applied)\n\n")
		fmt.Fprintf(&b, "**Action:** %s\n", m.Type)
		fmt.Fprintf(&b, "**Description:** %s\n\n", m.Description)
	}

	b.WriteString("## Recovery\n\n")
	if recovery.Recovered {
		b.WriteString("All monitored metrics recovered within tolerance.\n\n")
	} else {
		b.WriteString("One or more metrics did not recover.\n\n")
	}
	if len(recovery.Checks) > 0 {
		names := make([]string, 0, len(recovery.Checks))
		for name := range recovery.Checks {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			check := recovery.Checks[name]
			mark := "FAIL"
			if check.Recovered {
				mark = "OK"
			}
			if check.Baseline > 0 {
				fmt.Fprintf(&b, "- %s: %s (current %.2f, baseline %.2f)\n", name, mark, check.Current, check.Baseline)
			} else {
				fmt.Fprintf(&b, "- %s: %s (current %.2f)\n", name, mark, check.Current)
			}
		}
		b.WriteString("\n")
	}

	if len(incident.Timeline) > 0 {
		b.WriteString("## Timeline\n\n")
		for _, ev := range incident.Timeline {
			fmt.Fprintf(&b, "- %s [%s] %s\n", ev.Timestamp.UTC().Format("15:04:05"), ev.Stage, ev.Message)
		}
	}

	return b.String()
}
