package ingest

import (
	"fmt"
	"time"

	"github.com/adoptfeed/adoptfeed/internal/config"
)

// Classifier derives run status and monitoring alerts from run outcomes and
// stored history. It holds no state of its own; every derivation is computed
// fresh from the inputs.
type Classifier struct {
	thresholds config.FailureThresholds
}

// NewClassifier creates a classifier with the given thresholds.
func NewClassifier(thresholds config.FailureThresholds) *Classifier {
	return &Classifier{thresholds: thresholds}
}

// Status derives the terminal status of a run. history holds prior completed
// runs for the same organization, most recent first.
//
// error:   the pipeline hit an unrecovered failure, or yield was zero while
//          enough prior runs show the source normally produces records.
// warning: yield dropped by more than the configured fraction against the
//          trailing average, or zero yield without enough history to call it
//          catastrophic.
// success: everything else.
func (c *Classifier) Status(recordsFound int, runErr error, history []RunSummary) RunStatus {
	if runErr != nil {
		return StatusError
	}

	if recordsFound == 0 {
		if c.healthyRuns(history) >= c.thresholds.MinimumHistoricalRuns {
			return StatusError
		}
		if len(history) > 0 {
			// Too little history to call it catastrophic; still worth a look
			return StatusWarning
		}
		// First ever run of a possibly empty source
		return StatusSuccess
	}

	if avg := trailingAverage(history); avg > 0 {
		if float64(recordsFound) < avg*(1-c.thresholds.PercentageDropThreshold) {
			return StatusWarning
		}
	}

	return StatusSuccess
}

// healthyRuns counts prior runs whose yield met the absolute minimum.
func (c *Classifier) healthyRuns(history []RunSummary) int {
	n := 0
	for _, run := range history {
		if run.RecordsFound >= c.thresholds.AbsoluteMinimum {
			n++
		}
	}
	return n
}

func trailingAverage(history []RunSummary) float64 {
	if len(history) == 0 {
		return 0
	}
	sum := 0
	for _, run := range history {
		sum += run.RecordsFound
	}
	return float64(sum) / float64(len(history))
}

// Alerts derives the active alerts for an organization from stored history,
// most recent first. Alerts are recomputed on every read; nothing is stored
// and there is no acknowledgement state.
func (c *Classifier) Alerts(organizationID string, history []RunSummary, now time.Time) []Alert {
	var alerts []Alert

	if len(history) == 0 || now.Sub(history[0].StartedAt) > c.thresholds.NoRecentRunsWindow {
		alerts = append(alerts, Alert{
			Severity:       SeverityWarning,
			Type:           AlertNoRecentRuns,
			OrganizationID: organizationID,
			Message:        fmt.Sprintf("no ingestion run within %s", c.thresholds.NoRecentRunsWindow),
		})
	}

	streak := 0
	for _, run := range history {
		if run.Status == StatusSuccess {
			break
		}
		streak++
	}

	if streak >= c.thresholds.ConsecutiveFailureAlertCount {
		severity := SeverityWarning
		if streak >= c.thresholds.ConsecutiveFailureAlertCount+1 {
			severity = SeverityCritical
		}
		alerts = append(alerts, Alert{
			Severity:       severity,
			Type:           AlertConsecutiveFailures,
			OrganizationID: organizationID,
			Message:        fmt.Sprintf("%d consecutive non-success runs", streak),
		})
	}

	return alerts
}

// Rates computes aggregate non-success fractions over the trailing 24h, 7d
// and 30d windows, for the monitoring surface.
func (c *Classifier) Rates(history []RunSummary, now time.Time) FailureRates {
	window := func(d time.Duration) float64 {
		var total, failed int
		cutoff := now.Add(-d)
		for _, run := range history {
			if run.StartedAt.Before(cutoff) {
				continue
			}
			total++
			if run.Status != StatusSuccess {
				failed++
			}
		}
		if total == 0 {
			return 0
		}
		return float64(failed) / float64(total)
	}

	return FailureRates{
		Day:   window(24 * time.Hour),
		Week:  window(7 * 24 * time.Hour),
		Month: window(30 * 24 * time.Hour),
	}
}
