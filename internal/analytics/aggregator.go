// Package analytics is the Analytics Aggregator (C12): read-only rollups
// over Executions scoped to the current calendar month. Grounded on a
// thin service-wrapping-store shape — it issues one store query and folds
// the result, the same division of labor the rest of the pack gives its
// read-model services.
package analytics

import (
	"context"
	"math"
	"time"

	"github.com/agnox/producer/internal/apperror"
	"github.com/agnox/producer/internal/store"
)

// KPIs is the §4.11 monthly rollup.
type KPIs struct {
	TotalRuns     int     `json:"totalRuns"`
	PassedRuns    int     `json:"passedRuns"`
	FinishedRuns  int     `json:"finishedRuns"`
	SuccessRate   float64 `json:"successRate"`
	AvgDurationMs float64 `json:"avgDurationMs"`
	Period        string  `json:"period"`
}

type Aggregator struct {
	store *store.Store
}

func NewAggregator(s *store.Store) *Aggregator {
	return &Aggregator{store: s}
}

var finishedStatuses = map[store.ExecutionStatus]bool{
	store.StatusPassed:   true,
	store.StatusFailed:   true,
	store.StatusError:    true,
	store.StatusUnstable: true,
}

// KPIs implements §4.11 exactly: totals, success rate (one decimal),
// average duration in ms, and the "YYYY-MM" period label.
func (a *Aggregator) KPIs(ctx context.Context, orgID string) (KPIs, error) {
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	execs, err := a.store.ExecutionsSince(ctx, orgID, monthStart)
	if err != nil {
		return KPIs{}, apperror.Dependency("failed to load executions for kpis", err)
	}

	var passed, finished int
	var durationSum float64
	var durationCount int
	for _, e := range execs {
		if finishedStatuses[e.Status] {
			finished++
		}
		if e.Status == store.StatusPassed {
			passed++
		}
		if e.EndTime != nil {
			durationSum += float64(e.EndTime.Sub(e.StartTime).Milliseconds())
			durationCount++
		}
	}

	var successRate float64
	if finished > 0 {
		successRate = math.Round(float64(passed)/float64(finished)*1000) / 10
	}

	var avgDuration float64
	if durationCount > 0 {
		avgDuration = durationSum / float64(durationCount)
	}

	return KPIs{
		TotalRuns:     len(execs),
		PassedRuns:    passed,
		FinishedRuns:  finished,
		SuccessRate:   successRate,
		AvgDurationMs: avgDuration,
		Period:        monthStart.Format("2006-01"),
	}, nil
}
