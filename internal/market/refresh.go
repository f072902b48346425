package market

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BlissPhinehas/trading-dashboard/internal/provider"
)

// RefreshReport describes one RefreshAll pass.
type RefreshReport struct {
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	// Updated lists the symbols whose cache entry was replaced.
	Updated []string `json:"updated"`
	// Failed maps each symbol that kept its previous entry to the failure kind.
	Failed map[string]string `json:"failed,omitempty"`
}

// RefreshAll fetches every tracked symbol regardless of freshness. A failing
// symbol is logged and recorded in the report; it never aborts the pass.
func (s *Service) RefreshAll(ctx context.Context) RefreshReport {
	report := RefreshReport{Started: time.Now().UTC(), Failed: map[string]string{}}

	live, failed, err := s.fetchLive(ctx, s.tracked)
	if err != nil {
		for _, sym := range s.tracked {
			report.Failed[sym] = provider.Classify(err)
		}
		s.log.WithError(err).Warn("refresh canceled")
		report.Finished = time.Now().UTC()
		return report
	}

	for _, sym := range s.tracked {
		if _, ok := live[sym]; ok {
			report.Updated = append(report.Updated, sym)
			continue
		}
		cause := failed[sym]
		report.Failed[sym] = provider.Classify(cause)
		s.log.WithFields(logrus.Fields{
			"symbol": sym,
			"kind":   report.Failed[sym],
		}).WithError(cause).Warn("refresh failed for symbol")
	}
	report.Finished = time.Now().UTC()
	s.log.WithFields(logrus.Fields{
		"updated":  len(report.Updated),
		"failed":   len(report.Failed),
		"duration": report.Finished.Sub(report.Started).Round(time.Millisecond),
	}).Info("refresh complete")
	return report
}
