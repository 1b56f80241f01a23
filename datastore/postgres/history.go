package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/quay/zlog"

	"github.com/purldb/purldb"
)

var (
	historyCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "purldb",
			Subsystem: "reconciler",
			Name:      "history_total",
			Help:      "Total number of database queries issued in the History method.",
		},
		[]string{"query"},
	)

	historyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "purldb",
			Subsystem: "reconciler",
			Name:      "history_duration_seconds",
			Help:      "The duration of all queries issued in the History method",
		},
		[]string{"query"},
	)
)

// History returns the package's ledger, oldest-first.
func (s *ReconcilerStore) History(ctx context.Context, pkg *purldb.Package) ([]purldb.HistoryEntry, error) {
	const selectHistory = `SELECT history FROM package WHERE id = $1;`

	ctx = zlog.ContextWithValues(ctx, "component", "datastore/postgres/History")

	start := time.Now()
	var raw []byte
	if err := s.pool.QueryRow(ctx, selectHistory, pkg.ID).Scan(&raw); err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	historyCounter.WithLabelValues("selectHistory").Add(1)
	historyDuration.WithLabelValues("selectHistory").Observe(time.Since(start).Seconds())

	var h purldb.History
	if len(raw) != 0 {
		if err := json.Unmarshal(raw, &h); err != nil {
			return nil, fmt.Errorf("failed to decode history: %w", err)
		}
	}
	return h.Entries(), nil
}
