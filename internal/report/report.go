// Package report periodically logs request-rate and latency statistics for
// the running daemon, and prints a final summary on shutdown.
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/nslcdgo/nslcdgo/internal/logging"
	"github.com/nslcdgo/nslcdgo/internal/metrics"
)

// Reporter periodically logs request-rate stats via a Logger.
type Reporter struct {
	m    *metrics.Metrics
	log  *logging.Logger
	intv time.Duration
}

// New creates a Reporter that logs a stats line every intv.
func New(m *metrics.Metrics, log *logging.Logger, intv time.Duration) *Reporter {
	return &Reporter{m: m, log: log, intv: intv}
}

// Run logs periodic stats until ctx is canceled.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.intv)
	defer ticker.Stop()

	var lastReq, lastSuc, lastFail int64
	lastAt := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			req, suc, fail, _ := r.m.Snapshot()
			dur := t.Sub(lastAt).Seconds()

			var rps float64
			if dur > 0 {
				rps = float64(req-lastReq) / dur
			}

			window := r.m.Lat.WindowSnapshotAndReset()

			r.log.Base().Info().
				Int64("requests", req).
				Int64("success", suc).
				Int64("fail", fail).
				Int64("delta_requests", req-lastReq).
				Int64("delta_success", suc-lastSuc).
				Int64("delta_fail", fail-lastFail).
				Float64("rps", rps).
				Dur("p50", window.P50).
				Dur("p95", window.P95).
				Dur("p99", window.P99).
				Msg("report: periodic stats")

			lastReq, lastSuc, lastFail, lastAt = req, suc, fail, t
		}
	}
}

// PrintSummary writes a final cumulative summary to w, used once on
// shutdown.
func PrintSummary(w io.Writer, m *metrics.Metrics) {
	req, suc, fail, elapsed := m.Snapshot()
	total := m.Lat.TotalSnapshot()

	var rps float64
	if elapsed > 0 {
		rps = float64(suc) / elapsed.Seconds()
	}

	fmt.Fprintf(w, "\n==== nslcdd summary ====\n")
	fmt.Fprintf(w, "uptime: %v\n", elapsed.Truncate(time.Second))
	fmt.Fprintf(w, "requests: %d\n", req)
	fmt.Fprintf(w, "success: %d\n", suc)
	fmt.Fprintf(w, "fail: %d\n", fail)
	fmt.Fprintf(w, "avg rps (success): %.2f\n", rps)
	fmt.Fprintf(w, "latency avg/p50/p95/p99: %v / %v / %v / %v\n", total.Avg, total.P50, total.P95, total.P99)
}
