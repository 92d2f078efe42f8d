package diagserver

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/azure-patch/linux-patch-core/pkg/scheduler"
)

// runMetrics holds the gauges describing the most recently recorded run, as
// read back from the history ledger. Kept on a private registry (not
// prometheus.DefaultRegisterer) so a second Server in the same process, as
// happens in tests, never collides on a duplicate registration.
type runMetrics struct {
	registry  *prometheus.Registry
	critical  prometheus.Gauge
	other     prometheus.Gauge
	installed prometheus.Gauge
	failed    prometheus.Gauge
	lastRunAt prometheus.Gauge
}

func newRunMetrics() *runMetrics {
	m := &runMetrics{
		registry: prometheus.NewRegistry(),
		critical: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mspatch_last_run_critical_security_patch_count",
			Help: "Critical/security patches reported by the most recently recorded run.",
		}),
		other: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mspatch_last_run_other_patch_count",
			Help: "Other patches reported by the most recently recorded run.",
		}),
		installed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mspatch_last_run_installed_patch_count",
			Help: "Patches installed by the most recently recorded run.",
		}),
		failed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mspatch_last_run_failed_patch_count",
			Help: "Patches that failed to install in the most recently recorded run.",
		}),
		lastRunAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mspatch_last_run_end_time_seconds",
			Help: "Unix timestamp of the end of the most recently recorded run.",
		}),
	}
	m.registry.MustRegister(m.critical, m.other, m.installed, m.failed, m.lastRunAt)
	return m
}

// refreshMetrics pulls the single most recent history record and republishes it on
// the gauges. A nil or empty history is not an error: the gauges are simply
// left at their zero value until a run is recorded.
func (s *Server) refreshMetrics(ctx context.Context) (any, error) {
	if s.history == nil {
		return nil, nil
	}
	records, err := s.history.Recent(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	r := records[0]
	s.metrics.critical.Set(float64(r.CriticalSecurityCount))
	s.metrics.other.Set(float64(r.OtherCount))
	s.metrics.installed.Set(float64(r.InstalledCount))
	s.metrics.failed.Set(float64(r.FailedCount))
	s.metrics.lastRunAt.Set(float64(r.EndTime.Unix()))
	return nil, nil
}

// RefreshMetricsForTest runs one synchronous metrics refresh pass, exported
// so tests outside the package can observe /metrics without waiting out the
// background refresh interval.
func (s *Server) RefreshMetricsForTest(ctx context.Context) error {
	_, err := s.refreshMetrics(ctx)
	return err
}

// runMetricsRefreshLoop periodically hands a refreshMetrics job to the
// scheduler, keeping gauge recomputation (a duckdb query) off of whatever
// goroutine is servicing an in-flight /metrics or /history request. It
// returns once ctx is cancelled.
func (s *Server) runMetricsRefreshLoop(ctx context.Context, every time.Duration) {
	sched := scheduler.NewScheduler(1)
	defer sched.Close()

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			future := sched.AddWork(s.refreshMetrics)
			select {
			case result := <-future.C():
				if result.Err != nil {
					s.log.Warnw("diagnostics metrics refresh failed", "err", result.Err)
				}
			case <-ctx.Done():
				future.Stop()
				return
			}
		}
	}
}
