package relmap

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Observer receives the text and wall-clock duration of every statement a
// Conn executes. Implementations must not block; they run on the calling
// goroutine after each round trip.
type Observer interface {
	ObserveStatement(stmt string, d time.Duration)
}

// SlowThreshold is the duration at or above which the default observer
// reports a statement.
const SlowThreshold = time.Second

// SlowQueryObserver logs statements that run for at least Threshold as
// structured warn events. It is the observer a Conn gets by default.
type SlowQueryObserver struct {
	Log       zerolog.Logger
	Threshold time.Duration
}

// NewSlowQueryObserver returns an observer reporting statements that take
// SlowThreshold or longer.
func NewSlowQueryObserver(log zerolog.Logger) *SlowQueryObserver {
	return &SlowQueryObserver{Log: log, Threshold: SlowThreshold}
}

func (o *SlowQueryObserver) ObserveStatement(stmt string, d time.Duration) {
	if d < o.Threshold {
		return
	}
	o.Log.Warn().
		Str("event", "slow_statement").
		Str("statement", stmt).
		Dur("duration", d).
		Msg("statement exceeded slow threshold")
}

// PrometheusObserver records statement durations into a histogram. Register
// its collector with your registry and attach it via WithObserver.
type PrometheusObserver struct {
	durations prometheus.Histogram
}

// NewPrometheusObserver builds an observer backed by a statement-duration
// histogram registered on reg.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "relmap",
		Name:      "statement_duration_seconds",
		Help:      "Wall-clock duration of executed statements.",
		Buckets:   prometheus.DefBuckets,
	})
	if err := reg.Register(h); err != nil {
		return nil, err
	}
	return &PrometheusObserver{durations: h}, nil
}

func (o *PrometheusObserver) ObserveStatement(_ string, d time.Duration) {
	o.durations.Observe(d.Seconds())
}

// multiObserver fans one observation out to several observers.
type multiObserver []Observer

func (m multiObserver) ObserveStatement(stmt string, d time.Duration) {
	for _, o := range m {
		o.ObserveStatement(stmt, d)
	}
}
