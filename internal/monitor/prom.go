package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromReporter exposes window reports as Prometheus metrics. It owns
// its registry, so multiple instances never collide.
type PromReporter struct {
	reg *prometheus.Registry

	cycles    prometheus.Counter
	discarded prometheus.Counter
	found     prometheus.Counter
	valid     prometheus.Counter
	repaired  prometheus.Counter
	dropped   prometheus.Counter
	slow      prometheus.Counter

	busyRatio prometheus.Gauge
	avgCycle  prometheus.Gauge
	peakDBFS  prometheus.Gauge
	snrDB     prometheus.Gauge
}

// NewPromReporter registers the metric set on a fresh registry.
func NewPromReporter() *PromReporter {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &PromReporter{
		reg: reg,
		cycles: f.NewCounter(prometheus.CounterOpts{
			Name: "beam1090_cycles_total",
			Help: "Processing cycles completed.",
		}),
		discarded: f.NewCounter(prometheus.CounterOpts{
			Name: "beam1090_cycles_discarded_total",
			Help: "Capture cycles discarded before processing.",
		}),
		found: f.NewCounter(prometheus.CounterOpts{
			Name: "beam1090_frames_found_total",
			Help: "Frame candidates produced by the demodulator.",
		}),
		valid: f.NewCounter(prometheus.CounterOpts{
			Name: "beam1090_frames_valid_total",
			Help: "Frames that passed the parity check.",
		}),
		repaired: f.NewCounter(prometheus.CounterOpts{
			Name: "beam1090_frames_repaired_total",
			Help: "Frames accepted after bit-error repair.",
		}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "beam1090_frames_dropped_total",
			Help: "Frames lost at a sink.",
		}),
		slow: f.NewCounter(prometheus.CounterOpts{
			Name: "beam1090_slow_windows_total",
			Help: "Monitoring windows where processing lagged capture.",
		}),
		busyRatio: f.NewGauge(prometheus.GaugeOpts{
			Name: "beam1090_busy_ratio",
			Help: "Worker busy time over capture time, last window.",
		}),
		avgCycle: f.NewGauge(prometheus.GaugeOpts{
			Name: "beam1090_avg_cycle_seconds",
			Help: "Mean cycle processing time, last window.",
		}),
		peakDBFS: f.NewGauge(prometheus.GaugeOpts{
			Name: "beam1090_band_peak_dbfs",
			Help: "Composite spectrum peak, last window.",
		}),
		snrDB: f.NewGauge(prometheus.GaugeOpts{
			Name: "beam1090_band_snr_db",
			Help: "Composite spectrum peak over noise floor, last window.",
		}),
	}
}

func (p *PromReporter) Report(r WindowReport) {
	p.cycles.Add(float64(r.Delta.Cycles))
	p.discarded.Add(float64(r.Delta.Discarded))
	p.found.Add(float64(r.Delta.FramesFound))
	p.valid.Add(float64(r.Delta.FramesValid))
	p.repaired.Add(float64(r.Delta.FramesRepaired))
	p.dropped.Add(float64(r.Delta.FramesDropped))
	if r.TooSlow {
		p.slow.Inc()
	}

	if r.Delta.SampleTime > 0 {
		p.busyRatio.Set(float64(r.Delta.Busy) / float64(r.Delta.SampleTime))
	}
	p.avgCycle.Set(r.AvgCycle.Seconds())
	if r.Band != nil {
		p.peakDBFS.Set(r.Band.PeakDBFS)
		p.snrDB.Set(r.Band.SNR)
	}
}

// Handler serves the metrics endpoint.
func (p *PromReporter) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{})
}
