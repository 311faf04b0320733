// Package metrics exposes conversion and HTTP metrics to Prometheus.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/deepteams/webpconv"
)

// Metrics bundles the prometheus collectors of the converter and the HTTP
// service. It implements webpconv.Observer.
type Metrics struct {
	ConversionsTotal   *prometheus.CounterVec
	ConversionDuration *prometheus.HistogramVec
	OriginalBytes      prometheus.Counter
	EncodedBytes       prometheus.Counter
	Reduction          prometheus.Histogram
	AnimatedFrames     prometheus.Histogram
	RequestsTotal      *prometheus.CounterVec
	RequestDurationSec *prometheus.HistogramVec
}

func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		ConversionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webpconv_conversions_total",
			Help: "Total number of conversions by source format and outcome.",
		}, []string{"format", "outcome"}),
		ConversionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webpconv_conversion_duration_seconds",
			Help:    "Time spent converting one source.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"format"}),
		OriginalBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webpconv_original_bytes_total",
			Help: "Total size of successfully converted sources.",
		}),
		EncodedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webpconv_encoded_bytes_total",
			Help: "Total size of produced WebP files.",
		}),
		Reduction: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "webpconv_size_reduction_percent",
			Help:    "Per-file size reduction in percent.",
			Buckets: []float64{-50, 0, 10, 25, 50, 75, 90, 95, 99},
		}),
		AnimatedFrames: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "webpconv_animated_frames",
			Help:    "Frame count of animated outputs.",
			Buckets: prometheus.ExponentialBuckets(2, 2, 10),
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webpconv_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		RequestDurationSec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webpconv_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}

	registry.MustRegister(
		m.ConversionsTotal,
		m.ConversionDuration,
		m.OriginalBytes,
		m.EncodedBytes,
		m.Reduction,
		m.AnimatedFrames,
		m.RequestsTotal,
		m.RequestDurationSec,
	)

	return m
}

// ObserveConversion implements webpconv.Observer.
func (m *Metrics) ObserveConversion(format webpconv.Format, elapsed time.Duration, stats *webpconv.Stats, err error) {
	label := format.String()
	m.ConversionDuration.WithLabelValues(label).Observe(elapsed.Seconds())
	if err != nil || stats == nil {
		m.ConversionsTotal.WithLabelValues(label, "error").Inc()
		return
	}
	m.ConversionsTotal.WithLabelValues(label, "ok").Inc()
	m.OriginalBytes.Add(float64(stats.OriginalSize))
	m.EncodedBytes.Add(float64(stats.EncodedSize))
	m.Reduction.Observe(stats.Reduction)
	if seq := stats.Sequence; seq != nil && seq.Animated {
		m.AnimatedFrames.Observe(float64(seq.Frames))
	}
}

// Middleware records request counts and latencies by route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		startedAt := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "other"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.RequestsTotal.WithLabelValues(route, c.Request.Method, status).Inc()
		m.RequestDurationSec.WithLabelValues(route, c.Request.Method, status).Observe(time.Since(startedAt).Seconds())
	}
}
