package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// HarnessMetrics publishes harness activity to Prometheus: how often and via which
// operation simulated time moved, how many clock store writes occurred, the HTTP
// traffic against the application under test, and how long entity-state assertions
// had to poll. It implements domain.MetricsConsumer.
type HarnessMetrics struct {
	logger *zap.Logger

	registry *prometheus.Registry

	timeMutationsTotal     *prometheus.CounterVec
	clockStoreWritesTotal  prometheus.Counter
	apiRequestsTotal       *prometheus.CounterVec
	entityStateWaitLatency prometheus.Histogram
}

func NewHarnessMetrics(atom *zap.AtomicLevel) *HarnessMetrics {
	m := &HarnessMetrics{
		registry: prometheus.NewRegistry(),
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), zapcore.AddSync(colorable.NewColorableStdout()), atom)
	m.logger = zap.New(core, zap.Development())

	m.timeMutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "harness",
		Name:      "time_mutations_total",
		Help:      "Number of committed simulated-time mutations, by operation.",
	}, []string{"operation"})

	m.clockStoreWritesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "harness",
		Name:      "clock_store_writes_total",
		Help:      "Number of successful atomic writes of the clock store file.",
	})

	m.apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "harness",
		Name:      "home_assistant_requests_total",
		Help:      "Number of HTTP requests issued against Home Assistant, by method and status code.",
	}, []string{"method", "status"})

	m.entityStateWaitLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "harness",
		Name:      "entity_state_wait_milliseconds",
		Help:      "How long entity-state assertions polled before being satisfied.",
		Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})

	m.registry.MustRegister(m.timeMutationsTotal, m.clockStoreWritesTotal, m.apiRequestsTotal, m.entityStateWaitLatency)

	return m
}

func (m *HarnessMetrics) ObserveTimeMutation(operation string, target time.Time) {
	m.timeMutationsTotal.WithLabelValues(operation).Inc()
	m.logger.Debug("Recorded time mutation.", zap.String("operation", operation), zap.Time("target", target))
}

func (m *HarnessMetrics) ObserveClockStoreWrite() {
	m.clockStoreWritesTotal.Inc()
}

func (m *HarnessMetrics) ObserveApiRequest(method string, statusCode int) {
	m.apiRequestsTotal.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
}

func (m *HarnessMetrics) ObserveEntityStateWaitMillis(latencyMillis int64) {
	m.entityStateWaitLatency.Observe(float64(latencyMillis))
}

// Handler exposes the metrics for scraping.
func (m *HarnessMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
