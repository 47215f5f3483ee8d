package observability

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/instructor/internal/protocol"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "instructor",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "instructor",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	codecOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "instructor",
			Subsystem: "codec",
			Name:      "operations_total",
			Help:      "Pack and unpack operations by outcome.",
		},
		[]string{"schema", "op", "result"},
	)
	codecBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "instructor",
			Subsystem: "codec",
			Name:      "bytes_total",
			Help:      "Bytes produced by pack or consumed by unpack.",
		},
		[]string{"schema", "op"},
	)
	codecDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "instructor",
			Subsystem: "codec",
			Name:      "duration_seconds",
			Help:      "Pack and unpack duration in seconds.",
			Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05},
		},
		[]string{"schema", "op"},
	)
)

const (
	OpPack   = "pack"
	OpUnpack = "unpack"
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, codecOps, codecBytes, codecDuration)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordCodec counts one pack or unpack of schema. n is only added to the
// byte counter when err is nil.
func RecordCodec(schema, op string, n int, duration time.Duration, err error) {
	RegisterMetrics()
	codecOps.WithLabelValues(schema, op, CodecResult(err)).Inc()
	codecDuration.WithLabelValues(schema, op).Observe(duration.Seconds())
	if err == nil {
		codecBytes.WithLabelValues(schema, op).Add(float64(n))
	}
}

var codecResults = []struct {
	err   error
	label string
}{
	{protocol.ErrSchema, "schema"},
	{protocol.ErrInvalidDataSize, "invalid_data_size"},
	{protocol.ErrUnsetField, "unset_field"},
	{protocol.ErrEncodeOverflow, "encode_overflow"},
	{protocol.ErrEncodeRange, "encode_range"},
	{protocol.ErrUnknownField, "unknown_field"},
	{protocol.ErrFieldTypeMismatch, "type_mismatch"},
	{protocol.ErrLengthTooLarge, "length_too_large"},
}

// CodecResult maps a codec error to a bounded metric label.
func CodecResult(err error) string {
	if err == nil {
		return "ok"
	}
	for _, r := range codecResults {
		if errors.Is(err, r.err) {
			return r.label
		}
	}
	return "error"
}
