package server

import (
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/hashserv/rpc/common"
	"github.com/VictoriaMetrics/metrics"
)

// serverMetrics are the prometheus metrics of one server. Every server owns
// its own set so that tests can run several servers in one process.
type serverMetrics struct {
	set *metrics.Set

	requests      map[common.MessageType]*metrics.Counter
	errors        map[common.ErrorKind]*metrics.Counter
	streamQueries map[sessionMode]*metrics.Counter
	streamHits    map[sessionMode]*metrics.Counter
	inserted      *metrics.Counter
	panics        *metrics.Counter
	duration      *metrics.Histogram
}

func newServerMetrics(queueLen, openConns func() int) *serverMetrics {
	set := metrics.NewSet()

	m := &serverMetrics{
		set:           set,
		requests:      make(map[common.MessageType]*metrics.Counter),
		errors:        make(map[common.ErrorKind]*metrics.Counter),
		streamQueries: make(map[sessionMode]*metrics.Counter),
		streamHits:    make(map[sessionMode]*metrics.Counter),
		inserted:      set.NewCounter("hashserv_reports_inserted_total"),
		panics:        set.NewCounter("hashserv_panics_total"),
		duration:      set.NewHistogram("hashserv_request_duration_seconds"),
	}

	for _, t := range common.MessageTypes() {
		m.requests[t] = set.NewCounter(fmt.Sprintf(`hashserv_requests_total{type=%q}`, t))
	}
	for _, k := range []common.ErrorKind{common.ErrKindInput, common.ErrKindPermission, common.ErrKindProtocol, common.ErrKindInternal} {
		m.errors[k] = set.NewCounter(fmt.Sprintf(`hashserv_errors_total{kind=%q}`, k))
	}
	for _, mode := range []sessionMode{modeGetStream, modeExistsStream} {
		m.streamQueries[mode] = set.NewCounter(fmt.Sprintf(`hashserv_stream_queries_total{stream=%q}`, mode))
		m.streamHits[mode] = set.NewCounter(fmt.Sprintf(`hashserv_stream_hits_total{stream=%q}`, mode))
	}

	set.NewGauge("hashserv_queue_length", func() float64 {
		return float64(queueLen())
	})
	set.NewGauge("hashserv_open_connections", func() float64 {
		return float64(openConns())
	})

	return m
}

func (m *serverMetrics) request(t common.MessageType) {
	if c, ok := m.requests[t]; ok {
		c.Inc()
	}
}

func (m *serverMetrics) error(k common.ErrorKind) {
	if c, ok := m.errors[k]; ok {
		c.Inc()
	}
}

func (m *serverMetrics) streamQuery(mode sessionMode, hit bool) {
	m.streamQueries[mode].Inc()
	if hit {
		m.streamHits[mode].Inc()
	}
}

func (m *serverMetrics) observe(received time.Time) {
	m.duration.UpdateDuration(received)
}

// write writes all metrics in the prometheus text format
func (m *serverMetrics) write(w io.Writer) {
	m.set.WritePrometheus(w)
}
