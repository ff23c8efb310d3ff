package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "dblayer"

// poolCollector exports pgxpool.Stat on every scrape.
type poolCollector struct {
	stat func() *pgxpool.Stat

	acquired, idle, total, max *prometheus.Desc
	acquireCount, waitCount    *prometheus.Desc
	waitDuration               *prometheus.Desc
}

// NewPoolCollector returns a collector reading pool statistics from stat.
func NewPoolCollector(stat func() *pgxpool.Stat) prometheus.Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "db_pool", name), help, nil, nil)
	}
	return &poolCollector{
		stat:         stat,
		acquired:     desc("acquired_conns", "Connections currently in use."),
		idle:         desc("idle_conns", "Idle connections."),
		total:        desc("total_conns", "Open connections."),
		max:          desc("max_conns", "Maximum pool size."),
		acquireCount: desc("acquire_total", "Successful connection acquisitions."),
		waitCount:    desc("acquire_wait_total", "Acquisitions that had to wait for a free connection."),
		waitDuration: desc("acquire_wait_seconds_total", "Time spent waiting for a free connection."),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquired
	ch <- c.idle
	ch <- c.total
	ch <- c.max
	ch <- c.acquireCount
	ch <- c.waitCount
	ch <- c.waitDuration
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stat()
	if s == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(s.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(s.TotalConns()))
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(s.MaxConns()))
	ch <- prometheus.MustNewConstMetric(c.acquireCount, prometheus.CounterValue, float64(s.AcquireCount()))
	ch <- prometheus.MustNewConstMetric(c.waitCount, prometheus.CounterValue, float64(s.EmptyAcquireCount()))
	ch <- prometheus.MustNewConstMetric(c.waitDuration, prometheus.CounterValue, s.AcquireDuration().Seconds())
}

// NewErrorCounter returns the counter of classified database errors,
// labelled by kind.
func NewErrorCounter() *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "db_errors_total",
		Help:      "Database errors by classified kind.",
	}, []string{"kind"})
}

// RegisterMetrics attaches the error counter to p and, for real pools, the
// stats collector. A counter already registered by another pool is shared.
func (p *Pool) RegisterMetrics(reg prometheus.Registerer) error {
	counter := NewErrorCounter()
	if err := reg.Register(counter); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return err
		}
		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return err
		}
		counter = existing
	}
	p.errors = counter

	if p.pgx == nil {
		return nil
	}
	collector := NewPoolCollector(p.pgx.Stat)
	if err := reg.Register(collector); err != nil {
		return err
	}
	p.unreg = func() { reg.Unregister(collector) }
	return nil
}
