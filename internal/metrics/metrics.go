// Package metrics exposes engine counters in the Prometheus format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/xQBCx/biz-dev-app-firebase-sub001/domain"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/internal/infrastructure/buffer"
	"github.com/xQBCx/biz-dev-app-firebase-sub001/usecase"
)

const namespace = "attribution"

// InboxStats reports the usage inbox depth.
type InboxStats interface {
	Stats() buffer.Stats
}

// Collector implements usecase.Metrics on a private registry.
type Collector struct {
	registry    *prometheus.Registry
	executions  *prometheus.CounterVec
	distributed prometheus.Counter
	proposals   *prometheus.CounterVec
	usage       *prometheus.CounterVec
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_executions_total",
			Help:      "Settlement executions by terminal status.",
		}, []string{"status"}),
		distributed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_distributed_total",
			Help:      "Sum of payout amounts written by completed executions, all currencies.",
		}),
		proposals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposals_resolved_total",
			Help:      "Change proposals by resolution.",
		}, []string{"status"}),
		usage: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_events_total",
			Help:      "Usage events offered to the ledger.",
		}, []string{"result"}),
	}
	c.registry.MustRegister(
		c.executions,
		c.distributed,
		c.proposals,
		c.usage,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// WatchInbox exports the inbox depth as gauges read at scrape time.
func (c *Collector) WatchInbox(inbox InboxStats) {
	c.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inbox_pending",
			Help:      "Usage inbox items waiting to be applied.",
		}, func() float64 { return float64(inbox.Stats().Pending) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inbox_dead_letters",
			Help:      "Usage inbox items that exhausted their attempts.",
		}, func() float64 { return float64(inbox.Stats().Dead) }),
	)
}

func (c *Collector) ExecutionFinished(status domain.ExecutionStatus, amount decimal.Decimal) {
	c.executions.WithLabelValues(string(status)).Inc()
	if amount.IsPositive() {
		c.distributed.Add(amount.InexactFloat64())
	}
}

func (c *Collector) ProposalResolved(status domain.ProposalStatus) {
	c.proposals.WithLabelValues(string(status)).Inc()
}

func (c *Collector) UsageRecorded(duplicate bool) {
	result := "recorded"
	if duplicate {
		result = "duplicate"
	}
	c.usage.WithLabelValues(result).Inc()
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry on fasthttp.
func (c *Collector) Handler() fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
}

var _ usecase.Metrics = (*Collector)(nil)
