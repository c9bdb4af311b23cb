package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "carry_backtest"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry      *prometheus.Registry
	runsCompleted prometheus.Counter
	runsFailed    prometheus.Counter
	events        *prometheus.CounterVec
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	runsCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "runs_completed_total",
		Help:      "Total number of simulation runs that finished.",
	})
	runsFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "runs_failed_total",
		Help:      "Total number of simulation runs that returned an error.",
	})
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "events_total",
		Help:      "Total number of simulated position events by type.",
	}, []string{"type"})

	registry.MustRegister(runsCompleted, runsFailed, events)

	m := &Metrics{
		RunsCompleted: promCounter{runsCompleted},
		RunsFailed:    promCounter{runsFailed},
		Opens:         promCounter{events.WithLabelValues("open")},
		Closes:        promCounter{events.WithLabelValues("close")},
		Liquidations:  promCounter{events.WithLabelValues("liquidation")},
		Rebalances:    promCounter{events.WithLabelValues("rebalance")},
	}

	return &Prometheus{
		Metrics:       m,
		registry:      registry,
		runsCompleted: runsCompleted,
		runsFailed:    runsFailed,
		events:        events,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
