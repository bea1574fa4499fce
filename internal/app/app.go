// Package app wires the fabric's components into a single process without
// resorting to the package-level singletons the teacher's cmd/sprintd
// reaches for (spec section 9, "Global singletons" design note): every
// dependency an Application owns is constructed once, in order, and
// handed down explicitly.
package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/PayRpc/a2a-fabric/internal/config"
	"github.com/PayRpc/a2a-fabric/internal/health"
	"github.com/PayRpc/a2a-fabric/internal/lifecycle"
	"github.com/PayRpc/a2a-fabric/internal/metrics"
	"github.com/PayRpc/a2a-fabric/internal/registry"
	"github.com/PayRpc/a2a-fabric/internal/router"
	"github.com/PayRpc/a2a-fabric/internal/transport"
)

// Application owns the lifetime of every fabric component: the Transport
// Layer, the Capability Registry & Composer, the Router & Fallback Core,
// and the Health & Optimization Shell, plus the metrics registry and
// lifecycle sink shared between them.
type Application struct {
	Config config.Config
	Logger *zap.Logger

	Metrics *metrics.Registry
	Sink    lifecycle.Sink

	Transport  *transport.Transport
	Registry   *registry.Registry
	Router     *router.Router
	Breakers   *health.Registry
	Predictor  *health.LatencyPredictor
	Strategies *health.Selector
	Monitor    *health.Monitor

	started bool
}

// New constructs every component but does not start any of them; call
// Start to bring the fabric up.
func New(cfg config.Config, logger *zap.Logger, promReg *prometheus.Registry, sink lifecycle.Sink) *Application {
	if sink == nil {
		sink = lifecycle.NopSink{}
	}
	m := metrics.NewRegistry(promReg)

	reg := registry.New(logger, m, sink)
	rt := router.New(cfg, logger, m, sink)
	breakers := health.NewRegistry(health.CircuitBreakerConfig{
		FailureThreshold: cfg.CircuitFailureThreshold,
		ResetTimeout:     cfg.CircuitResetTimeout,
		HalfOpenMaxCalls: cfg.CircuitHalfOpenMaxCalls,
	}, logger, m)
	predictor := health.NewLatencyPredictor()
	selector := health.NewSelector(logger, sink, m)
	selector.Register(health.Strategy{
		Name:               "error-rate-retry",
		Kind:               health.KindRetry,
		Priority:           1,
		SuccessRate:        0.8,
		AverageImprovement: 1.0,
		Conditions:         health.Conditions{ErrorRateAbove: 0.2},
		Run: func(invoke health.DirectInvoke) (health.Outcome, error) {
			out, err := invoke()
			if err == nil {
				return out, nil
			}
			return invoke()
		},
	})
	tp := transport.New(cfg, logger, m, sink)
	rt.WireShell(breakers, predictor, selector)

	signals := func() health.Signals {
		metrics := rt.Metrics()
		errorRate := 0.0
		if metrics.TotalRequests > 0 {
			errorRate = float64(metrics.EmergencyCount) / float64(metrics.TotalRequests)
		}
		availability := 1.0
		if statuses := rt.Health(); len(statuses) > 0 {
			healthy := 0
			for _, st := range statuses {
				if st.Available {
					healthy++
				}
			}
			availability = float64(healthy) / float64(len(statuses))
		}
		return health.Signals{
			ErrorRate:    errorRate,
			LatencyMs:    predictor.Average(),
			Availability: availability,
		}
	}
	monitor := health.NewMonitor(cfg.HealthCheckInterval, cfg.AlertThresholds, cfg.AlertWebhookURLs, signals, sink, logger)

	return &Application{
		Config:     cfg,
		Logger:     logger,
		Metrics:    m,
		Sink:       sink,
		Transport:  tp,
		Registry:   reg,
		Router:     rt,
		Breakers:   breakers,
		Predictor:  predictor,
		Strategies: selector,
		Monitor:    monitor,
	}
}

// Start brings the fabric online. It starts the Transport (its idle
// reaper) and the health Monitor; the Registry, Router, and strategy
// selector are ready to serve as soon as they're constructed.
func (a *Application) Start(onMessage func(transport.Message)) {
	if a.started {
		return
	}
	a.started = true
	a.Transport.Initialize(onMessage)
	a.Monitor.Start()
	a.Logger.Info("a2a fabric started", zap.String("node_id", a.Config.NodeID))
}

// Shutdown tears the fabric down in registry -> router -> shell ->
// transport order (spec section 9 design note): stop accepting new
// capability work before draining in-flight routing, then the
// optimization shell's background state, and close the transport layer
// last so in-flight responses still have somewhere to go while the rest
// of the fabric winds down.
func (a *Application) Shutdown() {
	if !a.started {
		return
	}
	a.Logger.Info("a2a fabric shutting down")

	// Registry: nothing left to accept once the process is shutting down;
	// it holds no background goroutines of its own to stop.

	// Router: nothing left to accept either; in-flight Generate calls hold
	// their own provider references and complete independently.

	// Health shell: the predictor and selector are evaluated synchronously
	// per call and hold no background state; the Monitor is the shell's
	// only goroutine and is stopped explicitly below.
	a.Monitor.Stop()

	a.Transport.Shutdown()
	a.started = false
}
