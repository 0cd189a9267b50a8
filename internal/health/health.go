// Package health monitors the bridge's components. A Service runs the
// registered checkers on a fixed interval, keeps the latest result per
// component, exports them as Prometheus metrics, and rolls them up into an
// overall status.
package health

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Status is a component or overall health status.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// gaugeValue maps a status onto the component health gauge.
func (s Status) gaugeValue() float64 {
	switch s {
	case StatusHealthy:
		return 1
	case StatusDegraded:
		return 0.5
	default:
		return 0
	}
}

// ComponentHealth is the result of one checker run.
type ComponentHealth struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	Message      string        `json:"message,omitempty"`
	ResponseTime time.Duration `json:"responseTime"`
	LastCheck    time.Time     `json:"lastCheck"`
}

// Report is the rolled-up view over every component.
type Report struct {
	Status     Status            `json:"status"`
	Components []ComponentHealth `json:"components"`
	Uptime     time.Duration     `json:"uptime"`
}

// Checker probes one component. Implementations must honor ctx and return
// quickly; the Service measures response time around the call.
type Checker interface {
	Name() string
	Check(ctx context.Context) (Status, string)
}

// CheckFunc adapts a function to the Checker interface.
type CheckFunc struct {
	ComponentName string
	Fn            func(ctx context.Context) (Status, string)
}

func (c CheckFunc) Name() string { return c.ComponentName }

func (c CheckFunc) Check(ctx context.Context) (Status, string) { return c.Fn(ctx) }

// Metrics holds the Prometheus instruments for health monitoring.
type Metrics struct {
	componentHealth *prometheus.GaugeVec
	checkDuration   *prometheus.GaugeVec
	checksTotal     *prometheus.CounterVec
}

// NewMetrics creates and registers the health instruments.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		componentHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wabridge_component_health_status",
			Help: "Component health status (1=healthy, 0.5=degraded, 0=unhealthy)",
		}, []string{"component"}),
		checkDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wabridge_health_check_duration_seconds",
			Help: "Health check response time",
		}, []string{"component"}),
		checksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wabridge_health_checks_total",
			Help: "Total health checks performed",
		}, []string{"component", "status"}),
	}
	reg.MustRegister(m.componentHealth, m.checkDuration, m.checksTotal)
	return m
}

// Service runs checkers periodically and caches the latest results.
type Service struct {
	checkers []Checker
	interval time.Duration
	metrics  *Metrics
	logger   *slog.Logger

	startedAt time.Time
	mu        sync.RWMutex
	results   map[string]ComponentHealth
}

// NewService creates a health service. Metrics may be nil to disable
// Prometheus export.
func NewService(interval time.Duration, metrics *Metrics, logger *slog.Logger) *Service {
	return &Service{
		interval:  interval,
		metrics:   metrics,
		logger:    logger,
		startedAt: time.Now(),
		results:   make(map[string]ComponentHealth),
	}
}

// Register adds a checker. Not safe to call after Run has started.
func (s *Service) Register(c Checker) {
	s.checkers = append(s.checkers, c)
}

// Run checks all components immediately and then on every interval tick
// until ctx is canceled.
func (s *Service) Run(ctx context.Context) {
	s.logger.Info("Health monitoring started",
		"interval", s.interval,
		"components", len(s.checkers),
	)

	s.CheckAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.CheckAll(ctx)
		case <-ctx.Done():
			s.logger.Info("Health monitoring stopped")
			return
		}
	}
}

// CheckAll runs every checker once and returns the rolled-up report.
func (s *Service) CheckAll(ctx context.Context) Report {
	for _, checker := range s.checkers {
		start := time.Now()
		status, message := checker.Check(ctx)
		elapsed := time.Since(start)

		result := ComponentHealth{
			Name:         checker.Name(),
			Status:       status,
			Message:      message,
			ResponseTime: elapsed,
			LastCheck:    time.Now(),
		}

		s.mu.Lock()
		s.results[result.Name] = result
		s.mu.Unlock()

		if s.metrics != nil {
			s.metrics.componentHealth.WithLabelValues(result.Name).Set(status.gaugeValue())
			s.metrics.checkDuration.WithLabelValues(result.Name).Set(elapsed.Seconds())
			s.metrics.checksTotal.WithLabelValues(result.Name, string(status)).Inc()
		}

		if status != StatusHealthy {
			s.logger.Warn("Component unhealthy",
				"component", result.Name,
				"status", status,
				"message", message,
			)
		}
	}

	return s.Report()
}

// Report returns the latest known state without running any checks.
func (s *Service) Report() Report {
	s.mu.RLock()
	components := make([]ComponentHealth, 0, len(s.results))
	for _, result := range s.results {
		components = append(components, result)
	}
	s.mu.RUnlock()

	sort.Slice(components, func(i, j int) bool {
		return components[i].Name < components[j].Name
	})

	return Report{
		Status:     rollup(components),
		Components: components,
		Uptime:     time.Since(s.startedAt),
	}
}

// rollup reduces component statuses to one overall status: any unhealthy
// component makes the system unhealthy, otherwise any degraded one makes it
// degraded.
func rollup(components []ComponentHealth) Status {
	if len(components) == 0 {
		return StatusUnknown
	}

	overall := StatusHealthy
	for _, c := range components {
		switch c.Status {
		case StatusUnhealthy, StatusUnknown:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}
