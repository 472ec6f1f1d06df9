// Package health periodically probes configured operators and tracks their
// reachability over time, so callers can expose readiness without wiring
// probes themselves.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unistore/unistore/pkg/operator"
)

// Status is the probe verdict for one operator.
type Status int

const (
	// StatusUnknown means no probe has completed yet.
	StatusUnknown Status = iota
	// StatusHealthy means the last probe succeeded.
	StatusHealthy
	// StatusDegraded means recent probes failed but not enough to declare
	// the backend down.
	StatusDegraded
	// StatusUnhealthy means the failure threshold was crossed.
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Config controls probing.
type Config struct {
	// Interval between probes.
	Interval time.Duration `yaml:"interval"`

	// Timeout bounds one probe.
	Timeout time.Duration `yaml:"timeout"`

	// FailureThreshold is how many consecutive failures flip the status
	// to unhealthy.
	FailureThreshold int `yaml:"failure_threshold"`
}

// Report is the result of the most recent probe.
type Report struct {
	Status              Status
	ConsecutiveFailures int
	LastChecked         time.Time
	LastError           error
}

// Monitor probes one operator on a schedule.
type Monitor struct {
	op     *operator.Operator
	config Config
	logger *logrus.Logger

	mu     sync.RWMutex
	report Report

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewMonitor creates a monitor. Zero config fields get sane defaults; a nil
// logger falls back to the logrus standard logger.
func NewMonitor(op *operator.Operator, config Config, logger *logrus.Logger) *Monitor {
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 3
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Monitor{
		op:     op,
		config: config,
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the probe loop. It probes once immediately so Report is
// meaningful right after startup.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		defer close(m.done)

		m.probe(ctx)
		ticker := time.NewTicker(m.config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.probe(ctx)
			}
		}
	}()
}

// Stop ends the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

// Report returns the latest probe outcome.
func (m *Monitor) Report() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.report
}

// Healthy reports whether the backend answered its most recent probes.
func (m *Monitor) Healthy() bool {
	return m.Report().Status == StatusHealthy
}

func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	err := m.op.Check(probeCtx)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.report.LastChecked = time.Now()
	m.report.LastError = err
	if err == nil {
		if m.report.Status != StatusHealthy && m.report.Status != StatusUnknown {
			m.logger.WithField("backend", m.op.Info().Name).Info("backend recovered")
		}
		m.report.Status = StatusHealthy
		m.report.ConsecutiveFailures = 0
		return
	}

	m.report.ConsecutiveFailures++
	if m.report.ConsecutiveFailures >= m.config.FailureThreshold {
		m.report.Status = StatusUnhealthy
	} else {
		m.report.Status = StatusDegraded
	}
	m.logger.WithFields(logrus.Fields{
		"backend":  m.op.Info().Name,
		"failures": m.report.ConsecutiveFailures,
		"status":   m.report.Status.String(),
	}).WithError(err).Warn("backend probe failed")
}
