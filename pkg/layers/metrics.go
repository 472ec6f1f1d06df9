package layers

import (
	"context"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unistore/unistore/pkg/accessor"
	"github.com/unistore/unistore/pkg/errors"
)

// MetricsConfig configures the metrics layer.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`

	// Registerer receives the layer's collectors. Defaults to the
	// prometheus default registerer.
	Registerer prometheus.Registerer `yaml:"-"`
}

// Metrics records one counter increment and one duration observation per
// operation, byte totals for read and write streams, and error counts keyed
// by taxonomy kind.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	bytes      *prometheus.CounterVec
	errs       *prometheus.CounterVec
}

// NewMetrics creates the metrics layer and registers its collectors.
func NewMetrics(config MetricsConfig) (*Metrics, error) {
	if config.Registerer == nil {
		config.Registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "operations_total",
				Help:      "Total number of operations",
			},
			[]string{"operation", "backend", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "operation_duration_seconds",
				Help:      "Duration of operations in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
			},
			[]string{"operation", "backend"},
		),
		bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "bytes_total",
				Help:      "Total bytes moved through read and write streams",
			},
			[]string{"operation", "backend"},
		),
		errs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "errors_total",
				Help:      "Total number of failed operations",
			},
			[]string{"operation", "backend", "kind"},
		),
	}

	for _, c := range []prometheus.Collector{m.operations, m.duration, m.bytes, m.errs} {
		if err := config.Registerer.Register(c); err != nil {
			return nil, errors.New(errors.KindOther, "registering collectors").WithCause(err)
		}
	}
	return m, nil
}

// Wrap implements Layer.
func (m *Metrics) Wrap(inner accessor.Accessor) accessor.Accessor {
	return &metricsAccessor{inner: inner, metrics: m, backend: inner.Info().Name}
}

type metricsAccessor struct {
	inner   accessor.Accessor
	metrics *Metrics
	backend string
}

func (a *metricsAccessor) Info() accessor.About { return a.inner.Info() }

func (a *metricsAccessor) observe(op accessor.Operation, start time.Time, err error) {
	labels := prometheus.Labels{"operation": string(op), "backend": a.backend}
	a.metrics.duration.With(labels).Observe(time.Since(start).Seconds())

	status := "success"
	if err != nil {
		status = "error"
		a.metrics.errs.With(prometheus.Labels{
			"operation": string(op),
			"backend":   a.backend,
			"kind":      errors.ErrKind(err).String(),
		}).Inc()
	}
	a.metrics.operations.With(prometheus.Labels{
		"operation": string(op),
		"backend":   a.backend,
		"status":    status,
	}).Inc()
}

func (a *metricsAccessor) countBytes(op accessor.Operation, n int64) {
	a.metrics.bytes.With(prometheus.Labels{
		"operation": string(op),
		"backend":   a.backend,
	}).Add(float64(n))
}

func (a *metricsAccessor) Create(ctx context.Context, path string, args accessor.OpCreate) error {
	start := time.Now()
	err := a.inner.Create(ctx, path, args)
	a.observe(accessor.OperationCreate, start, err)
	return err
}

func (a *metricsAccessor) Read(ctx context.Context, path string, args accessor.OpRead) (io.ReadCloser, error) {
	start := time.Now()
	r, err := a.inner.Read(ctx, path, args)
	a.observe(accessor.OperationRead, start, err)
	if err != nil {
		return nil, err
	}
	return &meteredReader{inner: r, accessor: a}, nil
}

func (a *metricsAccessor) Write(ctx context.Context, path string, args accessor.OpWrite, body io.Reader) (*accessor.Metadata, error) {
	start := time.Now()
	counted := &countingReader{r: body}
	md, err := a.inner.Write(ctx, path, args, counted)
	a.observe(accessor.OperationWrite, start, err)
	a.countBytes(accessor.OperationWrite, counted.n.Load())
	return md, err
}

func (a *metricsAccessor) Stat(ctx context.Context, path string, args accessor.OpStat) (*accessor.Metadata, error) {
	start := time.Now()
	md, err := a.inner.Stat(ctx, path, args)
	a.observe(accessor.OperationStat, start, err)
	return md, err
}

func (a *metricsAccessor) Delete(ctx context.Context, path string, args accessor.OpDelete) error {
	start := time.Now()
	err := a.inner.Delete(ctx, path, args)
	a.observe(accessor.OperationDelete, start, err)
	return err
}

func (a *metricsAccessor) List(ctx context.Context, path string, args accessor.OpList) (*accessor.ListPage, error) {
	start := time.Now()
	page, err := a.inner.List(ctx, path, args)
	a.observe(accessor.OperationList, start, err)
	return page, err
}

func (a *metricsAccessor) Copy(ctx context.Context, src, dst string, args accessor.OpCopy) error {
	start := time.Now()
	err := a.inner.Copy(ctx, src, dst, args)
	a.observe(accessor.OperationCopy, start, err)
	return err
}

func (a *metricsAccessor) Rename(ctx context.Context, src, dst string, args accessor.OpRename) error {
	start := time.Now()
	err := a.inner.Rename(ctx, src, dst, args)
	a.observe(accessor.OperationRename, start, err)
	return err
}

func (a *metricsAccessor) Presign(ctx context.Context, path string, args accessor.OpPresign) (*accessor.PresignedRequest, error) {
	start := time.Now()
	req, err := a.inner.Presign(ctx, path, args)
	a.observe(accessor.OperationPresign, start, err)
	return req, err
}

// meteredReader counts bytes flowing through a read stream and adds the
// total to the bytes counter on Close.
type meteredReader struct {
	inner    io.ReadCloser
	accessor *metricsAccessor
	n        int64
	flushed  bool
}

func (r *meteredReader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	r.n += int64(n)
	return n, err
}

func (r *meteredReader) Close() error {
	if !r.flushed {
		r.flushed = true
		r.accessor.countBytes(accessor.OperationRead, r.n)
	}
	return r.inner.Close()
}
