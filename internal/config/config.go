// Package config builds an Operator from a declarative YAML document. The
// document names one backend and an ordered layer list; anything it does not
// recognize fails at load time rather than at first use.
package config

import (
	"context"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
	yaml "gopkg.in/yaml.v2"

	"github.com/unistore/unistore/pkg/accessor"
	"github.com/unistore/unistore/pkg/backend/bolt"
	"github.com/unistore/unistore/pkg/backend/fs"
	"github.com/unistore/unistore/pkg/backend/memory"
	"github.com/unistore/unistore/pkg/backend/s3"
	"github.com/unistore/unistore/pkg/errors"
	"github.com/unistore/unistore/pkg/layers"
	"github.com/unistore/unistore/pkg/operator"
	"github.com/unistore/unistore/pkg/retry"
)

// Config is the root document.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Layers  []LayerConfig `yaml:"layers"`
}

// BackendConfig selects and parameterizes one backend.
type BackendConfig struct {
	Scheme string `yaml:"scheme"`
	Name   string `yaml:"name"`

	FS   FSConfig   `yaml:"fs"`
	Bolt BoltConfig `yaml:"bolt"`
	S3   s3.Config  `yaml:"s3"`
}

// FSConfig parameterizes the directory backend.
type FSConfig struct {
	Root string `yaml:"root"`
}

// BoltConfig parameterizes the bolt backend.
type BoltConfig struct {
	Path string `yaml:"path"`
}

// LayerConfig selects and parameterizes one layer. Order in the document is
// stack order, first entry innermost.
type LayerConfig struct {
	Type string `yaml:"type"`

	Retry     retry.Config         `yaml:"retry"`
	Metrics   MetricsConfig        `yaml:"metrics"`
	Compress  CompressConfig       `yaml:"compress"`
	Metacache MetacacheConfig      `yaml:"metacache"`
	Breaker   layers.BreakerConfig `yaml:"breaker"`
}

// MetricsConfig parameterizes the metrics layer.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// CompressConfig parameterizes the compression layer.
type CompressConfig struct {
	Codec string `yaml:"codec"`
}

// MetacacheConfig parameterizes the metadata cache layer.
type MetacacheConfig struct {
	Size int `yaml:"size"`
}

// Load reads and parses the document at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.KindOther, "reading configuration file").
			WithPath(path).
			WithCause(err)
	}
	return Parse(raw)
}

// Parse parses a YAML document.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.UnmarshalStrict(raw, &cfg); err != nil {
		return nil, errors.New(errors.KindInvalidInput, "malformed configuration").WithCause(err)
	}
	if cfg.Backend.Scheme == "" {
		return nil, errors.New(errors.KindInvalidInput, "configuration names no backend scheme")
	}
	return &cfg, nil
}

// BuildOptions carries the runtime collaborators configuration cannot
// express.
type BuildOptions struct {
	Logger         *logrus.Logger
	Registerer     prometheus.Registerer
	TracerProvider trace.TracerProvider
}

// Build constructs the backend and layer stack the document describes.
func (c *Config) Build(ctx context.Context, opts BuildOptions) (*operator.Operator, error) {
	backend, err := c.buildBackend(ctx)
	if err != nil {
		return nil, err
	}
	ls, err := c.buildLayers(opts)
	if err != nil {
		return nil, err
	}
	return operator.New(backend, ls...), nil
}

func (c *Config) buildBackend(ctx context.Context) (accessor.Accessor, error) {
	b := c.Backend
	switch b.Scheme {
	case "memory":
		return memory.New(b.Name), nil
	case "fs":
		if b.FS.Root == "" {
			return nil, errors.New(errors.KindInvalidInput, "fs backend requires a root directory")
		}
		return fs.New(b.Name, b.FS.Root), nil
	case "bolt":
		if b.Bolt.Path == "" {
			return nil, errors.New(errors.KindInvalidInput, "bolt backend requires a database path")
		}
		return bolt.Open(b.Name, b.Bolt.Path)
	case "s3":
		return s3.New(ctx, b.Name, b.S3)
	default:
		return nil, errors.Errorf(errors.KindInvalidInput, "unknown backend scheme %q", b.Scheme)
	}
}

func (c *Config) buildLayers(opts BuildOptions) ([]layers.Layer, error) {
	built := make([]layers.Layer, 0, len(c.Layers))
	for _, lc := range c.Layers {
		switch lc.Type {
		case "retry":
			built = append(built, layers.NewRetry(layers.RetryConfig{Backoff: lc.Retry}))
		case "logging":
			built = append(built, layers.NewLogging(opts.Logger))
		case "metrics":
			m, err := layers.NewMetrics(layers.MetricsConfig{
				Namespace:  lc.Metrics.Namespace,
				Subsystem:  lc.Metrics.Subsystem,
				Registerer: opts.Registerer,
			})
			if err != nil {
				return nil, err
			}
			built = append(built, m)
		case "tracing":
			built = append(built, layers.NewTracing(opts.TracerProvider))
		case "compress":
			codec, err := layers.NewCodec(lc.Compress.Codec)
			if err != nil {
				return nil, err
			}
			built = append(built, layers.NewCompress(codec))
		case "metacache":
			built = append(built, layers.NewMetacache(lc.Metacache.Size))
		case "breaker":
			built = append(built, layers.NewBreaker(lc.Breaker))
		default:
			return nil, errors.Errorf(errors.KindInvalidInput, "unknown layer type %q", lc.Type)
		}
	}
	return built, nil
}
