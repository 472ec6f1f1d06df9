package health

import (
	"context"
	"testing"
	"time"

	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unistore/unistore/pkg/accessor"
	"github.com/unistore/unistore/pkg/backend/memory"
	"github.com/unistore/unistore/pkg/errors"
	"github.com/unistore/unistore/pkg/layers"
	"github.com/unistore/unistore/pkg/operator"
)

// failing flips every list call into a retryable failure.
type failing struct {
	accessor.Accessor
}

func (f *failing) List(ctx context.Context, path string, args accessor.OpList) (*accessor.ListPage, error) {
	return nil, errors.New(errors.KindRetryable, "backend down")
}

func TestMonitorHealthy(t *testing.T) {
	logger, _ := logrustest.NewNullLogger()
	op := operator.New(memory.New(""))

	m := NewMonitor(op, Config{Interval: time.Hour}, logger)
	m.Start(context.Background())
	defer m.Stop()

	require.Eventually(t, m.Healthy, time.Second, 5*time.Millisecond)

	report := m.Report()
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Zero(t, report.ConsecutiveFailures)
	assert.NoError(t, report.LastError)
}

func TestMonitorDegradesThenFails(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()
	op := operator.New(&failing{Accessor: memory.New("")})

	m := NewMonitor(op, Config{
		Interval:         5 * time.Millisecond,
		FailureThreshold: 3,
	}, logger)
	m.Start(context.Background())
	defer m.Stop()

	require.Eventually(t, func() bool {
		return m.Report().Status == StatusUnhealthy
	}, time.Second, 5*time.Millisecond)

	report := m.Report()
	assert.GreaterOrEqual(t, report.ConsecutiveFailures, 3)
	assert.Error(t, report.LastError)
	assert.NotEmpty(t, hook.Entries)
}

func TestMonitorLayersDoNotAffectProbe(t *testing.T) {
	logger, _ := logrustest.NewNullLogger()
	op := operator.New(memory.New(""), layers.NewMetacache(16))

	m := NewMonitor(op, Config{Interval: time.Hour}, logger)
	m.Start(context.Background())
	defer m.Stop()

	require.Eventually(t, m.Healthy, time.Second, 5*time.Millisecond)
}
