package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foofork/riptide/engine/models"
)

type fakeSandbox struct {
	id        string
	failNext  atomic.Bool
	healthErr error
	closed    atomic.Bool
}

func (f *fakeSandbox) Extract(ctx context.Context, html, url string, mode models.ExtractionMode) (models.ExtractedDoc, error) {
	if f.failNext.Load() {
		return models.ExtractedDoc{}, errors.New("boom")
	}
	return models.ExtractedDoc{URL: url}, nil
}

func (f *fakeSandbox) HealthCheck(ctx context.Context) (models.HealthStatus, error) {
	if f.healthErr != nil {
		return models.HealthStatus{}, f.healthErr
	}
	return models.HealthStatus{}, nil
}

func (f *fakeSandbox) Peak() uint32 { return 0 }

func (f *fakeSandbox) Close(ctx context.Context) error {
	f.closed.Store(true)
	return nil
}

func newTestFactory() (Factory, *int32) {
	var created int32
	factory := func(ctx context.Context, id string) (Sandboxed, error) {
		atomic.AddInt32(&created, 1)
		return &fakeSandbox{id: id}, nil
	}
	return factory, &created
}

func TestAcquireReleaseReusesInstance(t *testing.T) {
	factory, created := newTestFactory()
	cfg := DefaultConfig()
	cfg.MaxPoolSize = 2
	cfg.MaxConcurrentCalls = 2
	p := New(cfg, factory)
	defer p.Close(context.Background())

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	lease.Release(nil)

	lease2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	lease2.Release(nil)

	assert.Equal(t, int32(1), atomic.LoadInt32(created), "second acquire should reuse the idle instance")
	assert.Equal(t, uint64(1), p.Metrics().Reuses)
}

func TestAcquireRespectsMaxConcurrentCalls(t *testing.T) {
	factory, _ := newTestFactory()
	cfg := DefaultConfig()
	cfg.MaxPoolSize = 4
	cfg.MaxConcurrentCalls = 1
	cfg.AdmissionTimeout = 20 * time.Millisecond
	p := New(cfg, factory)
	defer p.Close(context.Background())

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)

	_, err = p.Acquire(context.Background())
	require.Error(t, err)
	var extractErr *models.ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, models.ErrKindResourceLimit, extractErr.Kind)

	lease.Release(nil)
}

func TestReleaseWithErrorDiscardsInstance(t *testing.T) {
	factory, created := newTestFactory()
	cfg := DefaultConfig()
	cfg.MaxPoolSize = 2
	cfg.MaxConcurrentCalls = 2
	cfg.FailureThreshold = 100
	p := New(cfg, factory)
	defer p.Close(context.Background())

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	lease.Release(errors.New("extract failed"))

	lease2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	lease2.Release(nil)

	assert.Equal(t, int32(2), atomic.LoadInt32(created), "discarded instance must not be reused")
	assert.Equal(t, uint64(1), p.Metrics().Evictions)
}

func TestRotationRetiresInstanceAfterMaxUses(t *testing.T) {
	factory, created := newTestFactory()
	cfg := DefaultConfig()
	cfg.MaxPoolSize = 2
	cfg.MaxConcurrentCalls = 2
	cfg.MaxInstanceUses = 2

	p := New(cfg, factory)
	defer p.Close(context.Background())

	for i := 0; i < 2; i++ {
		lease, err := p.Acquire(context.Background())
		require.NoError(t, err)
		lease.Release(nil)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(created))

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(created), "instance should rotate out after MaxInstanceUses")
	lease.Release(nil)
}

func TestBreakerOpenFailsAcquireFast(t *testing.T) {
	factory, _ := newTestFactory()
	cfg := DefaultConfig()
	cfg.MaxPoolSize = 1
	cfg.MaxConcurrentCalls = 1
	cfg.FailureThreshold = 1
	cfg.OpenCooldown = time.Minute
	p := New(cfg, factory)
	defer p.Close(context.Background())

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	lease.Release(errors.New("boom"))

	_, err = p.Acquire(context.Background())
	require.Error(t, err)
	var extractErr *models.ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, models.ErrKindCircuitOpen, extractErr.Kind)
}
