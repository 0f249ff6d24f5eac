package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsIdle(t *testing.T) {
	now := time.Now()

	exited3hAgo := SandboxStatus{
		State:     SandboxExited,
		HasExited: true,
		ExitedAt:  now.Add(-3 * time.Hour),
	}
	assert.True(t, IsIdle(exited3hAgo, 2))
	assert.False(t, IsIdle(exited3hAgo, 4))

	running := SandboxStatus{
		State:     SandboxRunning,
		CreatedAt: now.Add(-48 * time.Hour),
	}
	assert.False(t, IsIdle(running, 1))

	errored := SandboxStatus{
		State:     SandboxError,
		HasExited: true,
		ExitedAt:  now.Add(-10 * time.Hour),
	}
	assert.True(t, IsIdle(errored, 1))

	pendingOld := SandboxStatus{
		State:     SandboxPending,
		CreatedAt: now.Add(-5 * time.Hour),
	}
	assert.True(t, IsIdle(pendingOld, 4))
	assert.False(t, IsIdle(pendingOld, 6))

	starting := SandboxStatus{
		State:     SandboxState("starting"),
		CreatedAt: now.Add(-10 * time.Hour),
	}
	assert.False(t, IsIdle(starting, 1))

	noTimestamps := SandboxStatus{State: SandboxExited}
	assert.True(t, IsIdle(noTimestamps, 1))
}

func TestIsTooOld(t *testing.T) {
	now := time.Now()

	tenDaysOld := SandboxStatus{CreatedAt: now.Add(-10 * 24 * time.Hour)}
	assert.True(t, IsTooOld(tenDaysOld, 7))
	assert.False(t, IsTooOld(tenDaysOld, 14))

	oneDayOld := SandboxStatus{CreatedAt: now.Add(-24 * time.Hour)}
	assert.False(t, IsTooOld(oneDayOld, 7))

	fallbackStarted := SandboxStatus{
		HasStarted: true,
		StartedAt:  now.Add(-20 * 24 * time.Hour),
	}
	assert.True(t, IsTooOld(fallbackStarted, 14))

	noTimestamps := SandboxStatus{}
	assert.False(t, IsTooOld(noTimestamps, 7))
}

func TestShouldPruneRespectsInterval(t *testing.T) {
	resetPruneTimer()
	assert.True(t, ShouldPrune())
	assert.False(t, ShouldPrune())

	resetPruneTimer()
	assert.True(t, ShouldPrune())
}

type fakeDriver struct {
	Driver
	sandboxes []SandboxStatus
	stopped   []string
	removed   []string
}

func (f *fakeDriver) ListSandboxes(ctx context.Context) ([]SandboxStatus, error) {
	return f.sandboxes, nil
}

func (f *fakeDriver) StopContainer(ctx context.Context, slug string) error {
	f.stopped = append(f.stopped, slug)
	return nil
}

func (f *fakeDriver) RemoveContainer(ctx context.Context, slug string) error {
	f.removed = append(f.removed, slug)
	return nil
}

func TestPruneSandboxesFiltersMixed(t *testing.T) {
	resetPruneTimer()
	now := time.Now()

	driver := &fakeDriver{
		sandboxes: []SandboxStatus{
			{Slug: "keep1", State: SandboxRunning, CreatedAt: now.Add(-1 * time.Second)},
			{Slug: "prune1", State: SandboxExited, HasExited: true, ExitedAt: now.Add(-10 * time.Hour), CreatedAt: now.Add(-24 * time.Hour)},
			{Slug: "prune2", State: SandboxRunning, CreatedAt: now.Add(-30 * 24 * time.Hour)},
		},
	}

	deleted, err := PruneSandboxes(context.Background(), driver, 2, 14)
	assert.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.ElementsMatch(t, []string{"prune1", "prune2"}, driver.removed)
	assert.Contains(t, driver.stopped, "prune2")
	assert.NotContains(t, driver.stopped, "prune1")
}

func TestPruneSandboxesRateLimited(t *testing.T) {
	resetPruneTimer()
	driver := &fakeDriver{sandboxes: []SandboxStatus{
		{Slug: "x", State: SandboxExited, HasExited: true, ExitedAt: time.Now().Add(-100 * time.Hour)},
	}}

	deleted, err := PruneSandboxes(context.Background(), driver, 1, 1)
	assert.NoError(t, err)
	assert.Equal(t, 1, deleted)

	deleted, err = PruneSandboxes(context.Background(), driver, 1, 1)
	assert.NoError(t, err)
	assert.Equal(t, 0, deleted)
}
