package sweeper_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staffduty/internal/database"
	"staffduty/internal/database/dbtest"
	"staffduty/internal/duty"
	"staffduty/internal/models"
	"staffduty/internal/sweeper"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type members struct {
	gone map[string]bool
	err  error
}

func (m members) Exists(_ context.Context, _, userID string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return !m.gone[userID], nil
}

type marker struct {
	mu      sync.Mutex
	deny    map[string]bool
	revoked []string
}

func (m *marker) Grant(context.Context, string, string, string) error { return nil }

func (m *marker) Revoke(_ context.Context, _, userID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deny[userID] {
		return duty.ErrDenied
	}
	m.revoked = append(m.revoked, userID)
	return nil
}

type notes struct {
	mu    sync.Mutex
	lines []string
}

func (n *notes) Notify(_ context.Context, _ models.GuildConfig, text string) {
	n.mu.Lock()
	n.lines = append(n.lines, text)
	n.mu.Unlock()
}

type observed struct {
	closed, discarded, failed int
}

func (o *observed) SweepFinished(closed, discarded, failed int, _ time.Duration) {
	o.closed += closed
	o.discarded += discarded
	o.failed += failed
}

var start = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	repo    *database.Repository
	clock   *clock
	machine *duty.Machine
	marker  *marker
	notes   *notes
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := dbtest.Repository(t)
	c := &clock{t: start}
	f := &fixture{
		repo:    repo,
		clock:   c,
		machine: duty.NewMachine(repo, c.Now),
		marker:  &marker{deny: map[string]bool{}},
		notes:   &notes{},
	}
	require.NoError(t, repo.SetDutyRoles(context.Background(), "g1", "staff", "onduty", "log"))
	return f
}

func (f *fixture) begin(t *testing.T, guildID, userID string, at time.Time) {
	t.Helper()
	f.clock.Set(at)
	_, err := f.machine.Begin(context.Background(), guildID, userID, models.ShiftSupport)
	require.NoError(t, err)
}

func (f *fixture) sweeper(m sweeper.Members, obs sweeper.Observer) *sweeper.Sweeper {
	return sweeper.New(f.repo, f.machine, m, f.marker, sweeper.Options{
		Notifier: f.notes,
		Observer: obs,
		Now:      f.clock.Now,
	})
}

func TestSweepThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	now := start.Add(24 * time.Hour)
	f.begin(t, "g1", "stale", now.Add(-6*time.Hour-time.Minute))
	f.begin(t, "g1", "fresh", now.Add(-5*time.Hour-59*time.Minute))
	f.clock.Set(now)

	obs := &observed{}
	res := f.sweeper(members{}, obs).Sweep(ctx)
	assert.Equal(t, sweeper.Result{Closed: 1}, res)
	assert.Equal(t, 1, obs.closed)
	assert.Equal(t, []string{"stale"}, f.marker.revoked)

	active, err := f.machine.Active(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "fresh", active[0].UserID)

	sessions, err := f.repo.ListDutySessions(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 6*time.Hour+time.Minute, sessions[0].Duration)
	require.Len(t, f.notes.lines, 1)
	assert.Contains(t, f.notes.lines[0], "Auto Clock-Out")
}

func TestSweepUsesGuildThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.SetAutoOutHours(ctx, "g1", 1))

	f.begin(t, "g1", "u1", start)
	f.clock.Set(start.Add(61 * time.Minute))

	res := f.sweeper(members{}, nil).Sweep(ctx)
	assert.Equal(t, 1, res.Closed)
}

func TestSweepDiscardsDepartedMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.begin(t, "g1", "gone", start)
	f.clock.Set(start.Add(7 * time.Hour))

	res := f.sweeper(members{gone: map[string]bool{"gone": true}}, nil).Sweep(ctx)
	assert.Equal(t, sweeper.Result{Discarded: 1}, res)
	assert.Empty(t, f.marker.revoked)

	active, err := f.machine.Active(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, active)
	sessions, err := f.repo.ListDutySessions(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestSweepDeniedIsRetriedNextTick(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.begin(t, "g1", "locked", start)
	f.begin(t, "g1", "ok", start)
	f.clock.Set(start.Add(7 * time.Hour))
	f.marker.deny["locked"] = true

	sw := f.sweeper(members{}, nil)
	res := sw.Sweep(ctx)
	assert.Equal(t, sweeper.Result{Closed: 1, Failed: 1}, res)

	active, err := f.machine.Active(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "locked", active[0].UserID)
	assert.Contains(t, f.notes.lines[0], "Auto clock-out failed")

	delete(f.marker.deny, "locked")
	f.clock.Set(start.Add(7*time.Hour + 10*time.Minute))
	res = sw.Sweep(ctx)
	assert.Equal(t, sweeper.Result{Closed: 1}, res)

	active, err = f.machine.Active(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSweepSkipsUnconfiguredGuild(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.EnsureGuild(ctx, "g2"))

	f.begin(t, "g2", "u1", start)
	f.clock.Set(start.Add(48 * time.Hour))

	res := f.sweeper(members{}, nil).Sweep(ctx)
	assert.Equal(t, sweeper.Result{}, res)
	active, err := f.machine.Active(ctx, "g2")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestSweepMemberLookupErrorDoesNotAbort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.repo.SetDutyRoles(ctx, "g2", "staff", "onduty", ""))

	f.begin(t, "g1", "u1", start)
	f.begin(t, "g2", "u2", start)
	f.clock.Set(start.Add(7 * time.Hour))

	res := f.sweeper(members{err: errors.New("gateway down")}, nil).Sweep(ctx)
	assert.Equal(t, sweeper.Result{Failed: 2}, res)

	for _, g := range []string{"g1", "g2"} {
		active, err := f.machine.Active(ctx, g)
		require.NoError(t, err)
		assert.Len(t, active, 1, g)
	}
}

func TestSweepRacingManualSignOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.begin(t, "g1", "u1", start)
	f.clock.Set(start.Add(7 * time.Hour))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		f.sweeper(members{}, nil).Sweep(ctx)
	}()
	go func() {
		defer wg.Done()
		_, _ = f.machine.End(ctx, "g1", "u1")
	}()
	wg.Wait()

	active, err := f.machine.Active(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, active)

	sessions, err := f.repo.ListDutySessions(ctx, "g1")
	require.NoError(t, err)
	var long int
	for _, s := range sessions {
		if s.Duration == 7*time.Hour {
			long++
		}
	}
	assert.Equal(t, 1, long, "exactly one closer records the real session")
}
