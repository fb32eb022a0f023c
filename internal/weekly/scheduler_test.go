package weekly_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staffduty/internal/activity"
	"staffduty/internal/database"
	"staffduty/internal/database/dbtest"
	"staffduty/internal/duty"
	"staffduty/internal/models"
	"staffduty/internal/weekly"
)

// Friday 2026-03-06 20:00 in UTC+3
var trigger = time.Date(2026, 3, 6, 17, 0, 0, 0, time.UTC)

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

type publisher struct {
	mu         sync.Mutex
	assignErr  error
	publishErr error
	winners    map[string]string
	reports    map[string][]weekly.Report
}

func newPublisher() *publisher {
	return &publisher{winners: map[string]string{}, reports: map[string][]weekly.Report{}}
}

func (p *publisher) AssignWinner(_ context.Context, cfg models.GuildConfig, winnerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.assignErr != nil {
		return p.assignErr
	}
	p.winners[cfg.GuildID] = winnerID
	return nil
}

func (p *publisher) PublishReport(_ context.Context, cfg models.GuildConfig, r weekly.Report) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.publishErr != nil {
		return p.publishErr
	}
	p.reports[cfg.GuildID] = append(p.reports[cfg.GuildID], r)
	return nil
}

type results []string

func (r *results) ReportFinished(result string) { *r = append(*r, result) }

type fixture struct {
	repo      *database.Repository
	clock     *clock
	machine   *duty.Machine
	agg       *activity.Aggregator
	publisher *publisher
	results   *results
	scheduler *weekly.Scheduler
}

func newFixture(t *testing.T, guilds ...string) *fixture {
	t.Helper()
	repo := dbtest.Repository(t)
	c := &clock{t: trigger}
	f := &fixture{
		repo:      repo,
		clock:     c,
		machine:   duty.NewMachine(repo, c.Now),
		agg:       activity.New(repo, nil),
		publisher: newPublisher(),
		results:   &results{},
	}
	f.scheduler = weekly.New(repo, f.machine, f.agg, f.publisher, weekly.Options{
		Observer: f.results,
		Now:      c.Now,
	})
	for _, g := range guilds {
		require.NoError(t, repo.SetWeekly(context.Background(), g, "weekly-"+g, "sotw-"+g))
	}
	return f
}

// session records one closed duty interval for userID
func (f *fixture) session(t *testing.T, guildID, userID string, start, end time.Time) {
	t.Helper()
	ctx := context.Background()
	f.clock.Set(start)
	_, err := f.machine.Begin(ctx, guildID, userID, models.ShiftSupport)
	require.NoError(t, err)
	f.clock.Set(end)
	_, err = f.machine.End(ctx, guildID, userID)
	require.NoError(t, err)
}

func (f *fixture) messages(t *testing.T, guildID, userID string, n int, at time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, f.agg.RecordMessage(context.Background(), guildID, userID, at))
	}
}

func (f *fixture) lastKey(t *testing.T, guildID string) string {
	t.Helper()
	cfg, err := f.repo.GuildConfig(context.Background(), guildID)
	require.NoError(t, err)
	return cfg.LastWeeklyKey
}

func TestTickFiresOncePerWeek(t *testing.T) {
	f := newFixture(t, "g1")
	ctx := context.Background()

	f.session(t, "g1", "100", trigger.Add(-3*time.Hour), trigger.Add(-time.Hour))
	f.messages(t, "g1", "200", 40, trigger.Add(-2*time.Hour))

	f.clock.Set(trigger.Add(time.Minute))
	assert.Equal(t, 1, f.scheduler.Tick(ctx))
	assert.Equal(t, "2026-03-06", f.lastKey(t, "g1"))
	assert.Equal(t, "100", f.publisher.winners["g1"])

	require.Len(t, f.publisher.reports["g1"], 1)
	r := f.publisher.reports["g1"][0]
	assert.Equal(t, "2026-03-06", r.WeekKey)
	require.Len(t, r.Rows, 2)
	assert.Equal(t, "100", r.Rows[0].UserID)
	assert.Equal(t, int64(22), r.Rows[0].Points)
	assert.Equal(t, "200", r.Rows[1].UserID)
	assert.Equal(t, int64(2), r.Rows[1].Points)

	f.clock.Set(trigger.Add(2 * time.Minute))
	assert.Equal(t, 0, f.scheduler.Tick(ctx))
	assert.Len(t, f.publisher.reports["g1"], 1)
	assert.Equal(t, results{weekly.ResultPublished}, *f.results)
}

func TestTickOutsideWindowDoesNothing(t *testing.T) {
	f := newFixture(t, "g1")
	ctx := context.Background()

	f.clock.Set(trigger.Add(-time.Minute))
	assert.Equal(t, 0, f.scheduler.Tick(ctx))
	f.clock.Set(trigger.Add(weekly.DefaultCatchUpWindow))
	assert.Equal(t, 0, f.scheduler.Tick(ctx))

	assert.Empty(t, f.publisher.reports)
	assert.Empty(t, f.lastKey(t, "g1"))
}

func TestFailedPublishRetriesWithinWindow(t *testing.T) {
	f := newFixture(t, "g1")
	ctx := context.Background()
	f.messages(t, "g1", "100", 20, trigger.Add(-time.Hour))

	f.publisher.publishErr = errors.New("missing access")
	f.clock.Set(trigger.Add(time.Minute))
	assert.Equal(t, 0, f.scheduler.Tick(ctx))
	assert.Empty(t, f.lastKey(t, "g1"))

	f.publisher.publishErr = nil
	f.clock.Set(trigger.Add(2 * time.Minute))
	assert.Equal(t, 1, f.scheduler.Tick(ctx))
	assert.Equal(t, "2026-03-06", f.lastKey(t, "g1"))
	assert.Len(t, f.publisher.reports["g1"], 1)
	assert.Equal(t, results{weekly.ResultFailed, weekly.ResultPublished}, *f.results)
}

func TestFailedRoleMoveSkipsReport(t *testing.T) {
	f := newFixture(t, "g1")
	ctx := context.Background()
	f.messages(t, "g1", "100", 20, trigger.Add(-time.Hour))

	f.publisher.assignErr = duty.ErrDenied
	f.clock.Set(trigger.Add(time.Minute))
	assert.Equal(t, 0, f.scheduler.Tick(ctx))
	assert.Empty(t, f.publisher.reports["g1"])
	assert.Empty(t, f.lastKey(t, "g1"))
}

func TestEmptyWeekPublishesWithoutWinner(t *testing.T) {
	f := newFixture(t, "g1")
	ctx := context.Background()

	f.clock.Set(trigger.Add(time.Minute))
	assert.Equal(t, 1, f.scheduler.Tick(ctx))
	require.Len(t, f.publisher.reports["g1"], 1)
	assert.True(t, f.publisher.reports["g1"][0].Empty())
	assert.Empty(t, f.publisher.winners)
	assert.Equal(t, "2026-03-06", f.lastKey(t, "g1"))
	assert.Equal(t, results{weekly.ResultEmpty}, *f.results)
}

func TestGuildsAreIsolated(t *testing.T) {
	f := newFixture(t, "g1", "g3")
	ctx := context.Background()
	require.NoError(t, f.repo.EnsureGuild(ctx, "g2"))

	f.messages(t, "g1", "100", 20, trigger.Add(-time.Hour))
	f.messages(t, "g3", "300", 20, trigger.Add(-time.Hour))

	f.clock.Set(trigger.Add(time.Minute))
	assert.Equal(t, 2, f.scheduler.Tick(ctx))

	assert.Equal(t, "2026-03-06", f.lastKey(t, "g1"))
	assert.Empty(t, f.lastKey(t, "g2"), "unconfigured guild is not marked done")
	assert.Equal(t, "2026-03-06", f.lastKey(t, "g3"))
	assert.Equal(t, "100", f.publisher.winners["g1"])
	assert.Equal(t, "300", f.publisher.winners["g3"])
}

func TestBuildUsesTrailingWeek(t *testing.T) {
	f := newFixture(t, "g1")
	ctx := context.Background()

	f.session(t, "g1", "old", trigger.Add(-9*24*time.Hour), trigger.Add(-8*24*time.Hour))
	f.messages(t, "g1", "old", 100, trigger.Add(-7*24*time.Hour-time.Hour))
	f.session(t, "g1", "new", trigger.Add(-2*time.Hour), trigger.Add(-time.Hour))

	r, err := f.scheduler.Build(ctx, "g1", trigger)
	require.NoError(t, err)
	require.Len(t, r.Rows, 1)
	assert.Equal(t, "new", r.Rows[0].UserID)
	assert.Equal(t, "2026-02-28", r.SinceDay)
}

func TestBuildLimitsTop(t *testing.T) {
	repo := dbtest.Repository(t)
	c := &clock{t: trigger}
	agg := activity.New(repo, nil)
	s := weekly.New(repo, duty.NewMachine(repo, c.Now), agg, newPublisher(), weekly.Options{
		Schedule: weekly.Schedule{Weekday: time.Friday, At: 20 * time.Hour, CatchUpWindow: time.Hour, TopN: 2},
		Now:      c.Now,
	})
	ctx := context.Background()
	for _, u := range []string{"1", "2", "3"} {
		require.NoError(t, agg.RecordMessage(ctx, "g1", u, trigger.Add(-time.Hour)))
	}

	r, err := s.Build(ctx, "g1", trigger)
	require.NoError(t, err)
	assert.Len(t, r.Rows, 3)
	require.Len(t, r.Top, 2)
	assert.Equal(t, "1", r.Top[0].UserID)
	assert.Equal(t, "2", r.Top[1].UserID)
}

func TestEmitNowDoesNotPersist(t *testing.T) {
	f := newFixture(t, "g1")
	ctx := context.Background()
	f.messages(t, "g1", "100", 20, trigger.Add(-time.Hour))

	f.clock.Set(trigger.Add(time.Hour))
	r, err := f.scheduler.EmitNow(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, r.Empty())
	assert.Len(t, f.publisher.reports["g1"], 1)
	assert.Empty(t, f.lastKey(t, "g1"))

	_, err = f.scheduler.EmitNow(ctx, "g2")
	var missing *duty.ConfigMissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "weekly_channel_id", missing.Field)
}
