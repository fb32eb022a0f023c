// Package activity accumulates message and voice activity into daily
// buckets on the fixed report clock.
package activity

import (
	"context"
	"time"

	"staffduty/internal/models"
	"staffduty/pkg/utils"
)

// Store is the persistence the aggregator needs
type Store interface {
	IncrementMessages(ctx context.Context, guildID, userID, dayKey string) error
	MessageTotalsSince(ctx context.Context, guildID, sinceDay string) (map[string]int64, error)
	UpsertVoiceJoin(ctx context.Context, guildID, userID string, at time.Time) error
	CloseVoice(ctx context.Context, guildID, userID string, at time.Time, dayKey string, rejoin bool) (time.Duration, bool, error)
	VoiceTotalsSince(ctx context.Context, guildID, sinceDay string) (map[string]models.VoiceTotal, error)
}

// Recorder receives accepted activity for metrics
type Recorder interface {
	MessageRecorded()
	VoiceCredited(d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) MessageRecorded()            {}
func (nopRecorder) VoiceCredited(time.Duration) {}

// Aggregator records activity signals
type Aggregator struct {
	store    Store
	recorder Recorder
}

// New creates an aggregator. recorder may be nil.
func New(store Store, recorder Recorder) *Aggregator {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Aggregator{store: store, recorder: recorder}
}

// RecordMessage counts one message in the day bucket of at
func (a *Aggregator) RecordMessage(ctx context.Context, guildID, userID string, at time.Time) error {
	if err := a.store.IncrementMessages(ctx, guildID, userID, utils.DayKey(at)); err != nil {
		return err
	}
	a.recorder.MessageRecorded()
	return nil
}

// VoiceJoin opens a voice interval at at
func (a *Aggregator) VoiceJoin(ctx context.Context, guildID, userID string, at time.Time) error {
	return a.store.UpsertVoiceJoin(ctx, guildID, userID, at)
}

// VoiceLeave closes the open interval and credits its full length to the
// day of at, even when it started the previous day. Without an open
// interval it returns zero and changes nothing.
func (a *Aggregator) VoiceLeave(ctx context.Context, guildID, userID string, at time.Time) (time.Duration, error) {
	dur, found, err := a.store.CloseVoice(ctx, guildID, userID, at, utils.DayKey(at), false)
	if err != nil {
		return 0, err
	}
	if found {
		a.recorder.VoiceCredited(dur)
	}
	return dur, nil
}

// VoiceMove closes the current interval and opens a new one at the same
// instant, so a channel move counts as another join.
func (a *Aggregator) VoiceMove(ctx context.Context, guildID, userID string, at time.Time) (time.Duration, error) {
	dur, found, err := a.store.CloseVoice(ctx, guildID, userID, at, utils.DayKey(at), true)
	if err != nil {
		return 0, err
	}
	if found {
		a.recorder.VoiceCredited(dur)
	}
	return dur, nil
}

// WeeklyMessages sums message counts from sinceDay inclusive
func (a *Aggregator) WeeklyMessages(ctx context.Context, guildID, sinceDay string) (map[string]int64, error) {
	return a.store.MessageTotalsSince(ctx, guildID, sinceDay)
}

// WeeklyVoice sums voice stats from sinceDay inclusive
func (a *Aggregator) WeeklyVoice(ctx context.Context, guildID, sinceDay string) (map[string]models.VoiceTotal, error) {
	return a.store.VoiceTotalsSince(ctx, guildID, sinceDay)
}
