package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"staffduty/internal/models"
	"staffduty/pkg/utils"
)

// Repository handles database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Ping checks the underlying connection
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *Repository) exec(ctx context.Context, q queryer, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, r.db.rebind(query), args...)
}

func (r *Repository) query(ctx context.Context, q queryer, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, r.db.rebind(query), args...)
}

func (r *Repository) queryRow(ctx context.Context, q queryer, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, r.db.rebind(query), args...)
}

// withTx runs fn inside a transaction, rolling back on error
func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Guild settings

const guildColumns = `guild_id, staff_role_id, onduty_role_id, log_channel_id, weekly_channel_id,
	staff_week_role_id, alert_channel_id, auto_out_hours, last_weekly_key`

func scanGuild(row interface{ Scan(...any) error }) (models.GuildConfig, error) {
	var c models.GuildConfig
	err := row.Scan(&c.GuildID, &c.StaffRoleID, &c.OnDutyRoleID, &c.LogChannelID, &c.WeeklyChannelID,
		&c.StaffWeekRoleID, &c.AlertChannelID, &c.AutoOutHours, &c.LastWeeklyKey)
	return c, err
}

// EnsureGuild creates the settings row for a guild if it is missing
func (r *Repository) EnsureGuild(ctx context.Context, guildID string) error {
	_, err := r.exec(ctx, r.db.conn,
		`INSERT INTO guild_settings (guild_id) VALUES ($1) ON CONFLICT (guild_id) DO NOTHING`, guildID)
	if err != nil {
		return fmt.Errorf("failed to ensure guild settings: %w", err)
	}
	return nil
}

// GuildConfig returns the settings of a guild, creating the row lazily
func (r *Repository) GuildConfig(ctx context.Context, guildID string) (models.GuildConfig, error) {
	if err := r.EnsureGuild(ctx, guildID); err != nil {
		return models.GuildConfig{}, err
	}
	c, err := scanGuild(r.queryRow(ctx, r.db.conn,
		`SELECT `+guildColumns+` FROM guild_settings WHERE guild_id = $1`, guildID))
	if err != nil {
		return models.GuildConfig{}, fmt.Errorf("failed to get guild settings: %w", err)
	}
	return c, nil
}

// ListGuildConfigs returns every stored guild settings row
func (r *Repository) ListGuildConfigs(ctx context.Context) ([]models.GuildConfig, error) {
	rows, err := r.query(ctx, r.db.conn, `SELECT `+guildColumns+` FROM guild_settings ORDER BY guild_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list guild settings: %w", err)
	}
	defer rows.Close()

	var configs []models.GuildConfig
	for rows.Next() {
		c, err := scanGuild(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan guild settings: %w", err)
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

func (r *Repository) updateGuild(ctx context.Context, guildID, set string, args ...any) error {
	if err := r.EnsureGuild(ctx, guildID); err != nil {
		return err
	}
	args = append([]any{guildID}, args...)
	if _, err := r.exec(ctx, r.db.conn, `UPDATE guild_settings SET `+set+` WHERE guild_id = $1`, args...); err != nil {
		return fmt.Errorf("failed to update guild settings: %w", err)
	}
	return nil
}

// SetDutyRoles stores the staff and on-duty roles. An empty log channel
// keeps the current one.
func (r *Repository) SetDutyRoles(ctx context.Context, guildID, staffRoleID, onDutyRoleID, logChannelID string) error {
	if logChannelID == "" {
		return r.updateGuild(ctx, guildID, `staff_role_id = $2, onduty_role_id = $3`, staffRoleID, onDutyRoleID)
	}
	return r.updateGuild(ctx, guildID, `staff_role_id = $2, onduty_role_id = $3, log_channel_id = $4`,
		staffRoleID, onDutyRoleID, logChannelID)
}

// SetWeekly stores the weekly report channel and Staff of the Week role
func (r *Repository) SetWeekly(ctx context.Context, guildID, channelID, roleID string) error {
	return r.updateGuild(ctx, guildID, `weekly_channel_id = $2, staff_week_role_id = $3`, channelID, roleID)
}

// SetAlertChannel stores the emergency alert channel
func (r *Repository) SetAlertChannel(ctx context.Context, guildID, channelID string) error {
	return r.updateGuild(ctx, guildID, `alert_channel_id = $2`, channelID)
}

// SetAutoOutHours stores the auto clock-out threshold
func (r *Repository) SetAutoOutHours(ctx context.Context, guildID string, hours int) error {
	if hours < models.MinAutoOutHours || hours > models.MaxAutoOutHours {
		return models.ErrInvalidAutoOutHours
	}
	return r.updateGuild(ctx, guildID, `auto_out_hours = $2`, hours)
}

// SetLastWeeklyKey records the week whose report completed
func (r *Repository) SetLastWeeklyKey(ctx context.Context, guildID, key string) error {
	return r.updateGuild(ctx, guildID, `last_weekly_key = $2`, key)
}

// Active duty

// InsertActiveDuty adds the entry unless one exists. It reports whether
// the row was inserted.
func (r *Repository) InsertActiveDuty(ctx context.Context, entry models.ActiveDuty) (bool, error) {
	res, err := r.exec(ctx, r.db.conn, `
		INSERT INTO active_duty (guild_id, user_id, start_ts, shift)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (guild_id, user_id) DO NOTHING`,
		entry.GuildID, entry.UserID, utils.Unix(entry.Start), string(entry.Shift))
	if err != nil {
		return false, fmt.Errorf("failed to insert active duty: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to insert active duty: %w", err)
	}
	return n == 1, nil
}

// GetActiveDuty returns the active entry of a member, if any
func (r *Repository) GetActiveDuty(ctx context.Context, guildID, userID string) (models.ActiveDuty, bool, error) {
	var startTS int64
	var shift string
	err := r.queryRow(ctx, r.db.conn,
		`SELECT start_ts, shift FROM active_duty WHERE guild_id = $1 AND user_id = $2`,
		guildID, userID).Scan(&startTS, &shift)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ActiveDuty{}, false, nil
	}
	if err != nil {
		return models.ActiveDuty{}, false, fmt.Errorf("failed to get active duty: %w", err)
	}
	return models.ActiveDuty{
		GuildID: guildID,
		UserID:  userID,
		Start:   utils.FromUnix(startTS),
		Shift:   models.Shift(shift),
	}, true, nil
}

// ListActiveDuty returns all active entries of a guild, oldest first
func (r *Repository) ListActiveDuty(ctx context.Context, guildID string) ([]models.ActiveDuty, error) {
	rows, err := r.query(ctx, r.db.conn,
		`SELECT user_id, start_ts, shift FROM active_duty WHERE guild_id = $1 ORDER BY start_ts, user_id`, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active duty: %w", err)
	}
	defer rows.Close()

	var entries []models.ActiveDuty
	for rows.Next() {
		var e models.ActiveDuty
		var startTS int64
		var shift string
		if err := rows.Scan(&e.UserID, &startTS, &shift); err != nil {
			return nil, fmt.Errorf("failed to scan active duty: %w", err)
		}
		e.GuildID = guildID
		e.Start = utils.FromUnix(startTS)
		e.Shift = models.Shift(shift)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteActiveDuty removes an entry without recording a session
func (r *Repository) DeleteActiveDuty(ctx context.Context, guildID, userID string) (bool, error) {
	res, err := r.exec(ctx, r.db.conn,
		`DELETE FROM active_duty WHERE guild_id = $1 AND user_id = $2`, guildID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete active duty: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete active duty: %w", err)
	}
	return n > 0, nil
}

// CloseDuty deletes the active entry and appends the session in one
// transaction. When no entry exists and allowMissing is set, a zero-length
// session starting at end with the default shift is written instead;
// otherwise nothing is written and found is false.
func (r *Repository) CloseDuty(ctx context.Context, guildID, userID string, end time.Time, allowMissing bool) (session models.DutySession, found bool, err error) {
	endTS := utils.Unix(end)
	err = r.withTx(ctx, func(tx *sql.Tx) error {
		var startTS int64
		var shift string
		scanErr := r.queryRow(ctx, tx,
			`DELETE FROM active_duty WHERE guild_id = $1 AND user_id = $2 RETURNING start_ts, shift`,
			guildID, userID).Scan(&startTS, &shift)
		switch {
		case scanErr == nil:
			found = true
		case errors.Is(scanErr, sql.ErrNoRows):
			if !allowMissing {
				return nil
			}
			startTS, shift = endTS, string(models.DefaultShift)
		default:
			return fmt.Errorf("failed to delete active duty: %w", scanErr)
		}

		dur := endTS - startTS
		if dur < 0 {
			dur = 0
		}
		var id int64
		if err := r.queryRow(ctx, tx, `
			INSERT INTO duty_sessions (guild_id, user_id, start_ts, end_ts, duration_sec, shift)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			guildID, userID, startTS, endTS, dur, shift).Scan(&id); err != nil {
			return fmt.Errorf("failed to add duty session: %w", err)
		}
		session = models.DutySession{
			ID:       id,
			GuildID:  guildID,
			UserID:   userID,
			Start:    utils.FromUnix(startTS),
			End:      utils.FromUnix(endTS),
			Duration: time.Duration(dur) * time.Second,
			Shift:    models.Shift(shift),
		}
		return nil
	})
	if err != nil {
		return models.DutySession{}, false, err
	}
	return session, found, nil
}

// ListDutySessions returns the closed sessions of a guild in insertion order
func (r *Repository) ListDutySessions(ctx context.Context, guildID string) ([]models.DutySession, error) {
	rows, err := r.query(ctx, r.db.conn, `
		SELECT id, user_id, start_ts, end_ts, duration_sec, shift
		FROM duty_sessions WHERE guild_id = $1 ORDER BY id`, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list duty sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.DutySession
	for rows.Next() {
		var s models.DutySession
		var startTS, endTS, dur int64
		var shift string
		if err := rows.Scan(&s.ID, &s.UserID, &startTS, &endTS, &dur, &shift); err != nil {
			return nil, fmt.Errorf("failed to scan duty session: %w", err)
		}
		s.GuildID = guildID
		s.Start = utils.FromUnix(startTS)
		s.End = utils.FromUnix(endTS)
		s.Duration = time.Duration(dur) * time.Second
		s.Shift = models.Shift(shift)
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// DutyTotalsSince sums sessions that ended at or after since, per member
func (r *Repository) DutyTotalsSince(ctx context.Context, guildID string, since time.Time) (map[string]models.DutyTotal, error) {
	rows, err := r.query(ctx, r.db.conn, `
		SELECT user_id, COALESCE(SUM(duration_sec), 0), COUNT(*)
		FROM duty_sessions
		WHERE guild_id = $1 AND end_ts >= $2
		GROUP BY user_id`, guildID, utils.Unix(since))
	if err != nil {
		return nil, fmt.Errorf("failed to get duty totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]models.DutyTotal)
	for rows.Next() {
		var userID string
		var t models.DutyTotal
		if err := rows.Scan(&userID, &t.Seconds, &t.Sessions); err != nil {
			return nil, fmt.Errorf("failed to scan duty totals: %w", err)
		}
		totals[userID] = t
	}
	return totals, rows.Err()
}

// Messages

// IncrementMessages adds one message to the daily counter
func (r *Repository) IncrementMessages(ctx context.Context, guildID, userID, dayKey string) error {
	_, err := r.exec(ctx, r.db.conn, `
		INSERT INTO msg_daily (guild_id, user_id, day_key, msg_count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (guild_id, user_id, day_key) DO UPDATE SET msg_count = msg_daily.msg_count + 1`,
		guildID, userID, dayKey)
	if err != nil {
		return fmt.Errorf("failed to increment messages: %w", err)
	}
	return nil
}

// MessageCount returns the counter of one day
func (r *Repository) MessageCount(ctx context.Context, guildID, userID, dayKey string) (int64, error) {
	var count int64
	err := r.queryRow(ctx, r.db.conn,
		`SELECT msg_count FROM msg_daily WHERE guild_id = $1 AND user_id = $2 AND day_key = $3`,
		guildID, userID, dayKey).Scan(&count)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to get message count: %w", err)
	}
	return count, nil
}

// MessageTotalsSince sums daily counters from sinceDay inclusive, per member
func (r *Repository) MessageTotalsSince(ctx context.Context, guildID, sinceDay string) (map[string]int64, error) {
	rows, err := r.query(ctx, r.db.conn, `
		SELECT user_id, COALESCE(SUM(msg_count), 0)
		FROM msg_daily
		WHERE guild_id = $1 AND day_key >= $2
		GROUP BY user_id`, guildID, sinceDay)
	if err != nil {
		return nil, fmt.Errorf("failed to get message totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int64)
	for rows.Next() {
		var userID string
		var total int64
		if err := rows.Scan(&userID, &total); err != nil {
			return nil, fmt.Errorf("failed to scan message totals: %w", err)
		}
		totals[userID] = total
	}
	return totals, rows.Err()
}

// Voice

// UpsertVoiceJoin marks a member as in voice since at, replacing a stale
// join time.
func (r *Repository) UpsertVoiceJoin(ctx context.Context, guildID, userID string, at time.Time) error {
	return r.upsertVoiceJoin(ctx, r.db.conn, guildID, userID, at)
}

func (r *Repository) upsertVoiceJoin(ctx context.Context, q queryer, guildID, userID string, at time.Time) error {
	_, err := r.exec(ctx, q, `
		INSERT INTO voice_active (guild_id, user_id, join_ts)
		VALUES ($1, $2, $3)
		ON CONFLICT (guild_id, user_id) DO UPDATE SET join_ts = EXCLUDED.join_ts`,
		guildID, userID, utils.Unix(at))
	if err != nil {
		return fmt.Errorf("failed to record voice join: %w", err)
	}
	return nil
}

// CloseVoice ends the active voice interval at `at` and credits it to
// dayKey. With rejoin set, a new interval is opened at `at` in the same
// transaction. found is false when no interval was open.
func (r *Repository) CloseVoice(ctx context.Context, guildID, userID string, at time.Time, dayKey string, rejoin bool) (dur time.Duration, found bool, err error) {
	leaveTS := utils.Unix(at)
	err = r.withTx(ctx, func(tx *sql.Tx) error {
		var joinTS int64
		scanErr := r.queryRow(ctx, tx,
			`DELETE FROM voice_active WHERE guild_id = $1 AND user_id = $2 RETURNING join_ts`,
			guildID, userID).Scan(&joinTS)
		switch {
		case scanErr == nil:
			found = true
		case errors.Is(scanErr, sql.ErrNoRows):
		default:
			return fmt.Errorf("failed to delete voice session: %w", scanErr)
		}

		if found {
			sec := leaveTS - joinTS
			if sec < 0 {
				sec = 0
			}
			if _, err := r.exec(ctx, tx, `
				INSERT INTO voice_daily (guild_id, user_id, day_key, voice_sec, joins)
				VALUES ($1, $2, $3, $4, 1)
				ON CONFLICT (guild_id, user_id, day_key)
				DO UPDATE SET voice_sec = voice_daily.voice_sec + EXCLUDED.voice_sec, joins = voice_daily.joins + 1`,
				guildID, userID, dayKey, sec); err != nil {
				return fmt.Errorf("failed to add voice seconds: %w", err)
			}
			dur = time.Duration(sec) * time.Second
		}

		if rejoin {
			return r.upsertVoiceJoin(ctx, tx, guildID, userID, at)
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return dur, found, nil
}

// VoiceActive reports whether a member has an open voice interval
func (r *Repository) VoiceActive(ctx context.Context, guildID, userID string) (time.Time, bool, error) {
	var joinTS int64
	err := r.queryRow(ctx, r.db.conn,
		`SELECT join_ts FROM voice_active WHERE guild_id = $1 AND user_id = $2`,
		guildID, userID).Scan(&joinTS)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get voice session: %w", err)
	}
	return utils.FromUnix(joinTS), true, nil
}

// VoiceStat returns the daily voice row of one member
func (r *Repository) VoiceStat(ctx context.Context, guildID, userID, dayKey string) (models.VoiceTotal, bool, error) {
	var t models.VoiceTotal
	err := r.queryRow(ctx, r.db.conn,
		`SELECT voice_sec, joins FROM voice_daily WHERE guild_id = $1 AND user_id = $2 AND day_key = $3`,
		guildID, userID, dayKey).Scan(&t.Seconds, &t.Joins)
	if errors.Is(err, sql.ErrNoRows) {
		return models.VoiceTotal{}, false, nil
	}
	if err != nil {
		return models.VoiceTotal{}, false, fmt.Errorf("failed to get voice stat: %w", err)
	}
	return t, true, nil
}

// VoiceTotalsSince sums daily voice rows from sinceDay inclusive, per member
func (r *Repository) VoiceTotalsSince(ctx context.Context, guildID, sinceDay string) (map[string]models.VoiceTotal, error) {
	rows, err := r.query(ctx, r.db.conn, `
		SELECT user_id, COALESCE(SUM(voice_sec), 0), COALESCE(SUM(joins), 0)
		FROM voice_daily
		WHERE guild_id = $1 AND day_key >= $2
		GROUP BY user_id`, guildID, sinceDay)
	if err != nil {
		return nil, fmt.Errorf("failed to get voice totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]models.VoiceTotal)
	for rows.Next() {
		var userID string
		var t models.VoiceTotal
		if err := rows.Scan(&userID, &t.Seconds, &t.Joins); err != nil {
			return nil, fmt.Errorf("failed to scan voice totals: %w", err)
		}
		totals[userID] = t
	}
	return totals, rows.Err()
}
