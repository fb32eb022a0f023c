package discord

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

type voiceChange int

const (
	voiceNone voiceChange = iota
	voiceJoin
	voiceLeave
	voiceMove
)

// voiceTransition classifies a voice state change by the channel before
// and after. Mute and deafen updates keep the channel and are ignored.
func voiceTransition(before, after string) voiceChange {
	switch {
	case before == "" && after != "":
		return voiceJoin
	case before != "" && after == "":
		return voiceLeave
	case before != "" && after != "" && before != after:
		return voiceMove
	default:
		return voiceNone
	}
}

// messageCreate counts guild messages from humans
func (b *Bot) messageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.GuildID == "" || m.Author == nil || m.Author.Bot {
		return
	}

	at := m.Timestamp
	if at.IsZero() {
		at = b.now()
	}

	ctx, cancel := b.eventContext()
	defer cancel()
	if err := b.activity.RecordMessage(ctx, m.GuildID, m.Author.ID, at); err != nil {
		b.logger.Error("Error counting message",
			slog.String("guild", m.GuildID), slog.String("user", m.Author.ID), slog.String("error", err.Error()))
	}
}

// voiceStateUpdate handles voice state updates
func (b *Bot) voiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if vs.VoiceState == nil || vs.GuildID == "" {
		return
	}
	if vs.Member != nil && vs.Member.User != nil && vs.Member.User.Bot {
		return
	}

	before := ""
	if vs.BeforeUpdate != nil {
		before = vs.BeforeUpdate.ChannelID
	}
	guildID, userID := vs.GuildID, vs.UserID
	now := b.now()

	ctx, cancel := b.eventContext()
	defer cancel()

	log := b.logger.With(slog.String("guild", guildID), slog.String("user", userID))
	switch voiceTransition(before, vs.ChannelID) {
	case voiceJoin:
		if err := b.activity.VoiceJoin(ctx, guildID, userID, now); err != nil {
			log.Error("Error recording voice join", slog.String("error", err.Error()))
			return
		}
		log.Debug("Voice join", slog.String("channel", vs.ChannelID))
	case voiceLeave:
		dur, err := b.activity.VoiceLeave(ctx, guildID, userID, now)
		if err != nil {
			log.Error("Error recording voice leave", slog.String("error", err.Error()))
			return
		}
		log.Debug("Voice leave", slog.String("channel", before), slog.Duration("credited", dur))
	case voiceMove:
		dur, err := b.activity.VoiceMove(ctx, guildID, userID, now)
		if err != nil {
			log.Error("Error recording voice move", slog.String("error", err.Error()))
			return
		}
		log.Debug("Voice move", slog.String("from", before), slog.String("to", vs.ChannelID), slog.Duration("credited", dur))
	}
}
