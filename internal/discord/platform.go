package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"staffduty/internal/duty"
	"staffduty/internal/models"
	"staffduty/internal/weekly"
)

// memberPage is the largest page the members endpoint returns
const memberPage = 1000

// Platform performs role changes and posts on behalf of the duty, sweeper
// and weekly packages.
type Platform struct {
	session *discordgo.Session
	logger  *slog.Logger
}

// NewPlatform wraps a session
func NewPlatform(session *discordgo.Session, logger *slog.Logger) *Platform {
	if logger == nil {
		logger = slog.Default()
	}
	return &Platform{session: session, logger: logger}
}

// Grant adds roleID to the member
func (p *Platform) Grant(ctx context.Context, guildID, userID, roleID string) error {
	err := p.session.GuildMemberRoleAdd(guildID, userID, roleID,
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason("Duty IN"))
	return classify(err)
}

// Revoke removes roleID from the member
func (p *Platform) Revoke(ctx context.Context, guildID, userID, roleID string) error {
	err := p.session.GuildMemberRoleRemove(guildID, userID, roleID,
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason("Duty OUT"))
	return classify(err)
}

// Exists resolves the member from the state cache, then the API
func (p *Platform) Exists(ctx context.Context, guildID, userID string) (bool, error) {
	if _, err := p.session.State.Member(guildID, userID); err == nil {
		return true, nil
	}
	_, err := p.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	switch err := classify(err); {
	case err == nil:
		return true, nil
	case errors.Is(err, duty.ErrMemberNotFound):
		return false, nil
	default:
		return false, err
	}
}

// member returns the cached member or fetches it
func (p *Platform) member(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	if m, err := p.session.State.Member(guildID, userID); err == nil {
		return m, nil
	}
	m, err := p.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify(err)
	}
	return m, nil
}

// Notify posts an operational line to the guild log channel. Failures are
// logged and otherwise ignored.
func (p *Platform) Notify(ctx context.Context, cfg models.GuildConfig, text string) {
	if cfg.LogChannelID == "" {
		return
	}
	_, err := p.session.ChannelMessageSendComplex(cfg.LogChannelID, &discordgo.MessageSend{
		Content:         text,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}, discordgo.WithContext(ctx))
	if err != nil {
		p.logger.Warn("Failed to post log line",
			slog.String("guild", cfg.GuildID), slog.String("channel", cfg.LogChannelID), slog.String("error", err.Error()))
	}
}

// AssignWinner leaves the Staff of the Week role on the winner only. It is
// safe to repeat after a partial failure.
func (p *Platform) AssignWinner(ctx context.Context, cfg models.GuildConfig, winnerID string) error {
	holders, err := p.roleHolders(ctx, cfg.GuildID, cfg.StaffWeekRoleID)
	if err != nil {
		return err
	}

	hasWinner := false
	for _, id := range holders {
		if id == winnerID {
			hasWinner = true
			continue
		}
		err := p.session.GuildMemberRoleRemove(cfg.GuildID, id, cfg.StaffWeekRoleID,
			discordgo.WithContext(ctx), discordgo.WithAuditLogReason("Weekly winner updated"))
		if err := classify(err); err != nil && !errors.Is(err, duty.ErrMemberNotFound) {
			return fmt.Errorf("failed to remove staff of the week from %s: %w", id, err)
		}
	}
	if hasWinner {
		return nil
	}

	err = p.session.GuildMemberRoleAdd(cfg.GuildID, winnerID, cfg.StaffWeekRoleID,
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason("Staff of the Week"))
	if err := classify(err); err != nil {
		if errors.Is(err, duty.ErrMemberNotFound) {
			// the winner left; the report still names them
			p.logger.Warn("Staff of the Week left the guild", slog.String("guild", cfg.GuildID), slog.String("user", winnerID))
			return nil
		}
		return fmt.Errorf("failed to grant staff of the week: %w", err)
	}
	return nil
}

// PublishReport posts the weekly embed to the weekly channel
func (p *Platform) PublishReport(ctx context.Context, cfg models.GuildConfig, report weekly.Report) error {
	_, err := p.session.ChannelMessageSendComplex(cfg.WeeklyChannelID, &discordgo.MessageSend{
		Embeds:          []*discordgo.MessageEmbed{weeklyEmbed(report)},
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}, discordgo.WithContext(ctx))
	return classify(err)
}

// roleHolders pages through the guild members and returns those with roleID
func (p *Platform) roleHolders(ctx context.Context, guildID, roleID string) ([]string, error) {
	var holders []string
	after := ""
	for {
		page, err := p.session.GuildMembers(guildID, after, memberPage, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to list members: %w", classify(err))
		}
		for _, m := range page {
			if m.User == nil {
				continue
			}
			if hasRole(m, roleID) {
				holders = append(holders, m.User.ID)
			}
			after = m.User.ID
		}
		if len(page) < memberPage {
			return holders, nil
		}
	}
}

func hasRole(m *discordgo.Member, roleID string) bool {
	if m == nil || roleID == "" {
		return false
	}
	for _, r := range m.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

// classify maps REST failures onto the duty sentinels
func classify(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return err
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeUnknownRole:
			return err
		case discordgo.ErrCodeUnknownMember, discordgo.ErrCodeUnknownUser:
			return fmt.Errorf("%w: %s", duty.ErrMemberNotFound, restErr.Message.Message)
		case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess:
			return fmt.Errorf("%w: %s", duty.ErrDenied, restErr.Message.Message)
		}
	}
	if restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusForbidden:
			return fmt.Errorf("%w: %v", duty.ErrDenied, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", duty.ErrMemberNotFound, err)
		}
	}
	return err
}
