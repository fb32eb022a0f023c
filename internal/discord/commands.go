package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"staffduty/internal/duty"
	"staffduty/internal/models"
	"staffduty/pkg/utils"
)

var (
	adminPermission int64 = discordgo.PermissionAdministrator
	minAutoOut            = float64(models.MinAutoOutHours)
	textChannels          = []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews}
)

// commands are the slash commands registered at ready
func commands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:                     "setup_duty",
			Description:              "Set the staff and on-duty roles and the log channel (Admin)",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionRole, Name: "staff_role", Description: "Role allowed to go on duty", Required: true},
				{Type: discordgo.ApplicationCommandOptionRole, Name: "onduty_role", Description: "Role held while on duty", Required: true},
				{Type: discordgo.ApplicationCommandOptionChannel, Name: "log_channel", Description: "Channel for duty log lines", ChannelTypes: textChannels},
			},
		},
		{
			Name:                     "setup_weekly",
			Description:              "Set the weekly report channel and the Staff of the Week role (Admin)",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionChannel, Name: "weekly_channel", Description: "Channel for the weekly report", Required: true, ChannelTypes: textChannels},
				{Type: discordgo.ApplicationCommandOptionRole, Name: "staff_week_role", Description: "Staff of the Week role", Required: true},
			},
		},
		{
			Name:                     "set_alert_channel",
			Description:              "Set the emergency alert channel (Admin)",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionChannel, Name: "channel", Description: "Channel for emergency calls", Required: true, ChannelTypes: textChannels},
			},
		},
		{
			Name:                     "set_auto_out",
			Description:              "Set the auto clock-out threshold in hours (Admin)",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "hours",
					Description: "Hours on duty before an automatic sign-out",
					Required:    true,
					MinValue:    &minAutoOut,
					MaxValue:    models.MaxAutoOutHours,
				},
			},
		},
		{
			Name:                     "post_duty_panel",
			Description:              "Post the staff duty panel (Admin)",
			DefaultMemberPermissions: &adminPermission,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionChannel, Name: "channel", Description: "Channel for the panel", Required: true, ChannelTypes: textChannels},
			},
		},
		{
			Name:        "weekly_now",
			Description: "Send the weekly report now (Owner only)",
		},
	}
}

// commandOptions indexes the options of a slash command by name
func commandOptions(data discordgo.ApplicationCommandInteractionData) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	opts := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(data.Options))
	for _, o := range data.Options {
		opts[o.Name] = o
	}
	return opts
}

// optionID returns the snowflake of a role or channel option
func optionID(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	o, ok := opts[name]
	if !ok {
		return ""
	}
	id, _ := o.Value.(string)
	return id
}

func (b *Bot) handleCommand(ctx context.Context, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	if data.Name == "weekly_now" {
		b.weeklyNow(ctx, i)
		return
	}
	if !isAdmin(i.Member) {
		b.reply(i, "❌ Admins only.")
		return
	}

	opts := commandOptions(data)
	guildID := i.GuildID

	var (
		msg string
		err error
	)
	switch data.Name {
	case "setup_duty":
		err = b.repository.SetDutyRoles(ctx, guildID, optionID(opts, "staff_role"), optionID(opts, "onduty_role"), optionID(opts, "log_channel"))
		msg = "✅ Duty roles saved. Use /post_duty_panel to post the panel."
	case "setup_weekly":
		err = b.repository.SetWeekly(ctx, guildID, optionID(opts, "weekly_channel"), optionID(opts, "staff_week_role"))
		schedule := b.weekly.Schedule()
		msg = fmt.Sprintf("✅ Weekly report saved.\n📅 Posted every **%s at %s** (UTC+3).",
			schedule.Weekday, clockLabel(schedule.At))
	case "set_alert_channel":
		channelID := optionID(opts, "channel")
		err = b.repository.SetAlertChannel(ctx, guildID, channelID)
		msg = "✅ Emergency channel set to " + utils.FormatChannelMention(channelID)
	case "set_auto_out":
		var hours int64
		if o, ok := opts["hours"]; ok {
			hours = o.IntValue()
		}
		err = b.repository.SetAutoOutHours(ctx, guildID, int(hours))
		msg = fmt.Sprintf("✅ Auto clock-out set to **%d** hours.", hours)
	case "post_duty_panel":
		msg, err = b.postPanel(ctx, guildID, optionID(opts, "channel"))
	default:
		return
	}

	if err != nil {
		if !errors.Is(err, models.ErrInvalidAutoOutHours) && !isConfigMissing(err) {
			b.logger.Error("Command failed", slog.String("command", data.Name), slog.String("guild", guildID), slog.String("error", err.Error()))
		}
		b.reply(i, userMessage(err))
		return
	}
	b.logger.Info("Settings updated", slog.String("command", data.Name), slog.String("guild", guildID), slog.String("user", interactionUser(i)))
	b.reply(i, msg)
}

func isConfigMissing(err error) bool {
	var missing *duty.ConfigMissingError
	return errors.As(err, &missing)
}

func clockLabel(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute))
}

func (b *Bot) postPanel(ctx context.Context, guildID, channelID string) (string, error) {
	cfg, err := b.repository.GuildConfig(ctx, guildID)
	if err != nil {
		return "", err
	}
	if err := duty.RequireDutyRoles(cfg); err != nil {
		return "", err
	}
	embed, err := b.dashboard(ctx, cfg)
	if err != nil {
		return "", err
	}
	_, err = b.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds:          []*discordgo.MessageEmbed{embed},
		Components:      panelComponents(),
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify(err)
	}
	return "✅ Duty panel posted in " + utils.FormatChannelMention(channelID), nil
}

// weeklyNow emits the standings on demand for the guild owner. The week is
// not recorded as done, so the scheduled report still goes out.
func (b *Bot) weeklyNow(ctx context.Context, i *discordgo.InteractionCreate) {
	owner, err := b.guildOwner(ctx, i.GuildID)
	if err != nil {
		b.logger.Error("Failed to resolve guild owner", slog.String("guild", i.GuildID), slog.String("error", err.Error()))
		b.reply(i, userMessage(err))
		return
	}
	if interactionUser(i) != owner {
		b.reply(i, "❌ This command is for the server owner only.")
		return
	}

	b.respond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})

	report, err := b.weekly.EmitNow(ctx, i.GuildID)
	if err != nil {
		if !isConfigMissing(err) {
			b.logger.Error("Manual weekly report failed", slog.String("guild", i.GuildID), slog.String("error", err.Error()))
		}
		b.editReply(i, userMessage(err))
		return
	}
	b.logger.Info("Manual weekly report sent", slog.String("guild", i.GuildID), slog.Int("members", len(report.Rows)))
	b.editReply(i, "✅ Weekly report sent.")
}

func (b *Bot) guildOwner(ctx context.Context, guildID string) (string, error) {
	if g, err := b.session.State.Guild(guildID); err == nil && g.OwnerID != "" {
		return g.OwnerID, nil
	}
	g, err := b.session.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return g.OwnerID, nil
}
