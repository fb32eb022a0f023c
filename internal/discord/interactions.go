package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"staffduty/internal/duty"
	"staffduty/internal/models"
	"staffduty/pkg/utils"
)

// Component custom IDs. The panel button IDs are stable so panels posted
// before a restart keep working.
const (
	idSignIn          = "duty_in_btn"
	idSignOut         = "duty_out_btn"
	idEmergency       = "duty_emergency_btn"
	idRefresh         = "duty_refresh_btn"
	idShiftSelect     = "duty_shift"
	idEmergencyModal  = "duty_emergency_modal"
	idEmergencyReason = "reason"
)

const (
	outcomeOK       = "ok"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

// panelRef carries the panel message a follow-up component belongs to
type panelRef struct {
	prefix    string
	channelID string
	messageID string
}

func (r panelRef) String() string {
	return r.prefix + ":" + r.channelID + ":" + r.messageID
}

func parsePanelRef(customID string) (panelRef, bool) {
	parts := strings.Split(customID, ":")
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return panelRef{}, false
	}
	return panelRef{prefix: parts[0], channelID: parts[1], messageID: parts[2]}, true
}

func isAdmin(m *discordgo.Member) bool {
	return m != nil && m.Permissions&(discordgo.PermissionAdministrator|discordgo.PermissionManageGuild) != 0
}

func isStaff(m *discordgo.Member, cfg models.GuildConfig) bool {
	return hasRole(m, cfg.StaffRoleID)
}

func displayName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User == nil {
		return ""
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}

// userMessage turns a duty error into a short ephemeral reply
func userMessage(err error) string {
	var missing *duty.ConfigMissingError
	switch {
	case errors.As(err, &missing):
		switch missing.Field {
		case "weekly_channel_id", "staff_week_role_id":
			return "❌ The weekly report is not set up. Ask an admin to run /setup_weekly."
		default:
			return "❌ The duty panel is not set up. Ask an admin to run /setup_duty."
		}
	case errors.Is(err, duty.ErrAlreadyActive):
		return "You are already **on duty** ✅"
	case errors.Is(err, duty.ErrNotActive):
		return "You are not **on duty** 💤"
	case errors.Is(err, duty.ErrDenied):
		return "❌ I can't change roles. Move my role above the duty roles and grant Manage Roles."
	case errors.Is(err, duty.ErrInvalidShift):
		return "❌ Unknown shift."
	case errors.Is(err, duty.ErrMemberNotFound):
		return "❌ That member is no longer in the server."
	case errors.Is(err, models.ErrInvalidAutoOutHours):
		return "❌ " + models.ErrInvalidAutoOutHours.Error() + "."
	default:
		return "❌ Something went wrong, try again in a moment."
	}
}

func interactionUser(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// interactionCreate dispatches slash commands, panel components and modals
func (b *Bot) interactionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID == "" || i.Member == nil {
		b.reply(i, "Only available inside a server.")
		return
	}

	ctx, cancel := b.eventContext()
	defer cancel()

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(ctx, i)
	case discordgo.InteractionMessageComponent:
		b.handleComponent(ctx, i)
	case discordgo.InteractionModalSubmit:
		b.handleModal(ctx, i)
	}
}

func (b *Bot) handleComponent(ctx context.Context, i *discordgo.InteractionCreate) {
	data := i.MessageComponentData()
	switch {
	case data.CustomID == idSignIn:
		b.openShiftPicker(ctx, i)
	case data.CustomID == idSignOut:
		b.signOut(ctx, i)
	case data.CustomID == idEmergency:
		b.openEmergency(ctx, i)
	case data.CustomID == idRefresh:
		b.refresh(ctx, i)
	case strings.HasPrefix(data.CustomID, idShiftSelect+":"):
		b.signIn(ctx, i, data)
	}
}

func (b *Bot) handleModal(ctx context.Context, i *discordgo.InteractionCreate) {
	data := i.ModalSubmitData()
	if data.CustomID == idEmergencyModal {
		b.emergency(ctx, i, modalValue(data, idEmergencyReason))
	}
}

func modalValue(data discordgo.ModalSubmitInteractionData, customID string) string {
	for _, c := range data.Components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, inner := range row.Components {
			if input, ok := inner.(*discordgo.TextInput); ok && input.CustomID == customID {
				return strings.TrimSpace(input.Value)
			}
		}
	}
	return ""
}

// staffConfig loads the guild settings and checks the caller may use the
// duty buttons. It replies and returns false otherwise.
func (b *Bot) staffConfig(ctx context.Context, i *discordgo.InteractionCreate) (models.GuildConfig, bool) {
	cfg, err := b.repository.GuildConfig(ctx, i.GuildID)
	if err != nil {
		b.logger.Error("Failed to load guild settings", slog.String("guild", i.GuildID), slog.String("error", err.Error()))
		b.reply(i, userMessage(err))
		return cfg, false
	}
	if err := duty.RequireDutyRoles(cfg); err != nil {
		b.reply(i, userMessage(err))
		return cfg, false
	}
	if !isStaff(i.Member, cfg) {
		b.reply(i, "❌ The duty panel is for staff only.")
		return cfg, false
	}
	return cfg, true
}

func (b *Bot) openShiftPicker(ctx context.Context, i *discordgo.InteractionCreate) {
	cfg, ok := b.staffConfig(ctx, i)
	if !ok {
		return
	}
	if hasRole(i.Member, cfg.OnDutyRoleID) {
		b.reply(i, userMessage(duty.ErrAlreadyActive))
		return
	}
	panelID := ""
	if i.Message != nil {
		panelID = i.Message.ID
	}
	b.respond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    "Pick your shift:",
			Flags:      discordgo.MessageFlagsEphemeral,
			Components: shiftPicker(i.ChannelID, panelID),
		},
	})
}

func (b *Bot) signIn(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.MessageComponentInteractionData) {
	cfg, ok := b.staffConfig(ctx, i)
	if !ok {
		return
	}
	if len(data.Values) == 0 {
		return
	}
	shift := models.Shift(data.Values[0])
	userID := interactionUser(i)

	b.respond(i, &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate})

	entry, err := b.desk.SignIn(ctx, cfg, userID, shift)
	if err != nil {
		b.dutyFailed("sign_in", cfg.GuildID, userID, err)
		b.editReply(i, userMessage(err))
		return
	}
	b.observer.DutyEvent("sign_in", outcomeOK)
	b.editReply(i, fmt.Sprintf("✅ You are on duty: **%s** 🟢", entry.Shift))

	if ref, ok := parsePanelRef(data.CustomID); ok {
		b.refreshPanel(ctx, cfg, ref.channelID, ref.messageID, roleHint{userID: userID, holds: true})
	}
}

func (b *Bot) signOut(ctx context.Context, i *discordgo.InteractionCreate) {
	cfg, ok := b.staffConfig(ctx, i)
	if !ok {
		return
	}
	userID := interactionUser(i)

	if !hasRole(i.Member, cfg.OnDutyRoleID) {
		_, active, err := b.repository.GetActiveDuty(ctx, cfg.GuildID, userID)
		if err == nil && !active {
			b.observer.DutyEvent("sign_out", outcomeRejected)
			b.reply(i, userMessage(duty.ErrNotActive))
			return
		}
	}

	b.respond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})

	dur, err := b.desk.SignOut(ctx, cfg, userID)
	if err != nil {
		b.dutyFailed("sign_out", cfg.GuildID, userID, err)
		b.editReply(i, userMessage(err))
		return
	}
	b.observer.DutyEvent("sign_out", outcomeOK)
	b.editReply(i, fmt.Sprintf("🛑 Signed out. Time on duty: **%s**", utils.FormatSpan(dur)))

	if i.Message != nil {
		b.refreshPanel(ctx, cfg, i.ChannelID, i.Message.ID, roleHint{userID: userID, holds: false})
	}
}

func (b *Bot) dutyFailed(event, guildID, userID string, err error) {
	var missing *duty.ConfigMissingError
	switch {
	case errors.Is(err, duty.ErrAlreadyActive), errors.Is(err, duty.ErrInvalidShift), errors.As(err, &missing):
		b.observer.DutyEvent(event, outcomeRejected)
	default:
		b.observer.DutyEvent(event, outcomeError)
		b.logger.Warn("Duty change failed", slog.String("event", event),
			slog.String("guild", guildID), slog.String("user", userID), slog.String("error", err.Error()))
	}
}

func (b *Bot) openEmergency(ctx context.Context, i *discordgo.InteractionCreate) {
	cfg, err := b.repository.GuildConfig(ctx, i.GuildID)
	if err != nil {
		b.reply(i, userMessage(err))
		return
	}
	if !isAdmin(i.Member) && !isStaff(i.Member, cfg) {
		b.reply(i, "❌ Staff only.")
		return
	}
	b.respond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: emergencyModal(),
	})
}

// emergency pings the on-duty role in the alert channel, or in the
// channel of the panel when no alert channel is set.
func (b *Bot) emergency(ctx context.Context, i *discordgo.InteractionCreate, reason string) {
	cfg, err := b.repository.GuildConfig(ctx, i.GuildID)
	if err != nil {
		b.reply(i, userMessage(err))
		return
	}
	if !isAdmin(i.Member) && !isStaff(i.Member, cfg) {
		b.reply(i, "❌ Staff only.")
		return
	}
	if cfg.OnDutyRoleID == "" {
		b.reply(i, userMessage(&duty.ConfigMissingError{Field: "onduty_role_id"}))
		return
	}
	if reason == "" {
		b.reply(i, "❌ Please give a reason.")
		return
	}

	target := cfg.AlertChannelID
	if target == "" {
		target = i.ChannelID
	}
	userID := interactionUser(i)

	_, err = b.session.ChannelMessageSendComplex(target, &discordgo.MessageSend{
		Content:         utils.FormatRoleMention(cfg.OnDutyRoleID),
		Embeds:          []*discordgo.MessageEmbed{emergencyEmbed(reason, userID)},
		AllowedMentions: &discordgo.MessageAllowedMentions{Roles: []string{cfg.OnDutyRoleID}},
	}, discordgo.WithContext(ctx))
	if err != nil {
		b.logger.Error("Failed to send emergency call",
			slog.String("guild", cfg.GuildID), slog.String("channel", target), slog.String("error", err.Error()))
		b.reply(i, userMessage(classify(err)))
		return
	}

	b.logger.Info("Emergency call", slog.String("guild", cfg.GuildID), slog.String("user", userID))
	b.platform.Notify(ctx, cfg, fmt.Sprintf("🚨 **Emergency** by %s: %s", utils.FormatUserMention(userID), utils.TruncateString(reason, 120)))
	b.reply(i, "✅ Emergency call sent.")
}

func (b *Bot) refresh(ctx context.Context, i *discordgo.InteractionCreate) {
	cfg, err := b.repository.GuildConfig(ctx, i.GuildID)
	if err != nil {
		b.reply(i, userMessage(err))
		return
	}
	if !isAdmin(i.Member) && !isStaff(i.Member, cfg) {
		b.reply(i, "❌ Refreshing is for staff only.")
		return
	}
	embed, err := b.dashboard(ctx, cfg)
	if err != nil {
		b.logger.Error("Failed to build dashboard", slog.String("guild", cfg.GuildID), slog.String("error", err.Error()))
		b.reply(i, userMessage(err))
		return
	}
	b.respond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{embed},
			Components: panelComponents(),
		},
	})
}

// roleHint overrides the cached role state of one member, whose role was
// just changed and may not have reached the state cache yet.
type roleHint struct {
	userID string
	holds  bool
}

// dashboard lists the members on duty who still hold the on-duty role
func (b *Bot) dashboard(ctx context.Context, cfg models.GuildConfig, hints ...roleHint) (*discordgo.MessageEmbed, error) {
	byShift, err := b.desk.Machine().ListActive(ctx, cfg.GuildID)
	if err != nil {
		return nil, err
	}

	roster := make(map[models.Shift][]rosterEntry, len(byShift))
	for shift, entries := range byShift {
		for _, e := range entries {
			m, err := b.platform.member(ctx, cfg.GuildID, e.UserID)
			if err != nil || m.User == nil || m.User.Bot {
				continue
			}
			holds := hasRole(m, cfg.OnDutyRoleID)
			for _, h := range hints {
				if h.userID == e.UserID {
					holds = h.holds
				}
			}
			if !holds {
				continue
			}
			roster[shift] = append(roster[shift], rosterEntry{UserID: e.UserID, Name: displayName(m)})
		}
	}
	return dashboardEmbed(cfg, roster), nil
}

func (b *Bot) refreshPanel(ctx context.Context, cfg models.GuildConfig, channelID, messageID string, hints ...roleHint) {
	embed, err := b.dashboard(ctx, cfg, hints...)
	if err != nil {
		b.logger.Warn("Failed to build dashboard", slog.String("guild", cfg.GuildID), slog.String("error", err.Error()))
		return
	}
	if _, err := b.session.ChannelMessageEditEmbed(channelID, messageID, embed, discordgo.WithContext(ctx)); err != nil {
		b.logger.Warn("Failed to refresh duty panel",
			slog.String("guild", cfg.GuildID), slog.String("message", messageID), slog.String("error", err.Error()))
	}
}

func (b *Bot) respond(i *discordgo.InteractionCreate, resp *discordgo.InteractionResponse) {
	if err := b.session.InteractionRespond(i.Interaction, resp); err != nil {
		b.logger.Warn("Failed to respond to interaction", slog.String("guild", i.GuildID), slog.String("error", err.Error()))
	}
}

// reply sends an ephemeral message as the interaction response
func (b *Bot) reply(i *discordgo.InteractionCreate, content string) {
	b.respond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

// editReply replaces a deferred response and drops its components
func (b *Bot) editReply(i *discordgo.InteractionCreate, content string) {
	components := []discordgo.MessageComponent{}
	if _, err := b.session.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content:    &content,
		Components: &components,
	}); err != nil {
		b.logger.Warn("Failed to edit interaction response", slog.String("guild", i.GuildID), slog.String("error", err.Error()))
	}
}
