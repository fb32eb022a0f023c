package discord

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"

	"staffduty/internal/models"
	"staffduty/internal/scoring"
	"staffduty/internal/weekly"
	"staffduty/pkg/utils"
)

const (
	colorDashboard = 0x2b8a3e
	colorWeekly    = 0xf59f00
	colorAlert     = 0xe03131

	// rosterLimit caps the members listed per shift
	rosterLimit = 20
	// fieldLimit is Discord's embed field value cap
	fieldLimit = 1024
)

// rosterEntry is one on-duty member on the dashboard
type rosterEntry struct {
	UserID string
	Name   string
}

// rosterText lists members by display name, case-insensitively, with an
// overflow marker past rosterLimit.
func rosterText(entries []rosterEntry) string {
	if len(entries) == 0 {
		return "—"
	}
	sorted := append([]rosterEntry(nil), entries...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i].Name) < strings.ToLower(sorted[j].Name)
	})

	shown := sorted
	if len(shown) > rosterLimit {
		shown = shown[:rosterLimit]
	}
	lines := make([]string, 0, len(shown)+1)
	for _, e := range shown {
		lines = append(lines, "🟢 "+utils.FormatUserMention(e.UserID))
	}
	if extra := len(sorted) - len(shown); extra > 0 {
		lines = append(lines, fmt.Sprintf("… (+%d)", extra))
	}
	return strings.Join(lines, "\n")
}

func roleOrUnset(roleID string) string {
	if roleID == "" {
		return "not set"
	}
	return utils.FormatRoleMention(roleID)
}

// dashboardEmbed renders the duty panel for the members grouped by shift
func dashboardEmbed(cfg models.GuildConfig, byShift map[models.Shift][]rosterEntry) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{Name: "👤 Staff", Value: roleOrUnset(cfg.StaffRoleID), Inline: true},
		{Name: "⚡ On duty", Value: roleOrUnset(cfg.OnDutyRoleID), Inline: true},
		{Name: "🏆 Staff of the Week", Value: roleOrUnset(cfg.StaffWeekRoleID), Inline: true},
	}
	for _, s := range models.Shifts {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  "📌 On duty now: " + string(s),
			Value: rosterText(byShift[s]),
		})
	}
	return &discordgo.MessageEmbed{
		Title: "🛡️ Staff duty panel",
		Description: "✅ Sign in opens the shift picker (Support / Chat / Patrol)\n" +
			"🛑 Sign out removes the on-duty role\n" +
			"🚨 Emergency pings everyone on duty",
		Color:  colorDashboard,
		Fields: fields,
		Footer: &discordgo.MessageEmbedFooter{Text: "🔄 Refresh reloads the list"},
	}
}

// panelComponents are the persistent panel buttons
func panelComponents() []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "✅ Sign in", Style: discordgo.SuccessButton, CustomID: idSignIn},
			discordgo.Button{Label: "🛑 Sign out", Style: discordgo.DangerButton, CustomID: idSignOut},
			discordgo.Button{Label: "🚨 Emergency", Style: discordgo.PrimaryButton, CustomID: idEmergency},
			discordgo.Button{Label: "🔄 Refresh", Style: discordgo.SecondaryButton, CustomID: idRefresh},
		}},
	}
}

// shiftPicker is the ephemeral select shown after pressing Sign in. The
// panel message is encoded in the custom ID so it can be refreshed.
func shiftPicker(panelChannelID, panelMessageID string) []discordgo.MessageComponent {
	options := []discordgo.SelectMenuOption{
		{Label: string(models.ShiftSupport), Value: string(models.ShiftSupport), Description: "Tickets and support"},
		{Label: string(models.ShiftChat), Value: string(models.ShiftChat), Description: "Chat moderation"},
		{Label: string(models.ShiftPatrol), Value: string(models.ShiftPatrol), Description: "General patrol"},
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				CustomID:    panelRef{prefix: idShiftSelect, channelID: panelChannelID, messageID: panelMessageID}.String(),
				Placeholder: "Pick your shift…",
				Options:     options,
			},
		}},
	}
}

// emergencyModal asks for the reason of an emergency call
func emergencyModal() *discordgo.InteractionResponseData {
	return &discordgo.InteractionResponseData{
		CustomID: idEmergencyModal,
		Title:    "🚨 Emergency call",
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.TextInput{
					CustomID:    idEmergencyReason,
					Label:       "Reason",
					Style:       discordgo.TextInputShort,
					Placeholder: "What happened?",
					Required:    true,
					MaxLength:   200,
				},
			}},
		},
	}
}

func emergencyEmbed(reason, senderID string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🚨 Staff emergency call",
		Description: fmt.Sprintf("**Reason:** %s\n**From:** %s", reason, utils.FormatUserMention(senderID)),
		Color:       colorAlert,
	}
}

// leaderboardLine renders one weekly row
func leaderboardLine(rank int, r scoring.Row) string {
	return fmt.Sprintf("%s %s **%d pts** | ⏱️ %s | 🧾 %d | 💬 %d | 🔊 %s | 🎧 %d",
		utils.FormatRank(rank), utils.FormatUserMention(r.UserID), r.Points,
		utils.FormatDuration(r.DutySeconds), r.Sessions, r.Messages,
		utils.FormatDuration(r.VoiceSeconds), r.VoiceJoins)
}

// weeklyEmbed renders the standings; an empty report says so
func weeklyEmbed(report weekly.Report) *discordgo.MessageEmbed {
	footer := &discordgo.MessageEmbedFooter{Text: "Week of " + report.WeekKey}
	if report.Empty() {
		return &discordgo.MessageEmbed{
			Title:       "📊 Weekly staff report",
			Description: "No activity recorded this week.",
			Color:       colorWeekly,
			Footer:      footer,
		}
	}

	var lines []string
	size := 0
	for i, r := range report.Top {
		line := leaderboardLine(i+1, r)
		if size+len(line)+1 > fieldLimit {
			break
		}
		size += len(line) + 1
		lines = append(lines, line)
	}

	winner, _ := report.Winner()
	return &discordgo.MessageEmbed{
		Title:       "📊 Weekly staff report",
		Description: "Last 7 days: duty time, messages, voice time, voice joins and sessions.",
		Color:       colorWeekly,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "🏁 Standings", Value: strings.Join(lines, "\n")},
			{Name: "🏆 Staff of the Week", Value: fmt.Sprintf("%s with **%d pts**", utils.FormatUserMention(winner.UserID), winner.Points)},
		},
		Footer: footer,
	}
}
