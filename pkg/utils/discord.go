package utils

import (
	"fmt"
	"strings"
)

// FormatUserMention formats a user ID as a Discord mention
func FormatUserMention(userID string) string {
	return fmt.Sprintf("<@%s>", userID)
}

// FormatRoleMention formats a role ID as a Discord mention
func FormatRoleMention(roleID string) string {
	return fmt.Sprintf("<@&%s>", roleID)
}

// FormatChannelMention formats a channel ID as a Discord channel mention
func FormatChannelMention(channelID string) string {
	return fmt.Sprintf("<#%s>", channelID)
}

// FormatTimestamp renders a unix timestamp as a Discord short time tag
func FormatTimestamp(unix int64) string {
	return fmt.Sprintf("<t:%d:t>", unix)
}

// FormatRank formats a leaderboard position, medals for the podium
func FormatRank(rank int) string {
	switch rank {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return fmt.Sprintf("**%d)**", rank)
	}
}

// TruncateString truncates a string to max length and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// CompareSnowflakes orders Discord IDs numerically without parsing them.
// Shorter IDs are smaller; equal lengths compare lexically.
func CompareSnowflakes(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
