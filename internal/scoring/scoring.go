// Package scoring turns weekly activity into points and a ranking.
// Everything here is pure: no store, no clock.
package scoring

import (
	"sort"

	"staffduty/internal/models"
	"staffduty/pkg/utils"
)

// Points weighs a week of activity:
//
//	10 per full hour on duty
//	 1 per 20 messages
//	 2 per full 30 minutes in voice
//	 1 per voice join
//	 2 per duty session
func Points(dutySeconds, messageCount, voiceSeconds, voiceJoins, sessionCount int64) int64 {
	return 10*(nonNeg(dutySeconds)/3600) +
		nonNeg(messageCount)/20 +
		2*(nonNeg(voiceSeconds)/1800) +
		nonNeg(voiceJoins) +
		2*nonNeg(sessionCount)
}

func nonNeg(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

// Row is one member's weekly line
type Row struct {
	UserID       string `json:"userId"`
	Points       int64  `json:"points"`
	DutySeconds  int64  `json:"dutySeconds"`
	Sessions     int64  `json:"sessions"`
	Messages     int64  `json:"messages"`
	VoiceSeconds int64  `json:"voiceSeconds"`
	VoiceJoins   int64  `json:"voiceJoins"`
}

// Build scores the union of members found in any of the three sources
// and returns them ranked.
func Build(dutyTotals map[string]models.DutyTotal, messages map[string]int64, voice map[string]models.VoiceTotal) []Row {
	ids := make(map[string]struct{}, len(dutyTotals)+len(messages)+len(voice))
	for id := range dutyTotals {
		ids[id] = struct{}{}
	}
	for id := range messages {
		ids[id] = struct{}{}
	}
	for id := range voice {
		ids[id] = struct{}{}
	}

	rows := make([]Row, 0, len(ids))
	for id := range ids {
		d := dutyTotals[id]
		v := voice[id]
		r := Row{
			UserID:       id,
			DutySeconds:  d.Seconds,
			Sessions:     d.Sessions,
			Messages:     messages[id],
			VoiceSeconds: v.Seconds,
			VoiceJoins:   v.Joins,
		}
		r.Points = Points(r.DutySeconds, r.Messages, r.VoiceSeconds, r.VoiceJoins, r.Sessions)
		rows = append(rows, r)
	}
	Rank(rows)
	return rows
}

// Rank orders rows by points, highest first. Equal points are ordered by
// member ID ascending so the winner does not depend on map iteration.
func Rank(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Points != rows[j].Points {
			return rows[i].Points > rows[j].Points
		}
		return utils.CompareSnowflakes(rows[i].UserID, rows[j].UserID) < 0
	})
}
