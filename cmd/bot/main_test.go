package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staffduty/internal/scoring"
	"staffduty/internal/weekly"
)

func TestRootCommands(t *testing.T) {
	root := rootCmd()
	for _, name := range []string{"run", "migrate", "report"} {
		sub, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("log-level"))
}

func TestReportRequiresGuild(t *testing.T) {
	root := rootCmd()
	root.SetArgs([]string{"report"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "guild")
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, weekly.Report{
		WeekKey:  "2026-03-06",
		SinceDay: "2026-02-28",
		Rows: []scoring.Row{
			{UserID: "7", Points: 22, DutySeconds: 7200, Sessions: 1, Messages: 40, VoiceSeconds: 1800, VoiceJoins: 2},
		},
	})
	assert.Equal(t, "Week of 2026-03-06 (since 2026-02-28)\n"+
		" 1. 7  22 pts  duty 2h 0m (1)  msgs 40  voice 30m (2 joins)\n", buf.String())

	buf.Reset()
	printReport(&buf, weekly.Report{WeekKey: "2026-03-06", SinceDay: "2026-02-28"})
	assert.Contains(t, buf.String(), "No activity recorded.")
}
