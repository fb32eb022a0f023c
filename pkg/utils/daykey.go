package utils

import "time"

// ReportZone is the fixed UTC+3 clock used for day and week keys.
// It carries no DST rules and ignores the host timezone.
var ReportZone = time.FixedZone("UTC+3", 3*3600)

const dayKeyLayout = "2006-01-02"

// InReportZone converts t to the report clock
func InReportZone(t time.Time) time.Time {
	return t.In(ReportZone)
}

// DayKey returns the YYYY-MM-DD date of t on the report clock
func DayKey(t time.Time) string {
	return t.In(ReportZone).Format(dayKeyLayout)
}

// ParseDayKey parses a day key back into midnight on the report clock
func ParseDayKey(key string) (time.Time, error) {
	return time.ParseInLocation(dayKeyLayout, key, ReportZone)
}

// Unix truncates t to whole seconds as stored in the database
func Unix(t time.Time) int64 {
	return t.Unix()
}

// FromUnix is the inverse of Unix, in UTC
func FromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
