package analysis

import (
	"testing"
	"time"

	"cuida-monitor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var refNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func ev(kind models.Kind, at time.Time) models.Event {
	return models.Event{
		Timestamp: at.Unix(),
		EventData: models.EventData{Kind: kind, AccelerationLabel: models.UnknownAcceleration},
	}
}

func codes(s Summary) []string {
	var out []string
	for _, a := range s.Advisories {
		out = append(out, a.Code)
	}
	return out
}

func TestAnalyze_NoEvents(t *testing.T) {
	s := Analyze(nil, refNow, DefaultRules())

	assert.Equal(t, 0, s.TotalEvents)
	require.Len(t, s.Advisories, 1)
	assert.Equal(t, "no_events", s.Advisories[0].Code)
	assert.Equal(t, SeverityInfo, s.Advisories[0].Severity)
	assert.Equal(t, refNow.Unix(), s.GeneratedAt)
}

func TestAnalyze_CriticalRecentFallsAtNight(t *testing.T) {
	events := []models.Event{
		ev(models.KindFall, refNow.Add(-72*time.Hour).Truncate(24*time.Hour).Add(23*time.Hour)),
		ev(models.KindFall, refNow.Add(-48*time.Hour).Truncate(24*time.Hour).Add(2*time.Hour)),
		ev(models.KindFall, refNow.Add(-2*time.Hour)),
	}

	s := Analyze(events, refNow, DefaultRules())

	assert.Equal(t, 3, s.Falls)
	assert.Equal(t, 3, s.RecentFalls)
	assert.Equal(t, 2, s.NightFalls)
	assert.Equal(t, []string{"recent_falls", "night_falls", "no_panic_use"}, codes(s))
	assert.Equal(t, SeverityCritical, s.Advisories[0].Severity)
	assert.Contains(t, s.Advisories[0].Message, "3 falls in the last 7 days")
	assert.Contains(t, s.Advisories[1].Message, "22h and 06h")
}

func TestAnalyze_OldFallsOnlyWarnAboutPanics(t *testing.T) {
	old := refNow.Add(-30 * 24 * time.Hour).Truncate(24 * time.Hour).Add(14 * time.Hour)
	events := []models.Event{
		ev(models.KindFall, old),
		ev(models.KindPanic, old.Add(time.Hour)),
		ev(models.KindPanic, refNow.Add(-time.Hour)),
	}

	s := Analyze(events, refNow, DefaultRules())

	assert.Equal(t, 0, s.RecentFalls)
	assert.Equal(t, []string{"panic_dominant"}, codes(s))
}

func TestAnalyze_SingleRecentFallIsWarning(t *testing.T) {
	events := []models.Event{
		ev(models.KindFall, refNow.Add(-24*time.Hour)),
		ev(models.KindPanic, refNow.Add(-23*time.Hour)),
	}

	s := Analyze(events, refNow, DefaultRules())

	assert.Equal(t, []string{"recent_falls"}, codes(s))
	assert.Equal(t, SeverityWarning, s.Advisories[0].Severity)
}

func TestAnalyze_NoPattern(t *testing.T) {
	old := refNow.Add(-20 * 24 * time.Hour).Truncate(24 * time.Hour).Add(10 * time.Hour)
	events := []models.Event{
		ev(models.KindFall, old),
		ev(models.KindPanic, old.Add(time.Minute)),
		ev("inactivity", old.Add(time.Hour)),
	}

	s := Analyze(events, refNow, DefaultRules())

	assert.Equal(t, 3, s.TotalEvents)
	assert.Equal(t, []string{"no_pattern"}, codes(s))
}

func TestRules_IsNightHonoursLocation(t *testing.T) {
	rules := DefaultRules()
	rules.Location = time.FixedZone("BRT", -3*3600)

	// 01:00 UTC is 22:00 local
	assert.True(t, rules.isNight(time.Date(2024, 3, 15, 1, 0, 0, 0, time.UTC).Unix()))
	// 08:00 UTC is 05:00 local
	assert.True(t, rules.isNight(time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC).Unix()))
	// 09:00 UTC is 06:00 local
	assert.False(t, rules.isNight(time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC).Unix()))

	rules.NightStartHour, rules.NightEndHour = 1, 5
	assert.True(t, rules.isNight(time.Date(2024, 3, 15, 7, 0, 0, 0, time.UTC).Unix()))
	assert.False(t, rules.isNight(time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC).Unix()))
}
