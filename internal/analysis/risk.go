package analysis

import (
	"fmt"
	"sort"
	"time"

	"cuida-monitor/internal/models"
)

// Severity ranks an advisory.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityWarning:  1,
	SeverityInfo:     2,
}

// Advisory is one natural-language finding.
type Advisory struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
}

// Summary is the risk report for the whole stored history.
type Summary struct {
	GeneratedAt int64      `json:"generated_at"`
	TotalEvents int        `json:"total_events"`
	Falls       int        `json:"falls"`
	Panics      int        `json:"panics"`
	RecentFalls int        `json:"recent_falls"`
	NightFalls  int        `json:"night_falls"`
	Advisories  []Advisory `json:"advisories"`
}

// Rules holds the fixed thresholds.
type Rules struct {
	NightStartHour      int // inclusive, local time
	NightEndHour        int // exclusive, local time
	RecentWindow        time.Duration
	CriticalRecentFalls int
	Location            *time.Location
}

// DefaultRules: night is 22h-6h, recency is 7 days, 3 recent falls is critical.
func DefaultRules() Rules {
	return Rules{
		NightStartHour:      22,
		NightEndHour:        6,
		RecentWindow:        7 * 24 * time.Hour,
		CriticalRecentFalls: 3,
		Location:            time.UTC,
	}
}

func (r Rules) isNight(ts int64) bool {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	hour := time.Unix(ts, 0).In(loc).Hour()
	if r.NightStartHour > r.NightEndHour {
		return hour >= r.NightStartHour || hour < r.NightEndHour
	}
	return hour >= r.NightStartHour && hour < r.NightEndHour
}

// Analyze evaluates the rules over events as of now.
func Analyze(events []models.Event, now time.Time, rules Rules) Summary {
	s := Summary{
		GeneratedAt: now.Unix(),
		TotalEvents: len(events),
		Advisories:  []Advisory{},
	}

	cutoff := now.Add(-rules.RecentWindow).Unix()
	for _, e := range events {
		switch {
		case e.IsFall():
			s.Falls++
			if e.Timestamp >= cutoff {
				s.RecentFalls++
			}
			if rules.isNight(e.Timestamp) {
				s.NightFalls++
			}
		case e.IsPanic():
			s.Panics++
		}
	}

	if s.TotalEvents == 0 {
		s.Advisories = append(s.Advisories, Advisory{
			Severity: SeverityInfo,
			Code:     "no_events",
			Message:  "No safety events recorded yet.",
		})
		return s
	}

	days := int(rules.RecentWindow / (24 * time.Hour))
	if s.RecentFalls >= rules.CriticalRecentFalls {
		s.Advisories = append(s.Advisories, Advisory{
			Severity: SeverityCritical,
			Code:     "recent_falls",
			Message:  fmt.Sprintf("%d falls in the last %d days. Schedule a clinical review.", s.RecentFalls, days),
		})
	} else if s.RecentFalls > 0 {
		s.Advisories = append(s.Advisories, Advisory{
			Severity: SeverityWarning,
			Code:     "recent_falls",
			Message:  fmt.Sprintf("%d fall(s) in the last %d days.", s.RecentFalls, days),
		})
	}

	if s.NightFalls >= 2 && s.NightFalls*2 > s.Falls {
		s.Advisories = append(s.Advisories, Advisory{
			Severity: SeverityWarning,
			Code:     "night_falls",
			Message: fmt.Sprintf("%d of %d falls happened between %02dh and %02dh. Check night lighting and supervision.",
				s.NightFalls, s.Falls, rules.NightStartHour, rules.NightEndHour),
		})
	}

	if s.Panics > s.Falls {
		s.Advisories = append(s.Advisories, Advisory{
			Severity: SeverityInfo,
			Code:     "panic_dominant",
			Message:  fmt.Sprintf("Manual panic triggers (%d) outnumber detected falls (%d).", s.Panics, s.Falls),
		})
	} else if s.Falls > 0 && s.Panics == 0 {
		s.Advisories = append(s.Advisories, Advisory{
			Severity: SeverityInfo,
			Code:     "no_panic_use",
			Message:  "Falls were detected but the panic button was never used. Confirm the wearer can reach it.",
		})
	}

	if len(s.Advisories) == 0 {
		s.Advisories = append(s.Advisories, Advisory{
			Severity: SeverityInfo,
			Code:     "no_pattern",
			Message:  "No risk pattern detected.",
		})
	}

	sort.SliceStable(s.Advisories, func(i, j int) bool {
		return severityRank[s.Advisories[i].Severity] < severityRank[s.Advisories[j].Severity]
	})
	return s
}
