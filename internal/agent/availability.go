package agent

import (
	"strings"
	"time"

	"github.com/wwwzy/BookAgent/internal/classifier"
	"github.com/wwwzy/BookAgent/internal/scheduling"
)

const dateKeyLayout = "2006-01-02"

// availabilityPlan 是一次可用时段查询的窗口和过滤条件
type availabilityPlan struct {
	pref   classifier.TimePreference
	loc    *time.Location
	narrow scheduling.Window
	broad  scheduling.Window
	// dates 为偏好命中的日期（按 loc 的本地日期），nil 表示不限日期
	dates map[string]bool
}

func planAvailability(pref classifier.TimePreference, now time.Time, loc *time.Location, days int) availabilityPlan {
	if loc == nil {
		loc = time.UTC
	}
	broad := scheduling.Window{Start: now, End: now.Add(time.Duration(days) * 24 * time.Hour)}
	plan := availabilityPlan{pref: pref, loc: loc, narrow: broad, broad: broad}
	if pref.Any || len(pref.Days) == 0 {
		return plan
	}

	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	var first, last time.Time
	dates := make(map[string]bool)
	for i := 0; i < days; i++ {
		d := today.AddDate(0, 0, i)
		if !matchesDay(pref.Days, d, i) {
			continue
		}
		if first.IsZero() {
			first = d
		}
		last = d
		dates[d.Format(dateKeyLayout)] = true
	}
	if len(dates) == 0 {
		return plan
	}

	start := first
	if start.Before(now) {
		start = now
	}
	plan.narrow = scheduling.Window{Start: start, End: last.AddDate(0, 0, 1)}
	plan.dates = dates
	return plan
}

func (p availabilityPlan) narrowIsBroad() bool {
	return p.narrow.Start.Equal(p.broad.Start) && p.narrow.End.Equal(p.broad.End)
}

// filter 按偏好筛选时段。
// 指定了具体小时但没有精确命中时，退回到同一时间段内的时段。
func (p availabilityPlan) filter(slots []scheduling.Slot) []scheduling.Slot {
	if p.pref.Any {
		return slots
	}

	candidates := make([]scheduling.Slot, 0, len(slots))
	for _, s := range slots {
		t, err := s.StartTime()
		if err != nil {
			continue
		}
		if p.dates != nil && !p.dates[t.In(p.loc).Format(dateKeyLayout)] {
			continue
		}
		candidates = append(candidates, s)
	}

	switch {
	case p.pref.Hour >= 0:
		exact := p.keep(candidates, func(h int) bool { return h == p.pref.Hour })
		if len(exact) > 0 {
			return exact
		}
		if period := classifier.PeriodOfHour(p.pref.Hour); period != "" {
			return p.inPeriod(candidates, period)
		}
		return nil
	case p.pref.Period != "":
		return p.inPeriod(candidates, p.pref.Period)
	default:
		return candidates
	}
}

func (p availabilityPlan) inPeriod(slots []scheduling.Slot, period classifier.Period) []scheduling.Slot {
	from, to, ok := period.HourRange()
	if !ok {
		return nil
	}
	return p.keep(slots, func(h int) bool { return h >= from && h < to })
}

func (p availabilityPlan) keep(slots []scheduling.Slot, match func(hour int) bool) []scheduling.Slot {
	var out []scheduling.Slot
	for _, s := range slots {
		t, err := s.StartTime()
		if err != nil {
			continue
		}
		if match(t.In(p.loc).Hour()) {
			out = append(out, s)
		}
	}
	return out
}

func matchesDay(days []string, d time.Time, offset int) bool {
	for _, day := range days {
		switch day {
		case "today":
			if offset == 0 {
				return true
			}
		case "tomorrow":
			if offset == 1 {
				return true
			}
		default:
			if strings.EqualFold(d.Weekday().String(), day) {
				return true
			}
		}
	}
	return false
}
