package classifier

import (
	"regexp"
	"strconv"
	"strings"
)

// Period 为粗粒度的时间段
type Period string

const (
	PeriodMorning   Period = "morning"
	PeriodAfternoon Period = "afternoon"
	PeriodEvening   Period = "evening"
)

// HourRange 返回时间段覆盖的小时区间 [from, to)
func (p Period) HourRange() (int, int, bool) {
	switch p {
	case PeriodMorning:
		return 6, 12, true
	case PeriodAfternoon:
		return 12, 17, true
	case PeriodEvening:
		return 17, 21, true
	default:
		return 0, 0, false
	}
}

// PeriodOfHour 返回小时所属的时间段；不属于任何时间段时返回空串
func PeriodOfHour(h int) Period {
	for _, p := range []Period{PeriodMorning, PeriodAfternoon, PeriodEvening} {
		from, to, _ := p.HourRange()
		if h >= from && h < to {
			return p
		}
	}
	return ""
}

// TimePreference 是结构化的时间偏好。
// 文本编码为 "any"，或 "<days>|<time>"，days 为逗号分隔的星期/today/tomorrow，
// time 为 "hour:H" 或时间段名称，两侧都可以为空。
type TimePreference struct {
	Any    bool
	Days   []string
	Hour   int // -1 表示未指定
	Period Period
}

func (p TimePreference) String() string {
	if p.Any || (len(p.Days) == 0 && p.Hour < 0 && p.Period == "") {
		return "any"
	}
	var t string
	switch {
	case p.Hour >= 0:
		t = "hour:" + strconv.Itoa(p.Hour)
	case p.Period != "":
		t = string(p.Period)
	}
	return strings.Join(p.Days, ",") + "|" + t
}

// ParseTimePreference 解析 String 的输出；无法识别的部分被忽略
func ParseTimePreference(s string) TimePreference {
	pref := TimePreference{Hour: -1}
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "any" {
		pref.Any = true
		return pref
	}
	days, t, _ := strings.Cut(s, "|")
	for _, d := range strings.Split(days, ",") {
		if d = strings.TrimSpace(d); d != "" {
			pref.Days = append(pref.Days, d)
		}
	}
	if h, ok := strings.CutPrefix(t, "hour:"); ok {
		if n, err := strconv.Atoi(h); err == nil && n >= 0 && n < 24 {
			pref.Hour = n
		}
	} else if _, _, ok := Period(t).HourRange(); ok {
		pref.Period = Period(t)
	}
	if len(pref.Days) == 0 && pref.Hour < 0 && pref.Period == "" {
		pref.Any = true
	}
	return pref
}

var (
	dayAliases = []struct {
		day     string
		aliases []string
	}{
		{"today", []string{"today"}},
		{"tomorrow", []string{"tomorrow", "tmrw"}},
		{"monday", []string{"monday", "mon"}},
		{"tuesday", []string{"tuesday", "tue", "tues"}},
		{"wednesday", []string{"wednesday", "wed"}},
		{"thursday", []string{"thursday", "thu", "thur", "thurs"}},
		{"friday", []string{"friday", "fri"}},
		{"saturday", []string{"saturday", "sat"}},
		{"sunday", []string{"sunday", "sun"}},
	}

	anyTokens = wordSet("any", "anytime", "flexible", "whenever", "whatever", "anything")

	clockPattern    = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(a\.?m\.?|p\.?m\.?)`)
	twentyFourClock = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	atHourPattern   = regexp.MustCompile(`\bat (\d{1,2})\b`)
)

// ParseNaturalTime 从自然语言中识别星期、具体时刻和时间段
func ParseNaturalTime(text string) (TimePreference, bool) {
	pref := TimePreference{Hour: -1}
	lower := strings.ToLower(strings.TrimSpace(text))
	toks := tokens(lower)
	if len(toks) == 0 {
		return pref, false
	}

	set := make(map[string]bool, len(toks))
	for _, t := range toks {
		set[t] = true
	}

	for _, d := range dayAliases {
		for _, a := range d.aliases {
			if set[a] {
				pref.Days = append(pref.Days, d.day)
				break
			}
		}
	}

	if m := clockPattern.FindStringSubmatch(lower); m != nil {
		h, _ := strconv.Atoi(m[1])
		pm := strings.HasPrefix(m[3], "p")
		switch {
		case pm && h < 12:
			h += 12
		case !pm && h == 12:
			h = 0
		}
		if h < 24 {
			pref.Hour = h
		}
	} else if m := twentyFourClock.FindStringSubmatch(lower); m != nil {
		if h, _ := strconv.Atoi(m[1]); h < 24 {
			pref.Hour = h
		}
	} else if m := atHourPattern.FindStringSubmatch(lower); m != nil {
		h, _ := strconv.Atoi(m[1])
		// "at 3" 这类没有 am/pm 的说法按营业时间理解
		if h >= 1 && h <= 7 {
			h += 12
		}
		if h < 24 {
			pref.Hour = h
		}
	}

	if pref.Hour < 0 {
		switch {
		case set["noon"]:
			pref.Hour = 12
		// 单独的 am/pm 不算时间段，"I am free" 里的 am 只是动词
		case set["morning"]:
			pref.Period = PeriodMorning
		case set["afternoon"]:
			pref.Period = PeriodAfternoon
		case set["evening"] || set["night"] || set["tonight"]:
			pref.Period = PeriodEvening
		}
	}

	if len(pref.Days) == 0 && pref.Hour < 0 && pref.Period == "" {
		if hasToken(toks, anyTokens) {
			pref.Any = true
			return pref, true
		}
		return pref, false
	}
	return pref, true
}
