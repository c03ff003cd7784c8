package classifier

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/cloudwego/eino/schema"
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)

	cancelKeywords     = []string{"cancel", "delete", "remove"}
	rescheduleKeywords = []string{"reschedule", "change", "move"}
	bookKeywords       = []string{"book", "appointment", "schedule", "slot", "available", "availability", "checkup", "check-up"}

	nameMarkers  = []string{"my name is", "name is", "name:", "call me"}
	namePrefixes = []string{"hi", "hello", "hey", "my name is", "name is", "name:", "im", "i'm", "i am", "this is", "it's", "its", "call me"}
	nameSuffixes = []string{"my email is", "email is", "email:", "email", "and", "at"}
	nameStops    = wordSet("book", "booking", "cancel", "reschedule", "appointment", "appointments", "please", "for",
		"my", "email", "the", "a", "an", "to", "want", "need", "like", "would", "schedule", "meeting", "slot", "is",
		"with", "yes", "no", "ok", "okay", "sure", "thanks", "thank", "you", "any", "time", "change", "move")

	negativeTokens = wordSet("none", "neither", "no", "nope", "nah", "other", "others", "another", "different", "else")
	affirmTokens   = wordSet("yes", "y", "yeah", "yep", "yup", "sure", "ok", "okay", "confirm", "confirmed", "correct", "please", "absolutely", "definitely")
	denyTokens     = wordSet("no", "n", "nope", "nah", "dont", "keep", "stop", "nevermind", "never", "not")

	ordinals = map[string]int{
		"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
		"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
		"1st": 1, "2nd": 2, "3rd": 3, "4th": 4, "5th": 5, "6th": 6, "7th": 7, "8th": 8, "9th": 9, "10th": 10,
	}
)

// Rules 是纯规则实现的 Classifier，不依赖外部服务
type Rules struct{}

func NewRules() *Rules {
	return &Rules{}
}

func (r *Rules) ClassifyIntent(_ context.Context, msgs []*schema.Message) Label {
	text := strings.ToLower(LatestUserMessage(msgs))
	if text == "" {
		return LabelUnknown
	}
	// reschedule 包含 schedule，必须先于 BOOK 判断
	switch {
	case containsAny(text, cancelKeywords):
		return LabelCancel
	case containsAny(text, rescheduleKeywords):
		return LabelReschedule
	case containsAny(text, bookKeywords):
		return LabelBook
	default:
		return LabelUnknown
	}
}

// ExtractIdentity 从新到旧扫描用户消息，取最先出现的邮箱和姓名。
// 只有邮箱时用邮箱本地部分推导姓名。
func (r *Rules) ExtractIdentity(_ context.Context, msgs []*schema.Message) Identity {
	var id Identity
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m == nil || m.Role != schema.User {
			continue
		}
		text := strings.TrimSpace(m.Content)

		if email := emailPattern.FindString(text); email != "" {
			if id.Email == "" {
				id.Email = email
			}
			if id.Name == "" {
				before := text[:strings.Index(text, email)]
				id.Name = cleanName(before)
			}
		} else if id.Name == "" {
			id.Name = nameFromText(text, assistantBefore(msgs, i))
		}

		if id.Name != "" && id.Email != "" {
			break
		}
	}
	if id.Name == "" && id.Email != "" {
		id.Name = deriveName(id.Email)
	}
	return id
}

func (r *Rules) ExtractTimePreference(_ context.Context, msgs []*schema.Message) (string, bool) {
	pref, ok := ParseNaturalTime(LatestUserMessage(msgs))
	if !ok {
		return "", false
	}
	return pref.String(), true
}

func (r *Rules) ParseSelection(_ context.Context, msgs []*schema.Message, offered []string) Selection {
	text := strings.TrimSpace(LatestUserMessage(msgs))
	toks := tokens(text)
	if len(toks) == 0 || len(offered) == 0 {
		return Selection{Kind: SelectionUnparseable}
	}

	if n, ok := pickNumber(text); ok {
		if n >= 1 && n <= len(offered) {
			return Selection{Kind: SelectionIndex, Index: n - 1}
		}
		return Selection{Kind: SelectionUnparseable}
	}
	for _, t := range toks {
		if n, ok := ordinals[t]; ok {
			if n <= len(offered) {
				return Selection{Kind: SelectionIndex, Index: n - 1}
			}
			return Selection{Kind: SelectionUnparseable}
		}
		if t == "last" {
			return Selection{Kind: SelectionIndex, Index: len(offered) - 1}
		}
	}

	if hasToken(toks, negativeTokens) {
		return Selection{Kind: SelectionNegative}
	}
	if len(offered) == 1 && hasToken(toks, affirmTokens) {
		return Selection{Kind: SelectionIndex, Index: 0}
	}

	// 文本恰好命中唯一一个候选项时按该项处理
	lower := strings.ToLower(text)
	if len(lower) >= 3 {
		match := -1
		for i, item := range offered {
			if strings.Contains(strings.ToLower(item), lower) {
				if match >= 0 {
					return Selection{Kind: SelectionUnparseable}
				}
				match = i
			}
		}
		if match >= 0 {
			return Selection{Kind: SelectionIndex, Index: match}
		}
	}
	return Selection{Kind: SelectionUnparseable}
}

func (r *Rules) ParseConfirmation(_ context.Context, msgs []*schema.Message) Confirmation {
	toks := tokens(LatestUserMessage(msgs))
	text := strings.ToLower(LatestUserMessage(msgs))
	yes := hasToken(toks, affirmTokens) || strings.Contains(text, "go ahead")
	no := hasToken(toks, denyTokens)
	switch {
	case yes && !no:
		return ConfirmYes
	case no && !yes:
		return ConfirmNo
	default:
		return ConfirmUnclear
	}
}

// pickNumber 找出消息中作为序号使用的数字；后面跟 am/pm 或 ":mm" 的数字视为时间而忽略
func pickNumber(text string) (int, bool) {
	lower := strings.ToLower(text)
	runes := []rune(lower)
	for i := 0; i < len(runes); i++ {
		if !unicode.IsDigit(runes[i]) || (i > 0 && (unicode.IsLetter(runes[i-1]) || unicode.IsDigit(runes[i-1]) || runes[i-1] == ':')) {
			continue
		}
		j := i
		for j < len(runes) && unicode.IsDigit(runes[j]) {
			j++
		}
		rest := strings.TrimLeft(string(runes[j:]), " ")
		isTime := strings.HasPrefix(rest, "am") || strings.HasPrefix(rest, "pm") ||
			strings.HasPrefix(rest, "a.m") || strings.HasPrefix(rest, "p.m") ||
			(j < len(runes) && runes[j] == ':')
		isOrdinal := strings.HasPrefix(string(runes[j:]), "st") || strings.HasPrefix(string(runes[j:]), "nd") ||
			strings.HasPrefix(string(runes[j:]), "rd") || strings.HasPrefix(string(runes[j:]), "th")
		if isTime || isOrdinal || (j < len(runes) && unicode.IsLetter(runes[j])) {
			i = j
			continue
		}
		n, err := strconv.Atoi(string(runes[i:j]))
		if err != nil {
			i = j
			continue
		}
		return n, true
	}
	return 0, false
}

func nameFromText(text, prompt string) string {
	lower := strings.ToLower(text)
	for _, marker := range nameMarkers {
		if idx := strings.Index(lower, marker); idx >= 0 {
			rest := text[idx+len(marker):]
			if cut := strings.IndexAny(rest, ",.;\n"); cut >= 0 {
				rest = rest[:cut]
			}
			if name := cleanName(rest); name != "" {
				return name
			}
		}
	}
	// 助手刚问过姓名时，把简短的纯文本回复当作姓名
	if strings.Contains(strings.ToLower(prompt), "name") {
		return cleanName(text)
	}
	return ""
}

func cleanName(s string) string {
	const punct = " \t\n,.;:-<>()!?\"'"
	s = strings.Trim(s, punct)
	for changed := true; changed; {
		changed = false
		lower := strings.ToLower(s)
		for _, p := range namePrefixes {
			if lower == p {
				return ""
			}
			if strings.HasPrefix(lower, p+" ") || (strings.HasSuffix(p, ":") && strings.HasPrefix(lower, p)) || strings.HasPrefix(lower, p+",") {
				s = strings.Trim(s[len(p):], punct)
				changed = true
				break
			}
		}
		lower = strings.ToLower(s)
		for _, suf := range nameSuffixes {
			if strings.HasSuffix(lower, " "+suf) {
				s = strings.Trim(s[:len(s)-len(suf)], punct)
				changed = true
				break
			}
		}
	}

	words := strings.Fields(s)
	if len(words) == 0 || len(words) > 5 || len(s) <= 2 {
		return ""
	}
	for _, w := range words {
		if nameStops[strings.ToLower(w)] {
			return ""
		}
		for _, r := range w {
			if !unicode.IsLetter(r) && r != '-' && r != '\'' && r != '.' {
				return ""
			}
		}
	}
	return strings.Join(words, " ")
}

// deriveName 从邮箱本地部分推导姓名，例如 jane.doe+x@y.com -> Jane Doe
func deriveName(email string) string {
	local := email
	if at := strings.Index(local, "@"); at >= 0 {
		local = local[:at]
	}
	if plus := strings.Index(local, "+"); plus >= 0 {
		local = local[:plus]
	}
	parts := strings.FieldsFunc(local, func(r rune) bool { return r == '.' || r == '_' || r == '-' })
	var words []string
	for _, p := range parts {
		p = strings.TrimFunc(p, unicode.IsDigit)
		if p == "" {
			continue
		}
		rs := []rune(strings.ToLower(p))
		rs[0] = unicode.ToUpper(rs[0])
		words = append(words, string(rs))
	}
	if len(words) == 0 {
		return local
	}
	return strings.Join(words, " ")
}

func assistantBefore(msgs []*schema.Message, idx int) string {
	for i := idx - 1; i >= 0; i-- {
		if msgs[i] == nil {
			continue
		}
		if msgs[i].Role == schema.Assistant {
			return msgs[i].Content
		}
		if msgs[i].Role == schema.User {
			return ""
		}
	}
	return ""
}
