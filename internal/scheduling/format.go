package scheduling

import (
	"strconv"
	"strings"
	"time"
)

const displayLayout = "Monday, January 02 at 03:04 PM"

// FormatTime 把 RFC3339 时间渲染为用户可读的形式；解析失败时原样返回
func FormatTime(iso string, loc *time.Location) string {
	t, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return iso
	}
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return t.Format(displayLayout) + " " + zoneLabel(t)
}

// FormatList 渲染带 1 开始编号的列表
func FormatList(items []string) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(item)
	}
	return b.String()
}

func zoneLabel(t time.Time) string {
	name, _ := t.Zone()
	if name == "" {
		return "UTC"
	}
	return name
}
