package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNaturalTime(t *testing.T) {
	cases := []struct {
		text string
		want string
		ok   bool
	}{
		{"tuesday morning", "tuesday|morning", true},
		{"Tue or Wed at 11am", "tuesday,wednesday|hour:11", true},
		{"2:30 pm on friday", "friday|hour:14", true},
		{"12 am", "|hour:0", true},
		{"noon tomorrow", "tomorrow|hour:12", true},
		{"afternoon", "|afternoon", true},
		{"at 3", "|hour:15", true},
		{"thursday", "thursday|", true},
		{"anytime works", "any", true},
		{"I'm flexible", "any", true},
		{"I am flexible, any time works", "any", true},
		{"I am free tuesday", "tuesday|", true},
		{"I am not sure", "", false},
		{"tuesday 9 a.m.", "tuesday|hour:9", true},
		{"change time", "", false},
		{"jane@x.com", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		pref, ok := ParseNaturalTime(c.text)
		assert.Equal(t, c.ok, ok, c.text)
		if c.ok {
			assert.Equal(t, c.want, pref.String(), c.text)
		}
	}
}

func TestParseTimePreferenceRoundtrip(t *testing.T) {
	for _, s := range []string{"any", "tuesday|morning", "monday,friday|hour:9", "|evening", "sunday|"} {
		assert.Equal(t, s, ParseTimePreference(s).String(), s)
	}

	p := ParseTimePreference("tuesday,wednesday|hour:11")
	assert.Equal(t, []string{"tuesday", "wednesday"}, p.Days)
	assert.Equal(t, 11, p.Hour)
	assert.False(t, p.Any)

	p = ParseTimePreference("garbage")
	assert.Equal(t, []string{"garbage"}, p.Days)

	p = ParseTimePreference("")
	assert.True(t, p.Any)
}

func TestPeriod(t *testing.T) {
	from, to, ok := PeriodMorning.HourRange()
	require.True(t, ok)
	assert.Equal(t, 6, from)
	assert.Equal(t, 12, to)

	assert.Equal(t, PeriodAfternoon, PeriodOfHour(14))
	assert.Equal(t, PeriodEvening, PeriodOfHour(18))
	assert.Equal(t, Period(""), PeriodOfHour(23))
}

func TestRules_ExtractTimePreference(t *testing.T) {
	r := NewRules()
	pref, ok := r.ExtractTimePreference(context.Background(), userMsgs("book", "wednesday afternoon"))
	assert.True(t, ok)
	assert.Equal(t, "wednesday|afternoon", pref)

	pref, ok = r.ExtractTimePreference(context.Background(), userMsgs("I am free tuesday"))
	assert.True(t, ok)
	assert.Equal(t, "tuesday|", pref)

	pref, ok = r.ExtractTimePreference(context.Background(), userMsgs("I am flexible"))
	assert.True(t, ok)
	assert.Equal(t, "any", pref)

	_, ok = r.ExtractTimePreference(context.Background(), userMsgs("hmm"))
	assert.False(t, ok)
}
