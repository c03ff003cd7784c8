package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "Monday, January 06 at 02:00 PM UTC", FormatTime("2025-01-06T14:00:00Z", time.UTC))
	assert.Equal(t, "Monday, January 06 at 02:00 PM UTC", FormatTime("2025-01-06T14:00:00Z", nil))
	assert.Equal(t, "not-a-time", FormatTime("not-a-time", time.UTC))

	est := time.FixedZone("EST", -5*3600)
	assert.Equal(t, "Monday, January 06 at 09:00 AM EST", FormatTime("2025-01-06T14:00:00Z", est))
}

func TestFormatList(t *testing.T) {
	assert.Equal(t, "1. a\n2. b", FormatList([]string{"a", "b"}))
	assert.Equal(t, "", FormatList(nil))
}

func TestWindowContains(t *testing.T) {
	start := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	w := Window{Start: start, End: start.Add(time.Hour)}
	assert.True(t, w.Contains(start))
	assert.False(t, w.Contains(start.Add(time.Hour)))
	assert.False(t, w.Contains(start.Add(-time.Second)))
}
