package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClockToMilliseconds(t *testing.T) {
	tests := []struct {
		name  string
		clock string
		want  int64
	}{
		{"hours minutes seconds hundredths", "01:02:03.45", 3723450},
		{"zero", "00:00:00.00", 0},
		{"seconds only", "00:00:07.50", 7500},
		{"no fraction", "00:01:30", 90000},
		{"long fraction truncated to hundredths", "00:00:01.999", 1990},
		{"empty", "", 0},
		{"garbage", "not-a-clock", 0},
		{"missing colon parts", "02:03.45", 0},
		{"negative component", "-1:00:00.00", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClockToMilliseconds(tt.clock))
		})
	}
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "40.000", FormatSeconds(40))
	assert.Equal(t, "0.500", FormatSeconds(0.5))
	assert.Equal(t, "12.345", FormatSeconds(12.345))
}
