package synthetic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScript(t *testing.T) {
	segs, err := ParseScript("5s=silence, 10s=sine:20:40+noise:2 ,forever=sine:6:30+sine:10:5+dc:-1")
	require.NoError(t, err)

	want := []Segment{
		{Duration: 5 * time.Second},
		{Duration: 10 * time.Second, Tones: []Tone{{Freq: 20, Amplitude: 40}}, Noise: 2},
		{Tones: []Tone{{Freq: 6, Amplitude: 30}, {Freq: 10, Amplitude: 5}}, Offset: -1},
	}
	assert.Equal(t, want, segs)
}

func TestParseScriptErrors(t *testing.T) {
	for _, script := range []string{
		"",
		"5s",
		"abc=silence",
		"0s=silence",
		"1s=sine:20",
		"1s=square:3",
		"1s=noise:x",
	} {
		_, err := ParseScript(script)
		assert.Error(t, err, "script %q", script)
	}
}
