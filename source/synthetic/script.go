package synthetic

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseScript parses a comma-separated list of segments of the form
// DURATION=COMPONENT[+COMPONENT...]. DURATION is a Go duration or
// "forever". Components are:
//
//	silence
//	sine:FREQ:AMPLITUDE
//	noise:AMPLITUDE
//	dc:VALUE
//
// For example "5s=silence,10s=sine:20:40+noise:2,forever=sine:6:30".
func ParseScript(script string) ([]Segment, error) {
	var segments []Segment

	for _, item := range strings.Split(script, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		durText, body, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("segment %q: missing '='", item)
		}

		var seg Segment

		durText = strings.TrimSpace(durText)
		if durText != "forever" {
			d, err := time.ParseDuration(durText)
			if err != nil {
				return nil, fmt.Errorf("segment %q: %w", item, err)
			}
			if d <= 0 {
				return nil, fmt.Errorf("segment %q: duration must be > 0", item)
			}
			seg.Duration = d
		}

		for _, comp := range strings.Split(body, "+") {
			if err := parseComponent(&seg, strings.TrimSpace(comp)); err != nil {
				return nil, fmt.Errorf("segment %q: %w", item, err)
			}
		}

		segments = append(segments, seg)
	}

	if len(segments) == 0 {
		return nil, fmt.Errorf("empty script")
	}

	return segments, nil
}

func parseComponent(seg *Segment, comp string) error {
	fields := strings.Split(comp, ":")
	args := make([]float64, len(fields)-1)

	for i, f := range fields[1:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return fmt.Errorf("component %q: %w", comp, err)
		}
		args[i] = v
	}

	want := map[string]int{"silence": 0, "sine": 2, "noise": 1, "dc": 1}

	kind := strings.ToLower(strings.TrimSpace(fields[0]))
	n, ok := want[kind]
	if !ok {
		return fmt.Errorf("unknown component %q", fields[0])
	}
	if len(args) != n {
		return fmt.Errorf("component %q takes %d arguments, got %d", kind, n, len(args))
	}

	switch kind {
	case "sine":
		seg.Tones = append(seg.Tones, Tone{Freq: args[0], Amplitude: args[1]})
	case "noise":
		seg.Noise += args[0]
	case "dc":
		seg.Offset += args[0]
	}

	return nil
}
