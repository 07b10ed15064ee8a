package patch

import (
	"encoding/json"
	"math"
	"strings"
)

// LineKind classifies one line of patch tool output
type LineKind int

const (
	// LineIgnored is valid JSON that carries no progress, or a blank line
	LineIgnored LineKind = iota
	// LineProgress carries a percentage in Line.Percent
	LineProgress
	// LineMalformed is anything that is not a JSON object
	LineMalformed
)

func (k LineKind) String() string {
	switch k {
	case LineProgress:
		return "progress"
	case LineMalformed:
		return "malformed"
	default:
		return "ignored"
	}
}

// Line is the parsed form of one NDJSON line
type Line struct {
	Kind    LineKind
	Percent int
}

// ParseLine interprets one line written by "butler apply --json". A line is
// progress when its type mentions "progress" or it carries a numeric
// percentage, percent or progress field. Fractions in (0, 1] are scaled to percent and
// the result is clamped to [0, 100].
func ParseLine(line string) Line {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Line{Kind: LineIgnored}
	}

	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return Line{Kind: LineMalformed}
	}

	typ, _ := obj["type"].(string)
	percentage, hasPercentage := obj["percentage"].(float64)
	percent, hasPercent := obj["percent"].(float64)
	prog, hasProgress := obj["progress"].(float64)

	if !strings.Contains(strings.ToLower(typ), "progress") && !hasPercentage && !hasPercent && !hasProgress {
		return Line{Kind: LineIgnored}
	}

	var value float64
	switch {
	case hasPercentage:
		value = percentage
	case hasPercent:
		value = percent
	case hasProgress:
		value = prog
	default:
		return Line{Kind: LineIgnored}
	}

	if value > 0 && value <= 1 {
		value *= 100
	}
	value = math.Max(0, math.Min(100, value))

	return Line{Kind: LineProgress, Percent: int(math.Round(value))}
}
