package patch

import "testing"

// TestParseLine tests interpretation of patch tool output lines
func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Line
	}{
		{name: "fraction percentage", line: `{"type":"progress","percentage":0.42}`, want: Line{LineProgress, 42}},
		{name: "percentage without type", line: `{"percentage":0.42}`, want: Line{LineProgress, 42}},
		{name: "whole percent", line: `{"percent":37}`, want: Line{LineProgress, 37}},
		{name: "progress field with progress type", line: `{"type":"Progress","progress":0.5}`, want: Line{LineProgress, 50}},
		{name: "progress field alone", line: `{"progress":0.5}`, want: Line{LineProgress, 50}},
		{name: "exactly one means 100", line: `{"percentage":1}`, want: Line{LineProgress, 100}},
		{name: "zero", line: `{"percentage":0}`, want: Line{LineProgress, 0}},
		{name: "clamped high", line: `{"percent":250}`, want: Line{LineProgress, 100}},
		{name: "clamped low", line: `{"percent":-4}`, want: Line{LineProgress, 0}},
		{name: "rounded", line: `{"type":"progress","percentage":0.12345}`, want: Line{LineProgress, 12}},
		{name: "percentage wins over percent", line: `{"percentage":0.2,"percent":90}`, want: Line{LineProgress, 20}},
		{name: "progress type without number", line: `{"type":"progress","eta":12}`, want: Line{LineIgnored, 0}},
		{name: "log line", line: `{"type":"log","level":"info","message":"patching"}`, want: Line{LineIgnored, 0}},
		{name: "string percentage", line: `{"percentage":"42"}`, want: Line{LineIgnored, 0}},
		{name: "blank", line: "   ", want: Line{LineIgnored, 0}},
		{name: "plain text", line: "Patching game files...", want: Line{LineMalformed, 0}},
		{name: "truncated json", line: `{"type":"progress",`, want: Line{LineMalformed, 0}},
		{name: "surrounding whitespace", line: "  {\"percentage\":0.75}\r", want: Line{LineProgress, 75}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLine(tt.line)
			if got != tt.want {
				t.Errorf("ParseLine(%q) = %+v (%s), want %+v (%s)", tt.line, got, got.Kind, tt.want, tt.want.Kind)
			}
		})
	}
}
