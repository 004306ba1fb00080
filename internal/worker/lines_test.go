package worker

import (
	"strings"
	"testing"
)

func TestReadLines(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		limit     int
		want      []string
		oversized []int
	}{
		{
			name:  "simple lines",
			input: "a\nb\nc\n",
			limit: 100,
			want:  []string{"a", "b", "c"},
		},
		{
			name:  "crlf terminators",
			input: "{\"x\":1}\r\n{\"x\":2}\r\n",
			limit: 100,
			want:  []string{`{"x":1}`, `{"x":2}`},
		},
		{
			name:  "blank lines skipped",
			input: "a\n\n\nb\n",
			limit: 100,
			want:  []string{"a", "b"},
		},
		{
			name:  "trailing partial line",
			input: "a\nb",
			limit: 100,
			want:  []string{"a", "b"},
		},
		{
			name:      "oversize line dropped",
			input:     "ok\n" + strings.Repeat("x", 20) + "\nafter\n",
			limit:     10,
			want:      []string{"ok", "after"},
			oversized: []int{21},
		},
		{
			name:  "exactly at limit",
			input: strings.Repeat("y", 10) + "\n",
			limit: 10,
			want:  []string{strings.Repeat("y", 10)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			var oversized []int
			err := readLines(strings.NewReader(tt.input), tt.limit,
				func(line []byte) { got = append(got, string(line)) },
				func(n int) { oversized = append(oversized, n) })
			if err != nil {
				t.Fatalf("readLines() error = %v", err)
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("lines = %q, want %q", got, tt.want)
			}
			if len(oversized) != len(tt.oversized) {
				t.Fatalf("oversize calls = %v, want %v", oversized, tt.oversized)
			}
			for i := range oversized {
				if oversized[i] != tt.oversized[i] {
					t.Errorf("oversize[%d] = %d, want %d", i, oversized[i], tt.oversized[i])
				}
			}
		})
	}
}

func TestReadLines_LongerThanReadBuffer(t *testing.T) {
	long := strings.Repeat("z", readBufferSize*3)
	input := long + "\nnext\n"

	var got []string
	err := readLines(strings.NewReader(input), readBufferSize*4,
		func(line []byte) { got = append(got, string(line)) }, nil)
	if err != nil {
		t.Fatalf("readLines() error = %v", err)
	}
	if len(got) != 2 || got[0] != long || got[1] != "next" {
		t.Fatalf("expected the long record and the next one, got %d records", len(got))
	}
}

func TestReadLines_OversizeAcrossReadBuffer(t *testing.T) {
	input := strings.Repeat("q", readBufferSize*2) + "\nkept\n"

	var got []string
	dropped := 0
	err := readLines(strings.NewReader(input), 1024,
		func(line []byte) { got = append(got, string(line)) },
		func(n int) { dropped = n })
	if err != nil {
		t.Fatalf("readLines() error = %v", err)
	}
	if len(got) != 1 || got[0] != "kept" {
		t.Errorf("got %q, want [kept]", got)
	}
	if dropped != readBufferSize*2+1 {
		t.Errorf("dropped = %d, want %d", dropped, readBufferSize*2+1)
	}
}
