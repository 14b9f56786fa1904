package protocol

import (
	"bytes"
	"strings"
	"testing"
)

func TestSplitRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		max     int
	}{
		{"shorter than max", "hi", 16},
		{"exactly max", strings.Repeat("a", 16), 16},
		{"one over max", strings.Repeat("a", 17), 16},
		{"several chunks", strings.Repeat("x", 100), 16},
		{"max of one", "abc", 1},
		{"typical command", "LED1.set();\n", 16},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chunks := Split([]byte(tc.payload), tc.max)

			var joined []byte
			for i, chunk := range chunks {
				if len(chunk) > tc.max {
					t.Errorf("chunk %d has %d bytes, max is %d", i, len(chunk), tc.max)
				}
				if i < len(chunks)-1 && len(chunk) != tc.max {
					t.Errorf("chunk %d has %d bytes, every chunk but the last must have %d", i, len(chunk), tc.max)
				}
				joined = append(joined, chunk...)
			}
			if !bytes.Equal(joined, []byte(tc.payload)) {
				t.Errorf("concatenated chunks = %q, want %q", joined, tc.payload)
			}
		})
	}
}

func TestSplitEmptyPayload(t *testing.T) {
	if chunks := Split(nil, 16); chunks != nil {
		t.Errorf("Split(nil) = %v, want nil", chunks)
	}
	if chunks := Split([]byte{}, 16); chunks != nil {
		t.Errorf("Split(empty) = %v, want nil", chunks)
	}
}

func TestSplitChunkCount(t *testing.T) {
	chunks := Split(make([]byte, 40), 16)
	if len(chunks) != 3 {
		t.Fatalf("Split(40 bytes, 16) produced %d chunks, want 3", len(chunks))
	}
	if len(chunks[2]) != 8 {
		t.Errorf("last chunk has %d bytes, want 8", len(chunks[2]))
	}
}
