package phone

import "testing"

func TestNormalizerE164(t *testing.T) {
	tests := []struct {
		name   string
		region string
		input  string
		want   string
	}{
		{name: "us national", region: "US", input: "(415) 555-2671", want: "+14155552671"},
		{name: "already e164", region: "US", input: "+31612345678", want: "+31612345678"},
		{name: "nl national", region: "NL", input: "06 12345678", want: "+31612345678"},
		{name: "garbage kept", region: "US", input: "  call me ", want: "call me"},
		{name: "empty", region: "US", input: "   ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewNormalizer(tt.region).E164(tt.input)
			if got != tt.want {
				t.Fatalf("E164(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizerDefaultsRegion(t *testing.T) {
	if got := NewNormalizer("").E164("415-555-2671"); got != "+14155552671" {
		t.Fatalf("expected US default, got %q", got)
	}
}
