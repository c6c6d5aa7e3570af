package utils

import "testing"

func TestParseTokens(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"50", 50000, false},
		{"12.5", 12500, false},
		{"0.001", 1, false},
		{"100", 100000, false},
		{"0", 0, false},
		{".5", 500, false},
		{" 10 ", 10000, false},
		{"", 0, true},
		{"-5", 0, true},
		{"1.2345", 0, true},
		{"1.", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTokens(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseTokens(%q) expected error, got %d", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTokens(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseTokens(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatTokens(t *testing.T) {
	tests := []struct {
		units int64
		want  string
	}{
		{50000, "50"},
		{12500, "12.5"},
		{1, "0.001"},
		{0, "0"},
		{-12500, "-12.5"},
		{100010, "100.01"},
	}

	for _, tt := range tests {
		if got := FormatTokens(tt.units); got != tt.want {
			t.Errorf("FormatTokens(%d) = %q, want %q", tt.units, got, tt.want)
		}
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for _, units := range []int64{1, 999, 1000, 12500, 100000} {
		parsed, err := ParseTokens(FormatTokens(units))
		if err != nil {
			t.Fatalf("round trip %d: %v", units, err)
		}
		if parsed != units {
			t.Errorf("round trip %d -> %q -> %d", units, FormatTokens(units), parsed)
		}
	}
}

func TestGenerateRandomID(t *testing.T) {
	id := GenerateRandomID(16)
	if len(id) != 16 {
		t.Fatalf("GenerateRandomID(16) length = %d", len(id))
	}
	if id == GenerateRandomID(16) {
		t.Error("two random IDs collided")
	}
}
