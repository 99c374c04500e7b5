package types

import "testing"

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"+91 98765 43210", "+919876543210"},
		{"9876543210", "+919876543210"},
		{"09876543210", "+919876543210"},
		{"919876543210", "+919876543210"},
		{"whatsapp:+919876543210", "+919876543210"},
		{"+1 (415) 555-0100", "+14155550100"},
		{"anonymous", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizePhone(tt.in); got != tt.want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMaskPhone(t *testing.T) {
	if got := MaskPhone("9876543210"); got != "*********3210" {
		t.Errorf("MaskPhone = %q", got)
	}
	if got := MaskPhone(""); got != "" {
		t.Errorf("MaskPhone(empty) = %q", got)
	}
}
