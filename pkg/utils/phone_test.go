package utils

import "testing"

func TestMaskPhoneNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+919876543210", "+919876••3210"},
		{"", ""},
		{"12345678", "••••5678"},
		{"123", "•••"},
	}
	for _, tt := range tests {
		if got := MaskPhoneNumber(tt.in); got != tt.want {
			t.Errorf("MaskPhoneNumber(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
