package agent

import "testing"

func TestComma(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{5, "5"},
		{999, "999"},
		{1000, "1,000"},
		{71500, "71,500"},
		{1234567, "1,234,567"},
		{12345678, "12,345,678"},
		{-9876543, "-9,876,543"},
	}
	for _, tt := range tests {
		if got := Comma(tt.n); got != tt.want {
			t.Errorf("Comma(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestFormatWon(t *testing.T) {
	if got := FormatWon(71500); got != "71,500" {
		t.Errorf("FormatWon(71500) = %q, want 71,500", got)
	}
	if got := FormatWon(1234.6); got != "1,235" {
		t.Errorf("FormatWon(1234.6) = %q, want rounded 1,235", got)
	}
}
