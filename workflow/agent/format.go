package agent

import (
	"math"
	"strconv"
	"strings"
)

// FormatWon renders a won amount with thousands separators, "71,500".
// Quote prices on the KRX are whole won, so the value is rounded.
func FormatWon(v float64) string {
	return Comma(int64(math.Round(v)))
}

// Comma inserts thousands separators into n.
func Comma(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	if neg {
		s = "-" + s
	}
	return s
}
