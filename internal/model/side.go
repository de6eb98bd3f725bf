package model

import (
	"fmt"
	"strings"
)

// Side is the direction of a trade from the battery operator's point of view.
// Keep these values stable; they are written to CSV and the transaction table.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(SideBuy):
		return SideBuy, nil
	case string(SideSell):
		return SideSell, nil
	default:
		return "", fmt.Errorf("invalid side %q, expected BUY or SELL", s)
	}
}

// Sign is -1 for buys (cash out) and +1 for sells (cash in).
func (s Side) Sign() float64 {
	if s == SideBuy {
		return -1
	}
	return 1
}
