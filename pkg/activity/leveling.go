package activity

import (
	"fmt"
	"math"
	"strings"

	apperrors "flickrheat/pkg/errors"
)

// Leveler maps a day's count to an intensity bucket given the series maximum
type Leveler interface {
	Name() string
	MaxLevel() int
	Level(count, peak int) int
}

// LinearQuartile buckets by the count's share of the maximum into 0-4.
// It is the default scheme.
type LinearQuartile struct{}

func (LinearQuartile) Name() string  { return "linear" }
func (LinearQuartile) MaxLevel() int { return 4 }

func (LinearQuartile) Level(count, peak int) int {
	if count <= 0 || peak <= 0 {
		return 0
	}
	if peak == 1 {
		return 2
	}
	ratio := float64(count) / float64(peak)
	switch {
	case ratio <= 0.25:
		return 1
	case ratio <= 0.5:
		return 2
	case ratio <= 0.75:
		return 3
	default:
		return 4
	}
}

// Logarithmic buckets on a log scale into 0-7 so that days of 1 and 300
// photos stay distinguishable.
type Logarithmic struct{}

func (Logarithmic) Name() string  { return "logarithmic" }
func (Logarithmic) MaxLevel() int { return 7 }

func (l Logarithmic) Level(count, peak int) int {
	if count <= 0 || peak <= 0 {
		return 0
	}
	top := l.MaxLevel()
	if peak == 1 {
		return top
	}
	level := int(math.Ceil(float64(top) * math.Log(float64(count)) / math.Log(float64(peak))))
	if level < 1 {
		level = 1
	}
	if level > top {
		level = top
	}
	return level
}

// ParseLeveling returns the scheme named s; empty selects LinearQuartile
func ParseLeveling(s string) (Leveler, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "linear", "quartile", "linear-quartile":
		return LinearQuartile{}, nil
	case "log", "logarithmic":
		return Logarithmic{}, nil
	default:
		return nil, apperrors.Validation(fmt.Sprintf("invalid leveling %q (expected linear or logarithmic)", s))
	}
}
