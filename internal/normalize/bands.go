package normalize

import (
	"github.com/shopspring/decimal"

	"roas-notifier/internal/types"
)

// ROASBand is the severity band of a return-on-ad-spend figure.
type ROASBand int

const (
	ROASBelow ROASBand = iota // < 1.0
	ROASMid                   // 1.0 up to 1.5
	ROASHigh                  // >= 1.5
)

var (
	roasBreakEven = decimal.NewFromInt(1)
	roasHealthy   = decimal.RequireFromString("1.5")
	marginLow     = decimal.NewFromInt(100)
	marginHigh    = decimal.NewFromInt(1000)
)

// ROASBandOf classifies v. Exactly 1.0 is ROASMid, exactly 1.5 is ROASHigh.
func ROASBandOf(v types.NormalizedValue) ROASBand {
	switch {
	case v.Amount.LessThan(roasBreakEven):
		return ROASBelow
	case v.Amount.LessThan(roasHealthy):
		return ROASMid
	default:
		return ROASHigh
	}
}

func (b ROASBand) Emoji() string {
	switch b {
	case ROASBelow:
		return ":warning:"
	case ROASMid:
		return ":moneybag:"
	default:
		return ":money_with_wings:"
	}
}

func (b ROASBand) String() string {
	switch b {
	case ROASBelow:
		return "<1.0"
	case ROASMid:
		return "1.0-1.5"
	default:
		return "1.5+"
	}
}

// MarginBand is the severity band of a contribution-margin figure.
type MarginBand int

const (
	MarginNegative MarginBand = iota // < 0
	MarginLow                        // 0..100
	MarginMid                        // above 100 up to 1000
	MarginHigh                       // above 1000
)

// MarginBandOf classifies v. Zero is MarginLow, 100 is MarginLow, 1000 is MarginMid.
func MarginBandOf(v types.NormalizedValue) MarginBand {
	switch {
	case v.Amount.IsNegative():
		return MarginNegative
	case v.Amount.LessThanOrEqual(marginLow):
		return MarginLow
	case v.Amount.LessThanOrEqual(marginHigh):
		return MarginMid
	default:
		return MarginHigh
	}
}

func (b MarginBand) Emoji() string {
	switch b {
	case MarginNegative:
		return ":warning:"
	case MarginLow:
		return ":moneybag:"
	case MarginMid:
		return ":star-struck:"
	default:
		return ":money_with_wings:"
	}
}

func (b MarginBand) String() string {
	switch b {
	case MarginNegative:
		return "negative"
	case MarginLow:
		return "0-100"
	case MarginMid:
		return "100-1000"
	default:
		return "1000+"
	}
}
