// Package spc implements the statistical process control engine used to
// evaluate laboratory control measurements: the sigma-zone classifier,
// the error-budget aggregator and the Westgard multirule evaluator.
// Everything in this package is pure; nothing here logs, stores or sends.
package spc

import (
	"fmt"
)

// SigmaZone is one of the six named deviation zones a control measurement
// can fall into. The zero value is not a valid zone.
type SigmaZone int

// Sigma zones, ordered by side then magnitude.
const (
	PlusOneSD SigmaZone = iota + 1
	PlusTwoSD
	PlusThreeSD
	MinusOneSD
	MinusTwoSD
	MinusThreeSD
)

type zoneInfo struct {
	code        string
	description string
	magnitude   int
	positive    bool
}

var zoneTable = [...]zoneInfo{
	PlusOneSD:    {"+1s", "Result within 2 standard deviations above the mean", 1, true},
	PlusTwoSD:    {"+2s", "Result between 2 and 3 standard deviations above the mean", 2, true},
	PlusThreeSD:  {"+3s", "Result 3 or more standard deviations above the mean", 3, true},
	MinusOneSD:   {"-1s", "Result within 2 standard deviations below the mean", 1, false},
	MinusTwoSD:   {"-2s", "Result between 2 and 3 standard deviations below the mean", 2, false},
	MinusThreeSD: {"-3s", "Result 3 or more standard deviations below the mean", 3, false},
}

// Zones returns all six zones in declaration order.
func Zones() []SigmaZone {
	return []SigmaZone{PlusOneSD, PlusTwoSD, PlusThreeSD, MinusOneSD, MinusTwoSD, MinusThreeSD}
}

// Valid reports whether z is one of the six declared zones.
func (z SigmaZone) Valid() bool {
	return z >= PlusOneSD && z <= MinusThreeSD
}

// Code returns the canonical rule code, e.g. "+2s".
func (z SigmaZone) Code() string {
	if !z.Valid() {
		return ""
	}
	return zoneTable[z].code
}

// Description returns the fixed human-readable text stored with a measurement.
func (z SigmaZone) Description() string {
	if !z.Valid() {
		return ""
	}
	return zoneTable[z].description
}

// Magnitude returns 1, 2 or 3.
func (z SigmaZone) Magnitude() int {
	if !z.Valid() {
		return 0
	}
	return zoneTable[z].magnitude
}

// Positive reports whether the zone lies above the mean.
func (z SigmaZone) Positive() bool {
	return z.Valid() && zoneTable[z].positive
}

// Violation reports the default violation flag: true for the +-2s and
// +-3s zones. A Classifier may be configured with a different set.
func (z SigmaZone) Violation() bool {
	return z.Magnitude() >= 2
}

func (z SigmaZone) String() string {
	if !z.Valid() {
		return fmt.Sprintf("SigmaZone(%d)", int(z))
	}
	return z.Code()
}

// MarshalText encodes the zone as its rule code.
func (z SigmaZone) MarshalText() ([]byte, error) {
	if !z.Valid() {
		return nil, fmt.Errorf("marshal sigma zone: invalid zone %d", int(z))
	}
	return []byte(z.Code()), nil
}

// UnmarshalText decodes a rule code produced by MarshalText.
func (z *SigmaZone) UnmarshalText(text []byte) error {
	parsed, err := ParseZone(string(text))
	if err != nil {
		return err
	}
	*z = parsed
	return nil
}

// ParseZone maps a rule code such as "-3s" back to its zone.
func ParseZone(code string) (SigmaZone, error) {
	for _, z := range Zones() {
		if zoneTable[z].code == code {
			return z, nil
		}
	}
	return 0, fmt.Errorf("unknown sigma rule code %q", code)
}

// zoneFor buckets a signed deviation. Bounds are checked from the outside
// in so a value sitting exactly on 1, 2 or 3 lands in the outer zone.
// Zero deviation is treated as negative.
func zoneFor(deviation float64) SigmaZone {
	positive := deviation > 0
	abs := deviation
	if !positive {
		abs = -deviation
	}

	var magnitude int
	switch {
	case abs >= 3:
		magnitude = 3
	case abs >= 2:
		magnitude = 2
	default:
		// |d| < 1 has no zone of its own and shares the +-1s code.
		magnitude = 1
	}

	if positive {
		return PlusOneSD + SigmaZone(magnitude-1)
	}
	return MinusOneSD + SigmaZone(magnitude-1)
}
