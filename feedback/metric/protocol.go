package metric

import (
	"fmt"
	"math"
	"strings"

	"github.com/cwbudde/algo-neurofeedback/dsp/spectrum"
)

// Protocol is a band ratio used as the control signal.
type Protocol struct {
	Name        string
	Numerator   int
	Denominator int
}

// Neurofeedback protocols.
var (
	BetaTheta  = Protocol{Name: "beta/theta", Numerator: spectrum.Beta, Denominator: spectrum.Theta}
	AlphaTheta = Protocol{Name: "alpha/theta", Numerator: spectrum.Alpha, Denominator: spectrum.Theta}
	ThetaAlpha = Protocol{Name: "theta/alpha", Numerator: spectrum.Theta, Denominator: spectrum.Alpha}
	AlphaBeta  = Protocol{Name: "alpha/beta", Numerator: spectrum.Alpha, Denominator: spectrum.Beta}
)

// Protocols lists the presets accepted by [ParseProtocol].
var Protocols = []Protocol{BetaTheta, AlphaTheta, ThetaAlpha, AlphaBeta}

// DefaultRatioFloor is the smallest denominator power treated as valid.
const DefaultRatioFloor = 1e-12

// ParseProtocol resolves a preset by name. Both "beta/theta" and
// "beta-theta" are accepted, case-insensitively.
func ParseProtocol(name string) (Protocol, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "/")
	for _, p := range Protocols {
		if p.Name == key {
			return p, nil
		}
	}
	return Protocol{}, fmt.Errorf("%w: unknown protocol %q", ErrInvalidParams, name)
}

// Validate checks that both band indices are in range and distinct.
func (p Protocol) Validate() error {
	if p.Numerator < 0 || p.Numerator >= spectrum.NumBands ||
		p.Denominator < 0 || p.Denominator >= spectrum.NumBands {
		return fmt.Errorf("%w: protocol %q band index out of range", ErrInvalidParams, p.Name)
	}

	if p.Numerator == p.Denominator {
		return fmt.Errorf("%w: protocol %q divides a band by itself", ErrInvalidParams, p.Name)
	}

	return nil
}

func (p Protocol) String() string {
	if p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("band%d/band%d", p.Numerator, p.Denominator)
}

// Ratio returns powers[Numerator]/powers[Denominator]. ok is false when the
// denominator is below floor or the result is not finite; value is then 0.
func (p Protocol) Ratio(powers spectrum.Powers, floor float64) (value float64, ok bool) {
	den := powers[p.Denominator]
	if !(den >= floor) || den <= 0 {
		return 0, false
	}

	value = powers[p.Numerator] / den
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}

	return value, true
}
