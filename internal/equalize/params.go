package equalize

import "fmt"

// Modality selects the calibration being equalized.
type Modality int

const (
	Disc  Modality = iota // Discriminator threshold calibration
	Ifeed                 // Feedback current (gain) calibration
)

func (m Modality) String() string {
	switch m {
	case Disc:
		return "disc"
	case Ifeed:
		return "ifeed"
	default:
		return fmt.Sprintf("Modality(%d)", int(m))
	}
}

// ParseModality accepts "disc" or "ifeed".
func ParseModality(s string) (Modality, error) {
	switch s {
	case "disc", "DISC":
		return Disc, nil
	case "ifeed", "IFEED":
		return Ifeed, nil
	}
	return 0, fmt.Errorf("unknown modality %q", s)
}

// farSide is the half of the setting range flagged as atypical.
func (m Modality) farSide() FarSide {
	if m == Ifeed {
		return LowerHalf
	}
	return UpperHalf
}

// Params are the caller-supplied scalars of one equalization run.
type Params struct {
	// Mean count a pixel must exceed to be considered responding.
	MinThreshold float64 `json:"min_threshold" yaml:"min_threshold"`

	// Percentiles trimmed from the top and bottom when forming a chip
	// optimum; for IFEED also the relative band (in percent) around the
	// consensus gain a pixel must reach.
	PctHigh float64 `json:"pct_high" yaml:"pct_high"`
	PctLow  float64 `json:"pct_low" yaml:"pct_low"`

	// Standard deviations a DISC pixel mean must clear above MinThreshold.
	// Ignored for IFEED.
	FactorStdNoise float64 `json:"factor_std_noise,omitempty" yaml:"factor_std_noise,omitempty"`
}

// DefaultDiscParams returns parameters tuned for threshold scans.
func DefaultDiscParams() Params {
	return Params{
		MinThreshold:   5,
		PctHigh:        10,
		PctLow:         10,
		FactorStdNoise: 3, // three sigma above the floor
	}
}

// DefaultIfeedParams returns parameters tuned for gain scans.
func DefaultIfeedParams() Params {
	return Params{
		MinThreshold: 5,
		PctHigh:      20,
		PctLow:       20,
	}
}

// DefaultParams returns the defaults for m.
func DefaultParams(m Modality) Params {
	if m == Ifeed {
		return DefaultIfeedParams()
	}
	return DefaultDiscParams()
}

// WithThreshold returns a copy of p with a new minimum count.
func (p Params) WithThreshold(minThreshold float64) Params {
	p.MinThreshold = minThreshold
	return p
}

// WithPercentiles returns a copy of p with new percentile bounds.
func (p Params) WithPercentiles(high, low float64) Params {
	p.PctHigh = high
	p.PctLow = low
	return p
}

// WithNoiseFactor returns a copy of p with a new noise multiplier.
func (p Params) WithNoiseFactor(k float64) Params {
	p.FactorStdNoise = k
	return p
}

// Validate checks that the parameters are usable.
func (p Params) Validate() error {
	if p.MinThreshold < 0 {
		return fmt.Errorf("min threshold must not be negative, got %g", p.MinThreshold)
	}
	if p.PctHigh < 0 || p.PctHigh > 100 || p.PctLow < 0 || p.PctLow > 100 {
		return fmt.Errorf("percentiles must lie in [0, 100], got high=%g low=%g", p.PctHigh, p.PctLow)
	}
	if p.FactorStdNoise < 0 {
		return fmt.Errorf("noise factor must not be negative, got %g", p.FactorStdNoise)
	}
	return nil
}
