// Package prior defines Bayesian priors over the nonlinear ellipse
// parameters. Priors are evaluated in the fit's local unit system, so
// one prior serves targets of any brightness or distance.
package prior

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Prior scores a nonlinear parameter vector. Larger is more probable;
// the objective subtracts this from the weighted chi-squared term.
type Prior interface {
	// LogDensity returns the unnormalized log density at the given
	// log-Cholesky ellipse parameters.
	LogDensity(params []float64) float64
}

// Flat is the no-prior case: log density identically zero.
type Flat struct{}

func (Flat) LogDensity([]float64) float64 { return 0 }

// SoftenedLinearConfig parametrizes a SoftenedLinear prior.
type SoftenedLinearConfig struct {
	// EllipticitySigma is the Gaussian width applied to the two
	// ellipticity-like parameters.
	EllipticitySigma float64 `json:"ellipticity_sigma"`
	// LogRadiusMin/Max bound the preferred log-radius range; outside
	// it the density falls off quadratically.
	LogRadiusMin float64 `json:"log_radius_min"`
	LogRadiusMax float64 `json:"log_radius_max"`
	// LogRadiusSoftening is the width of the quadratic falloff
	// outside the preferred range.
	LogRadiusSoftening float64 `json:"log_radius_softening"`
}

// DefaultSoftenedLinearConfig returns a weakly informative prior:
// mild preference for round shapes, flat over roughly 0.6 to 55
// pixels of half-light radius.
func DefaultSoftenedLinearConfig() SoftenedLinearConfig {
	return SoftenedLinearConfig{
		EllipticitySigma:   0.3,
		LogRadiusMin:       -0.5,
		LogRadiusMax:       4,
		LogRadiusSoftening: 0.5,
	}
}

// Validate checks for usable widths.
func (c SoftenedLinearConfig) Validate() error {
	if c.EllipticitySigma <= 0 {
		return fmt.Errorf("prior: ellipticity_sigma must be positive, got %g", c.EllipticitySigma)
	}
	if c.LogRadiusSoftening <= 0 {
		return fmt.Errorf("prior: log_radius_softening must be positive, got %g", c.LogRadiusSoftening)
	}
	if c.LogRadiusMax < c.LogRadiusMin {
		return fmt.Errorf("prior: log_radius_max (%g) below log_radius_min (%g)", c.LogRadiusMax, c.LogRadiusMin)
	}
	return nil
}

// SoftenedLinear is flat over a preferred radius range with smooth
// quadratic shoulders, and Gaussian in ellipticity. It regularizes
// fits without forcing them: well-constrained objects barely feel it,
// faint ones are pulled toward round, moderate shapes.
type SoftenedLinear struct {
	cfg SoftenedLinearConfig
}

// NewSoftenedLinear builds the prior from its config.
func NewSoftenedLinear(cfg SoftenedLinearConfig) (*SoftenedLinear, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &SoftenedLinear{cfg: cfg}, nil
}

func (p *SoftenedLinear) LogDensity(params []float64) float64 {
	lnA, lnB, offdiag := params[0], params[1], params[2]
	s := p.cfg.EllipticitySigma
	// the off-diagonal term and the axis log-ratio both measure
	// departure from a round shape
	logDens := -(offdiag*offdiag)/(2*s*s) - ((lnA-lnB)*(lnA-lnB))/(2*s*s)
	lnR := 0.5 * (lnA + lnB)
	if lnR < p.cfg.LogRadiusMin {
		d := (p.cfg.LogRadiusMin - lnR) / p.cfg.LogRadiusSoftening
		logDens -= 0.5 * d * d
	} else if lnR > p.cfg.LogRadiusMax {
		d := (lnR - p.cfg.LogRadiusMax) / p.cfg.LogRadiusSoftening
		logDens -= 0.5 * d * d
	}
	return logDens
}

// Load reads a named SoftenedLinear prior from dir/<name>.json.
func Load(dir, name string) (*SoftenedLinear, error) {
	path := filepath.Join(dir, name+".json")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("prior: load %q: %w", name, err)
	}
	defer f.Close()

	var cfg SoftenedLinearConfig
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("prior: decode %q: %w", name, err)
	}
	return NewSoftenedLinear(cfg)
}

// Save writes a prior config to dir/<name>.json, creating dir if
// needed. Used by tooling that ships prior libraries.
func Save(dir, name string, cfg SoftenedLinearConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name+".json"), data, 0o644)
}
