// Package fit implements the staged galaxy model fit: a coarse
// initial stage, independent exponential and de Vaucouleur stages
// warm-started from it, and a constrained linear blend of the two.
package fit

import (
	"fmt"

	"cmodel/internal/prior"
	"cmodel/internal/profile"
)

// RegionConfig controls how the pixel region for a fit is selected
// from a detection footprint.
type RegionConfig struct {
	// Grow is the margin in pixels the footprint is dilated by.
	Grow int `json:"grow"`
	// NInitialRadii scales the initial-fit ellipse when extending
	// the final region.
	NInitialRadii float64 `json:"n_initial_radii"`
	// MaxArea caps the pixel count of a region.
	MaxArea int `json:"max_area"`
	// MaxBadPixelFraction caps the fraction of region pixels lost to
	// bad mask planes.
	MaxBadPixelFraction float64 `json:"max_bad_pixel_fraction"`
	// BadMaskPlanes lists mask planes whose pixels are excluded.
	BadMaskPlanes []string `json:"bad_mask_planes"`
	// IncludePSFBBox unions the PSF model's bounding box into the
	// region.
	IncludePSFBBox bool `json:"include_psf_bbox"`
}

// DefaultRegionConfig returns the stock region selection settings.
func DefaultRegionConfig() RegionConfig {
	return RegionConfig{
		Grow:                5,
		NInitialRadii:       3,
		MaxArea:             10000,
		MaxBadPixelFraction: 0.1,
		BadMaskPlanes:       []string{"EDGE", "SAT"},
		IncludePSFBBox:      false,
	}
}

// PriorSource selects how a stage's shape prior is obtained.
type PriorSource string

const (
	PriorSourceNone   PriorSource = "none"
	PriorSourceConfig PriorSource = "config"
	PriorSourceFile   PriorSource = "file"
)

// OptimizerConfig holds the per-stage optimizer tolerances.
type OptimizerConfig struct {
	GradientThreshold       float64 `json:"gradient_threshold"`
	MinTrustRadiusThreshold float64 `json:"min_trust_radius_threshold"`
	MaxIterations           int     `json:"max_iterations"`
}

// StageConfig configures one nonlinear fit stage.
type StageConfig struct {
	ProfileName     string                     `json:"profile_name"`
	PriorSource     PriorSource                `json:"prior_source"`
	PriorName       string                     `json:"prior_name"`
	Prior           prior.SoftenedLinearConfig `json:"prior"`
	NComponents     int                        `json:"n_components"`
	MaxRadius       float64                    `json:"max_radius"`
	Optimizer       OptimizerConfig            `json:"optimizer"`
	DoRecordHistory bool                       `json:"do_record_history"`
	DoRecordTime    bool                       `json:"do_record_time"`
}

func defaultStageConfig(profileName string) StageConfig {
	return StageConfig{
		ProfileName: profileName,
		PriorSource: PriorSourceConfig,
		PriorName:   "",
		Prior:       prior.DefaultSoftenedLinearConfig(),
		NComponents: 8,
		MaxRadius:   0,
		Optimizer: OptimizerConfig{
			GradientThreshold:       1e-4,
			MinTrustRadiusThreshold: 1e-5,
			MaxIterations:           100,
		},
		DoRecordHistory: true,
		DoRecordTime:    true,
	}
}

// Config configures the full staged fit.
type Config struct {
	Region  RegionConfig `json:"region"`
	Initial StageConfig  `json:"initial"`
	Exp     StageConfig  `json:"exp"`
	Dev     StageConfig  `json:"dev"`
	// MinInitialRadius floors the seed ellipse radius in pixels.
	MinInitialRadius float64 `json:"min_initial_radius"`
	// PriorDir is where file-sourced priors are loaded from.
	PriorDir string `json:"prior_dir"`
}

// DefaultConfig returns the stock fit configuration. The initial
// stage is deliberately cheap: fewer components and loose tolerances,
// since its only job is to seed the exp and dev stages.
func DefaultConfig() Config {
	initial := defaultStageConfig("lux")
	initial.NComponents = 3
	initial.Optimizer.GradientThreshold = 1e-2
	initial.Optimizer.MinTrustRadiusThreshold = 1e-2
	return Config{
		Region:           DefaultRegionConfig(),
		Initial:          initial,
		Exp:              defaultStageConfig("lux"),
		Dev:              defaultStageConfig("luv"),
		MinInitialRadius: 0.1,
	}
}

// Validate checks structural constraints before any fitting happens.
func (c Config) Validate() error {
	if c.Region.Grow < 0 {
		return fmt.Errorf("region: grow must be non-negative, got %d", c.Region.Grow)
	}
	if c.Region.NInitialRadii <= 0 {
		return fmt.Errorf("region: n_initial_radii must be positive, got %g", c.Region.NInitialRadii)
	}
	if c.Region.MaxArea <= 0 {
		return fmt.Errorf("region: max_area must be positive, got %d", c.Region.MaxArea)
	}
	if c.Region.MaxBadPixelFraction < 0 || c.Region.MaxBadPixelFraction > 1 {
		return fmt.Errorf("region: max_bad_pixel_fraction must be in [0,1], got %g", c.Region.MaxBadPixelFraction)
	}
	if c.MinInitialRadius <= 0 {
		return fmt.Errorf("min_initial_radius must be positive, got %g", c.MinInitialRadius)
	}
	for _, s := range []struct {
		name string
		cfg  StageConfig
	}{{"initial", c.Initial}, {"exp", c.Exp}, {"dev", c.Dev}} {
		if err := s.cfg.validate(); err != nil {
			return fmt.Errorf("%s stage: %w", s.name, err)
		}
	}
	// The initial stage must never be more expensive than the stages
	// it seeds.
	if c.Initial.NComponents > c.Exp.NComponents || c.Initial.NComponents > c.Dev.NComponents {
		return fmt.Errorf("initial stage has %d components, exp/dev have %d/%d; initial may not exceed either",
			c.Initial.NComponents, c.Exp.NComponents, c.Dev.NComponents)
	}
	return nil
}

func (s StageConfig) validate() error {
	if _, err := profile.Get(s.ProfileName); err != nil {
		return err
	}
	if s.NComponents < 1 {
		return fmt.Errorf("n_components must be at least 1, got %d", s.NComponents)
	}
	if s.MaxRadius < 0 {
		return fmt.Errorf("max_radius must be non-negative, got %g", s.MaxRadius)
	}
	switch s.PriorSource {
	case PriorSourceNone, PriorSourceFile:
	case PriorSourceConfig:
		if err := s.Prior.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown prior source %q", s.PriorSource)
	}
	if s.PriorSource == PriorSourceFile && s.PriorName == "" {
		return fmt.Errorf("prior source %q requires a prior name", s.PriorSource)
	}
	if s.Optimizer.MaxIterations < 1 {
		return fmt.Errorf("optimizer: max_iterations must be at least 1, got %d", s.Optimizer.MaxIterations)
	}
	return nil
}
