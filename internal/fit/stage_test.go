package fit

import (
	"math"
	"testing"

	"cmodel/internal/image"
	"cmodel/internal/shape"
)

func TestStageRecoversNoiselessFlux(t *testing.T) {
	const flux = 1000.0
	truth := shape.Circle(2)
	in := renderScene(t, "lux", flux, truth)
	cfg := testConfig()

	region, err := NewRegionSelector(cfg.Region).SelectInitial(in.Exposure.Mask, in.Footprint, image.EmptyBox())
	if err != nil {
		t.Fatalf("region: %v", err)
	}
	units := NewUnitSystem(in.Exposure, in.Footprint, in.ApproxFlux)

	res := NewStageRunner(cfg.Exp, "").Run(in.Exposure, region, in.PSF, in.Center, shape.Circle(1.5), units)
	if res.Failed() {
		t.Fatalf("stage failed, flags = %#x", res.Flags)
	}
	if rel := math.Abs(res.Flux-flux) / flux; rel > 0.01 {
		t.Fatalf("flux = %g, want %g within 1%%", res.Flux, flux)
	}
	if res.FluxErr <= 0 {
		t.Fatalf("flux error = %g, want positive", res.FluxErr)
	}
	if !res.Ellipse.Valid() {
		t.Fatalf("invalid best-fit ellipse %+v", res.Ellipse)
	}
}

func TestStageForcedIsAmplitudeOnly(t *testing.T) {
	const flux = 500.0
	truth := shape.Quadrupole{Ixx: 5, Iyy: 3, Ixy: 1}
	in := renderScene(t, "lux", flux, truth)
	cfg := testConfig()

	region, err := NewRegionSelector(cfg.Region).SelectInitial(in.Exposure.Mask, in.Footprint, image.EmptyBox())
	if err != nil {
		t.Fatalf("region: %v", err)
	}
	units := NewUnitSystem(in.Exposure, in.Footprint, in.ApproxFlux)

	res := NewStageRunner(cfg.Exp, "").RunForced(in.Exposure, region, in.PSF, in.Center, truth, units)
	if res.Failed() {
		t.Fatalf("forced stage failed, flags = %#x", res.Flags)
	}
	if res.Ellipse != truth {
		t.Fatalf("forced stage changed the ellipse: %+v", res.Ellipse)
	}
	// at the true ellipse the linear solve is exact
	if rel := math.Abs(res.Flux-flux) / flux; rel > 1e-6 {
		t.Fatalf("flux = %g, want %g", res.Flux, flux)
	}
	if res.Iterations != 0 {
		t.Fatalf("forced stage ran the optimizer: %d iterations", res.Iterations)
	}
}

func TestStageNumericErrorImpliesFailure(t *testing.T) {
	in := renderScene(t, "lux", 100, shape.Circle(2))
	in.Exposure.Image.Set(32, 32, math.NaN())
	cfg := testConfig()

	region, err := NewRegionSelector(cfg.Region).SelectInitial(in.Exposure.Mask, in.Footprint, image.EmptyBox())
	if err != nil {
		t.Fatalf("region: %v", err)
	}
	units := UnitSystem{FluxScale: 100}

	res := NewStageRunner(cfg.Exp, "").Run(in.Exposure, region, in.PSF, in.Center, shape.Circle(2), units)
	if res.Flags&StageFlagNumericError == 0 {
		t.Fatalf("numeric error flag not set, flags = %#x", res.Flags)
	}
	if !res.Failed() {
		t.Fatalf("numeric error did not imply general failure")
	}
	if res.Usable() {
		t.Fatalf("numeric-error result reported usable")
	}
}

func TestStageRecordsHistoryWhenEnabled(t *testing.T) {
	in := renderScene(t, "lux", 200, shape.Circle(2))
	cfg := testConfig()
	cfg.Exp.DoRecordHistory = true

	region, err := NewRegionSelector(cfg.Region).SelectInitial(in.Exposure.Mask, in.Footprint, image.EmptyBox())
	if err != nil {
		t.Fatalf("region: %v", err)
	}
	units := NewUnitSystem(in.Exposure, in.Footprint, in.ApproxFlux)

	res := NewStageRunner(cfg.Exp, "").Run(in.Exposure, region, in.PSF, in.Center, shape.Circle(1), units)
	if len(res.History) == 0 {
		t.Fatalf("no optimizer history recorded")
	}

	cfg.Exp.DoRecordHistory = false
	res = NewStageRunner(cfg.Exp, "").Run(in.Exposure, region, in.PSF, in.Center, shape.Circle(1), units)
	if len(res.History) != 0 {
		t.Fatalf("history recorded while disabled")
	}
}
