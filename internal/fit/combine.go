package fit

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"cmodel/internal/image"
	"cmodel/internal/model"
	"cmodel/internal/psf"
	"cmodel/internal/shape"
)

// CombineResult is the final blended photometry.
type CombineResult struct {
	Flux      float64
	FluxErr   float64
	FracDev   float64
	Objective float64
	OK        bool
}

// LinearCombiner holds the exp and dev ellipses fixed and solves for
// their amplitudes jointly. A negative fitted amplitude is clamped to
// zero and the other amplitude re-solved alone, which keeps FracDev
// inside [0,1].
type LinearCombiner struct {
	expCfg StageConfig
	devCfg StageConfig
}

func NewLinearCombiner(expCfg, devCfg StageConfig) *LinearCombiner {
	return &LinearCombiner{expCfg: expCfg, devCfg: devCfg}
}

// Combine solves the two-amplitude least-squares problem over the
// final region.
func (c *LinearCombiner) Combine(exp *image.Exposure, region *image.Footprint, psfModel psf.MultiGaussian, center shape.Point, expEllipse, devEllipse shape.Quadrupole, units UnitSystem) CombineResult {
	expModel, err := model.New(c.expCfg.ProfileName, c.expCfg.NComponents, c.expCfg.MaxRadius, psfModel)
	if err != nil {
		return CombineResult{}
	}
	devModel, err := model.New(c.devCfg.ProfileName, c.devCfg.NComponents, c.devCfg.MaxRadius, psfModel)
	if err != nil {
		return CombineResult{}
	}

	data := gatherPixels(exp, region, units)
	n := len(data.pixels)
	if n == 0 {
		return CombineResult{}
	}
	uE := make([]float64, n)
	uD := make([]float64, n)
	expModel.EvaluateBasis(data.pixels, center, expEllipse, uE)
	devModel.EvaluateBasis(data.pixels, center, devEllipse, uD)

	// weighted normal equations for the two amplitudes
	var fEE, fED, fDD, bE, bD float64
	for i := 0; i < n; i++ {
		w := data.weights[i]
		fEE += w * uE[i] * uE[i]
		fED += w * uE[i] * uD[i]
		fDD += w * uD[i] * uD[i]
		bE += w * uE[i] * data.values[i]
		bD += w * uD[i] * data.values[i]
	}

	normal := mat.NewSymDense(2, []float64{fEE, fED, fED, fDD})
	rhs := mat.NewVecDense(2, []float64{bE, bD})
	var chol mat.Cholesky
	if !chol.Factorize(normal) {
		return CombineResult{}
	}
	var amps mat.VecDense
	if err := chol.SolveVecTo(&amps, rhs); err != nil {
		return CombineResult{}
	}
	aE, aD := amps.AtVec(0), amps.AtVec(1)

	if aE < 0 || aD < 0 {
		// clamp the negative amplitude and re-solve the survivor
		if aE < 0 && aD < 0 {
			aE, aD = 0, 0
		} else if aE < 0 {
			aE = 0
			if fDD > 0 {
				aD = math.Max(bD/fDD, 0)
			}
		} else {
			aD = 0
			if fEE > 0 {
				aE = math.Max(bE/fEE, 0)
			}
		}
	}

	total := aE + aD
	res := CombineResult{OK: true}
	res.Flux = total * units.FluxScale
	if total > 0 {
		res.FracDev = aD / total
	}

	// variance of the total flux is 1' F^-1 1 over the active
	// amplitudes
	var variance float64
	switch {
	case aE > 0 && aD > 0:
		var cov mat.SymDense
		if err := chol.InverseTo(&cov); err == nil {
			variance = cov.At(0, 0) + 2*cov.At(0, 1) + cov.At(1, 1)
		}
	case aD > 0:
		variance = 1 / fDD
	case aE > 0:
		variance = 1 / fEE
	default:
		if fEE+2*fED+fDD > 0 {
			variance = 1 / (fEE + 2*fED + fDD)
		}
	}
	if variance > 0 {
		res.FluxErr = math.Sqrt(variance) * units.FluxScale
	}

	var chi2 float64
	for i := 0; i < n; i++ {
		r := data.values[i] - aE*uE[i] - aD*uD[i]
		chi2 += data.weights[i] * r * r
	}
	res.Objective = 0.5 * chi2
	return res
}
