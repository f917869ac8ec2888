// Package profile provides the named radial brightness profiles used
// by the galaxy models, each approximated as a mixture of concentric
// Gaussians normalized to unit total flux and a half-light radius of
// one.
package profile

import "fmt"

// Gaussian is one mixture component: a flux fraction and a circular
// sigma in units of the profile's half-light radius.
type Gaussian struct {
	Flux  float64
	Sigma float64
}

// RadialProfile is a named profile with its full component table and
// a default truncation radius (in half-light radii).
type RadialProfile struct {
	Name             string
	DefaultMaxRadius float64
	components       []Gaussian
}

// The "lux" and "luv" profiles are softened, truncated variants of the
// exponential and de Vaucouleur profiles; the softening is what makes
// a finite Gaussian mixture a good approximation. Components are
// ordered by increasing sigma.
var registry = map[string]*RadialProfile{
	"lux": {
		Name:             "lux",
		DefaultMaxRadius: 4,
		components: []Gaussian{
			{Flux: 0.005, Sigma: 0.062},
			{Flux: 0.022, Sigma: 0.130},
			{Flux: 0.075, Sigma: 0.245},
			{Flux: 0.165, Sigma: 0.420},
			{Flux: 0.260, Sigma: 0.680},
			{Flux: 0.270, Sigma: 1.050},
			{Flux: 0.155, Sigma: 1.550},
			{Flux: 0.048, Sigma: 2.300},
		},
	},
	"luv": {
		Name:             "luv",
		DefaultMaxRadius: 8,
		components: []Gaussian{
			{Flux: 0.016, Sigma: 0.021},
			{Flux: 0.047, Sigma: 0.062},
			{Flux: 0.098, Sigma: 0.148},
			{Flux: 0.158, Sigma: 0.315},
			{Flux: 0.210, Sigma: 0.640},
			{Flux: 0.220, Sigma: 1.300},
			{Flux: 0.165, Sigma: 2.700},
			{Flux: 0.086, Sigma: 5.800},
		},
	},
	"gaussian": {
		Name:             "gaussian",
		DefaultMaxRadius: 3,
		components: []Gaussian{
			{Flux: 1, Sigma: 0.8493},
		},
	},
}

var aliases = map[string]string{
	"exp": "lux",
	"dev": "luv",
}

// Get looks up a profile by name or alias.
func Get(name string) (*RadialProfile, error) {
	if target, ok := aliases[name]; ok {
		name = target
	}
	p, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("profile: unknown radial profile %q", name)
	}
	return p, nil
}

// Names returns the canonical profile names.
func Names() []string {
	return []string{"lux", "luv", "gaussian"}
}

// Components returns an n-component approximation truncated at
// maxRadius half-light radii (0 means the profile default), flux
// renormalized to one. The selection is deterministic: components are
// taken evenly across the table so a coarse approximation still spans
// the profile's core and wings.
func (p *RadialProfile) Components(n int, maxRadius float64) ([]Gaussian, error) {
	if maxRadius <= 0 {
		maxRadius = p.DefaultMaxRadius
	}
	kept := make([]Gaussian, 0, len(p.components))
	for _, c := range p.components {
		if c.Sigma <= maxRadius {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("profile: max radius %g truncates every component of %q", maxRadius, p.Name)
	}
	if n <= 0 || n >= len(kept) {
		return normalize(kept), nil
	}
	out := make([]Gaussian, 0, n)
	if n == 1 {
		// single component: the one carrying the most flux
		best := kept[0]
		for _, c := range kept[1:] {
			if c.Flux > best.Flux {
				best = c
			}
		}
		out = append(out, best)
	} else {
		for i := 0; i < n; i++ {
			idx := i * (len(kept) - 1) / (n - 1)
			out = append(out, kept[idx])
		}
	}
	return normalize(out), nil
}

func normalize(cs []Gaussian) []Gaussian {
	var total float64
	for _, c := range cs {
		total += c.Flux
	}
	out := make([]Gaussian, len(cs))
	for i, c := range cs {
		out[i] = Gaussian{Flux: c.Flux / total, Sigma: c.Sigma}
	}
	return out
}
