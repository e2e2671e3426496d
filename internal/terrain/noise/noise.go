package noise

import (
	"fmt"
	"strings"

	"github.com/aquilax/go-perlin"
	opensimplex "github.com/ojrac/opensimplex-go"
)

// Field is a deterministic scalar function of a 2D world coordinate.
// Implementations must be safe for concurrent use.
type Field interface {
	Sample(x, y float64) float64
}

const (
	KindSimplex = "simplex"
	KindPerlin  = "perlin"
)

type Params struct {
	Kind       string
	Seed       int64
	Frequency  float64
	Octaves    int
	Lacunarity float64
	Gain       float64
}

func DefaultParams() Params {
	return Params{
		Kind:       KindSimplex,
		Seed:       1337,
		Frequency:  0.0025,
		Octaves:    5,
		Lacunarity: 2.0,
		Gain:       0.5,
	}
}

// New builds the field named by p.Kind.
func New(p Params) (Field, error) {
	if p.Frequency <= 0 {
		return nil, fmt.Errorf("noise frequency must be > 0, got %v", p.Frequency)
	}
	if p.Octaves <= 0 {
		p.Octaves = 1
	}
	if p.Lacunarity <= 0 {
		p.Lacunarity = 2
	}
	if p.Gain <= 0 {
		p.Gain = 0.5
	}
	switch strings.ToLower(strings.TrimSpace(p.Kind)) {
	case "", KindSimplex:
		return newSimplexFBM(p), nil
	case KindPerlin:
		return newPerlin(p), nil
	default:
		return nil, fmt.Errorf("unknown noise kind %q", p.Kind)
	}
}

// simplexFBM sums octaves of OpenSimplex noise, normalised to roughly [-1, 1].
type simplexFBM struct {
	src        opensimplex.Noise
	frequency  float64
	octaves    int
	lacunarity float64
	gain       float64
	norm       float64
}

func newSimplexFBM(p Params) *simplexFBM {
	norm := 0.0
	amp := 1.0
	for i := 0; i < p.Octaves; i++ {
		norm += amp
		amp *= p.Gain
	}
	return &simplexFBM{
		src:        opensimplex.New(p.Seed),
		frequency:  p.Frequency,
		octaves:    p.Octaves,
		lacunarity: p.Lacunarity,
		gain:       p.Gain,
		norm:       norm,
	}
}

func (f *simplexFBM) Sample(x, y float64) float64 {
	total := 0.0
	amp := 1.0
	freq := f.frequency
	for i := 0; i < f.octaves; i++ {
		total += f.src.Eval2(x*freq, y*freq) * amp
		amp *= f.gain
		freq *= f.lacunarity
	}
	return total / f.norm
}

// perlinField wraps go-perlin, which does its own octave summation:
// alpha divides the amplitude and beta multiplies the frequency per octave.
type perlinField struct {
	src       *perlin.Perlin
	frequency float64
}

func newPerlin(p Params) *perlinField {
	return &perlinField{
		src:       perlin.NewPerlin(1/p.Gain, p.Lacunarity, int32(p.Octaves), p.Seed),
		frequency: p.Frequency,
	}
}

func (f *perlinField) Sample(x, y float64) float64 {
	return f.src.Noise2D(x*f.frequency, y*f.frequency)
}
