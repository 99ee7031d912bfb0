// Package synthetic produces schema-valid placeholder results for when the
// remote provider is absent or a field has no authoritative signal.
package synthetic

import (
	"math/rand/v2"
	"sync"
	"time"

	"go-face-analyzer/pkg/models"
)

const (
	minSymmetry   = 60
	maxSymmetry   = 100
	minSimilarity = 60
	maxSimilarity = 90
)

// Celebrities is the pool used for synthesized resemblance blocks.
var Celebrities = []string{
	"Ryan Gosling",
	"Zendaya",
	"Idris Elba",
	"Emma Stone",
	"Dev Patel",
	"Lupita Nyong'o",
	"Keanu Reeves",
	"Gemma Chan",
}

// Generator draws every field independently and uniformly from its value set.
type Generator struct {
	mu              sync.Mutex
	rng             *rand.Rand
	withResemblance bool
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed makes the generator deterministic.
func WithSeed(seed uint64) Option {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithResemblance makes Generate attach a synthesized resemblance block.
func WithResemblance() Option {
	return func(g *Generator) {
		g.withResemblance = true
	}
}

func New(opts ...Option) *Generator {
	now := uint64(time.Now().UnixNano())
	g := &Generator{rng: rand.New(rand.NewPCG(now, now>>17))}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns a complete result. It never fails.
func (g *Generator) Generate() models.AnalysisResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	result := models.AnalysisResult{
		SkinType:         pick(g.rng, models.SkinTypes),
		FaceShape:        pick(g.rng, models.FaceShapes),
		SkinTone:         pick(g.rng, models.SkinTones),
		FacialSymmetry:   between(g.rng, minSymmetry, maxSymmetry),
		DominantEmotion:  pick(g.rng, models.Emotions),
		FacialAttributes: g.attributesLocked(),
	}
	if g.withResemblance {
		r := g.resemblanceLocked()
		result.FacialResemblance = &r
	}
	return result
}

// FaceShape draws a face shape.
func (g *Generator) FaceShape() models.FaceShape {
	g.mu.Lock()
	defer g.mu.Unlock()
	return pick(g.rng, models.FaceShapes)
}

// Attributes draws the five facial attributes.
func (g *Generator) Attributes() models.FacialAttributes {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attributesLocked()
}

// Symmetry draws a symmetry score in [60,100].
func (g *Generator) Symmetry() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return between(g.rng, minSymmetry, maxSymmetry)
}

func (g *Generator) attributesLocked() models.FacialAttributes {
	return models.FacialAttributes{
		EyeSize:          pick(g.rng, models.EyeSizes),
		NoseShape:        pick(g.rng, models.NoseShapes),
		LipFullness:      pick(g.rng, models.LipFullnesses),
		EyebrowThickness: pick(g.rng, models.EyebrowThicknesses),
		ForeheadHeight:   pick(g.rng, models.ForeheadHeights),
	}
}

// resemblanceLocked draws a celebrity with a similarity score in [60,90].
func (g *Generator) resemblanceLocked() models.FacialResemblance {
	return models.FacialResemblance{
		Celebrity:       pick(g.rng, Celebrities),
		SimilarityScore: between(g.rng, minSimilarity, maxSimilarity),
	}
}

func pick[T any](rng *rand.Rand, values []T) T {
	return values[rng.IntN(len(values))]
}

// between is inclusive on both ends.
func between(rng *rand.Rand, lo, hi int) int {
	return lo + rng.IntN(hi-lo+1)
}
