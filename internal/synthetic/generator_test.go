package synthetic

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-face-analyzer/pkg/models"
)

func TestGenerate_AlwaysSchemaValid(t *testing.T) {
	g := New()
	for i := 0; i < 1000; i++ {
		r := g.Generate()
		require.NoError(t, r.Validate(), "generation %d", i)
		require.GreaterOrEqual(t, r.FacialSymmetry, 60)
		require.LessOrEqual(t, r.FacialSymmetry, 100)
		require.Nil(t, r.FacialResemblance)
	}
}

func TestGenerate_WithResemblance(t *testing.T) {
	g := New(WithSeed(7), WithResemblance())
	for i := 0; i < 1000; i++ {
		r := g.Generate()
		require.NoError(t, r.Validate())
		require.NotNil(t, r.FacialResemblance)
		require.GreaterOrEqual(t, r.FacialResemblance.SimilarityScore, 60)
		require.LessOrEqual(t, r.FacialResemblance.SimilarityScore, 90)
		require.Contains(t, Celebrities, r.FacialResemblance.Celebrity)
	}
}

func TestGenerate_SeedIsDeterministic(t *testing.T) {
	a := New(WithSeed(42))
	b := New(WithSeed(42))
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Generate(), b.Generate())
	}
}

func TestGenerate_CoversValueSets(t *testing.T) {
	g := New(WithSeed(1))
	shapes := map[models.FaceShape]bool{}
	emotions := map[models.Emotion]bool{}
	symmetry := map[int]bool{}
	for i := 0; i < 5000; i++ {
		r := g.Generate()
		shapes[r.FaceShape] = true
		emotions[r.DominantEmotion] = true
		symmetry[r.FacialSymmetry] = true
	}
	assert.Len(t, shapes, len(models.FaceShapes))
	assert.Len(t, emotions, len(models.Emotions))
	assert.True(t, symmetry[60], "lower bound reachable")
	assert.True(t, symmetry[100], "upper bound reachable")
}

func TestGenerator_ConcurrentUse(t *testing.T) {
	g := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = g.Generate()
				_ = g.Attributes()
				_ = g.Symmetry()
			}
		}()
	}
	wg.Wait()
}
