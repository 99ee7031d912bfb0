package models

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validResult() AnalysisResult {
	return AnalysisResult{
		SkinType:        SkinCombination,
		FaceShape:       ShapeOval,
		SkinTone:        ToneMedium,
		FacialSymmetry:  82,
		DominantEmotion: EmotionNeutral,
		FacialAttributes: FacialAttributes{
			EyeSize:          EyeMedium,
			NoseShape:        NoseStraight,
			LipFullness:      LipsMedium,
			EyebrowThickness: BrowsMedium,
			ForeheadHeight:   ForeheadAverage,
		},
	}
}

func TestAnalysisResult_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *AnalysisResult)
		wantErr bool
	}{
		{"valid without resemblance", func(r *AnalysisResult) {}, false},
		{"valid with resemblance", func(r *AnalysisResult) {
			r.FacialResemblance = &FacialResemblance{Celebrity: "Ryan Gosling", SimilarityScore: 78}
		}, false},
		{"empty skin type", func(r *AnalysisResult) { r.SkinType = "" }, true},
		{"unknown face shape", func(r *AnalysisResult) { r.FaceShape = "Triangle" }, true},
		{"unknown emotion", func(r *AnalysisResult) { r.DominantEmotion = "Disgusted" }, true},
		{"symmetry above range", func(r *AnalysisResult) { r.FacialSymmetry = 101 }, true},
		{"symmetry below range", func(r *AnalysisResult) { r.FacialSymmetry = -1 }, true},
		{"missing attribute", func(r *AnalysisResult) { r.FacialAttributes.NoseShape = "" }, true},
		{"resemblance without celebrity", func(r *AnalysisResult) {
			r.FacialResemblance = &FacialResemblance{SimilarityScore: 50}
		}, true},
		{"resemblance score out of range", func(r *AnalysisResult) {
			r.FacialResemblance = &FacialResemblance{Celebrity: "X", SimilarityScore: 120}
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validResult()
			tt.mutate(&r)
			err := r.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAnalysisResult_JSONShape(t *testing.T) {
	raw, err := json.Marshal(validResult())
	require.NoError(t, err)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	assert.Contains(t, generic, "skinType")
	assert.Contains(t, generic, "facialAttributes")
	assert.NotContains(t, generic, "facialResemblance", "optional block is omitted, not defaulted")
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0, ClampScore(-12.4))
	assert.Equal(t, 100, ClampScore(118.8))
	assert.Equal(t, 84, ClampScore(83.5))
	assert.Equal(t, 0, ClampScore(math.NaN()))
	assert.Equal(t, 100, ClampScore(math.Inf(1)))
}
