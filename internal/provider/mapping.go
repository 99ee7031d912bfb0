package provider

import (
	"math"

	"github.com/tidwall/gjson"

	"go-face-analyzer/internal/synthetic"
	"go-face-analyzer/pkg/models"
)

// Where a mapped field value came from.
const (
	sourceProvider  = "provider"
	sourceDefault   = "default"
	sourceSynthetic = "synthetic"
)

const symmetryQualityFactor = 1.2

type decision struct {
	field  string
	source string
}

// mapper reads one detected face. Every method is total: an absent or
// mistyped signal falls back to a default or a synthetic draw.
type mapper struct {
	synth     *synthetic.Generator
	decisions []decision
}

func (m *mapper) record(field, source string) {
	m.decisions = append(m.decisions, decision{field: field, source: source})
}

// result maps the detected face attributes plus an optional skinstatus
// object fetched separately. A non-existent skin result means "use whatever
// the attributes carry".
func (m *mapper) result(attrs, skin gjson.Result) models.AnalysisResult {
	if !skin.Exists() {
		skin = attrs.Get("skinstatus")
	}

	m.record("faceShape", sourceSynthetic)
	m.record("facialAttributes", sourceSynthetic)

	return models.AnalysisResult{
		SkinType:         m.skinType(skin),
		FaceShape:        m.synth.FaceShape(),
		SkinTone:         m.skinTone(skin),
		FacialSymmetry:   m.symmetry(attrs),
		DominantEmotion:  m.emotion(attrs.Get("emotion")),
		FacialAttributes: m.synth.Attributes(),
	}
}

func (m *mapper) skinType(skin gjson.Result) models.SkinType {
	if oil := skin.Get("oil"); oil.Type == gjson.Number {
		m.record("skinType", sourceProvider)
		return skinTypeFromOil(oil.Float())
	}

	code := skin.Get("skin_type")
	if code.IsObject() {
		code = code.Get("skin_type")
	}
	if code.Type == gjson.Number {
		if t, ok := skinTypeFromCode(code.Int()); ok {
			m.record("skinType", sourceProvider)
			return t
		}
	}

	m.record("skinType", sourceDefault)
	return models.SkinNormal
}

func skinTypeFromOil(oil float64) models.SkinType {
	switch {
	case oil > 75:
		return models.SkinOily
	case oil < 25:
		return models.SkinDry
	case oil > 50:
		return models.SkinCombination
	default:
		return models.SkinNormal
	}
}

func skinTypeFromCode(code int64) (models.SkinType, bool) {
	switch code {
	case 0:
		return models.SkinDry, true
	case 1:
		return models.SkinNormal, true
	case 2:
		return models.SkinOily, true
	case 3:
		return models.SkinCombination, true
	}
	return "", false
}

func (m *mapper) skinTone(skin gjson.Result) models.SkinTone {
	v := skin.Get("health")
	if v.Type != gjson.Number {
		v = skin.Get("skin_color")
	}
	if v.Type != gjson.Number {
		m.record("skinTone", sourceDefault)
		return models.ToneMedium
	}
	m.record("skinTone", sourceProvider)
	return skinToneFromOrdinal(v.Float())
}

// skinToneFromOrdinal buckets a 0-100 ordinal into five tones, light to dark.
func skinToneFromOrdinal(v float64) models.SkinTone {
	last := len(models.SkinTones) - 1
	if math.IsNaN(v) || v < 0 {
		return models.SkinTones[0]
	}
	// Bound before converting; huge values and +Inf do not fit an int.
	bucket := math.Floor(v / 20)
	if bucket >= float64(last) {
		return models.SkinTones[last]
	}
	return models.SkinTones[int(bucket)]
}

func (m *mapper) symmetry(attrs gjson.Result) int {
	q := attrs.Get("facequality.value")
	if q.Type != gjson.Number {
		m.record("facialSymmetry", sourceSynthetic)
		return m.synth.Symmetry()
	}
	m.record("facialSymmetry", sourceProvider)
	return models.ClampScore(q.Float() * symmetryQualityFactor)
}

// emotion picks the highest-scoring label. Ties keep the first label in
// document order.
func (m *mapper) emotion(scores gjson.Result) models.Emotion {
	var (
		best      string
		bestScore float64
		found     bool
	)
	if scores.IsObject() {
		scores.ForEach(func(key, value gjson.Result) bool {
			if value.Type != gjson.Number {
				return true
			}
			if !found || value.Float() > bestScore {
				best, bestScore, found = key.String(), value.Float(), true
			}
			return true
		})
	}
	if !found {
		m.record("dominantEmotion", sourceDefault)
		return models.EmotionNeutral
	}
	m.record("dominantEmotion", sourceProvider)
	return emotionFromLabel(best)
}

// resemblance reads the best search candidate. ok is false when the response
// names nobody.
func resemblance(search gjson.Result) (models.FacialResemblance, bool) {
	top := search.Get("results.0")
	name := top.Get("user_id").String()
	if name == "" {
		return models.FacialResemblance{}, false
	}
	return models.FacialResemblance{
		Celebrity:       name,
		SimilarityScore: models.ClampScore(top.Get("confidence").Float()),
	}, true
}
