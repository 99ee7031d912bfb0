package provider

import (
	"strings"

	"github.com/arbovm/levenshtein"

	"go-face-analyzer/pkg/models"
)

// Approximate matches need at most one edit, the same first letter and a
// label of at least five bytes.
const (
	maxLabelDistance  = 1
	minFuzzyLabelSize = 5
)

// Face++ emotion keys in the order they are tried for approximate matches.
var emotionLabelOrder = []string{"happiness", "sadness", "anger", "surprise"}

var emotionLabels = map[string]models.Emotion{
	"happiness": models.EmotionHappy,
	"sadness":   models.EmotionSad,
	"anger":     models.EmotionAngry,
	"surprise":  models.EmotionSurprised,
}

// emotionFromLabel maps a provider emotion key onto the result enum. Unknown
// keys (neutral, disgust, fear, ...) are Neutral. A misspelt key such as
// "hapiness" still maps to its emotion.
func emotionFromLabel(label string) models.Emotion {
	label = normalizeLabel(label)
	if e, ok := emotionLabels[label]; ok {
		return e
	}
	if len(label) < minFuzzyLabelSize {
		return models.EmotionNeutral
	}

	best, bestDist := "", maxLabelDistance+1
	for _, known := range emotionLabelOrder {
		if label[0] != known[0] {
			continue
		}
		if d := levenshtein.Distance(label, known); d < bestDist {
			best, bestDist = known, d
		}
	}
	if best != "" {
		return emotionLabels[best]
	}
	return models.EmotionNeutral
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
