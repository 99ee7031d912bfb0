package models

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

type SkinType string

const (
	SkinDry         SkinType = "Dry"
	SkinNormal      SkinType = "Normal"
	SkinOily        SkinType = "Oily"
	SkinCombination SkinType = "Combination"
)

var SkinTypes = []SkinType{SkinDry, SkinNormal, SkinOily, SkinCombination}

type FaceShape string

const (
	ShapeOval        FaceShape = "Oval"
	ShapeRound       FaceShape = "Round"
	ShapeSquare      FaceShape = "Square"
	ShapeHeart       FaceShape = "Heart"
	ShapeDiamond     FaceShape = "Diamond"
	ShapeRectangular FaceShape = "Rectangular"
)

var FaceShapes = []FaceShape{ShapeOval, ShapeRound, ShapeSquare, ShapeHeart, ShapeDiamond, ShapeRectangular}

type SkinTone string

const (
	ToneFair   SkinTone = "Fair"
	ToneLight  SkinTone = "Light"
	ToneMedium SkinTone = "Medium"
	ToneOlive  SkinTone = "Olive"
	ToneDark   SkinTone = "Dark"
)

// SkinTones is ordered from lightest to darkest; tone buckets index into it.
var SkinTones = []SkinTone{ToneFair, ToneLight, ToneMedium, ToneOlive, ToneDark}

type Emotion string

const (
	EmotionHappy     Emotion = "Happy"
	EmotionSad       Emotion = "Sad"
	EmotionAngry     Emotion = "Angry"
	EmotionNeutral   Emotion = "Neutral"
	EmotionSurprised Emotion = "Surprised"
)

var Emotions = []Emotion{EmotionHappy, EmotionSad, EmotionAngry, EmotionNeutral, EmotionSurprised}

type EyeSize string

const (
	EyeSmall  EyeSize = "Small"
	EyeMedium EyeSize = "Medium"
	EyeLarge  EyeSize = "Large"
)

var EyeSizes = []EyeSize{EyeSmall, EyeMedium, EyeLarge}

type NoseShape string

const (
	NosePointed  NoseShape = "Pointed"
	NoseRounded  NoseShape = "Rounded"
	NoseStraight NoseShape = "Straight"
	NoseWide     NoseShape = "Wide"
)

var NoseShapes = []NoseShape{NosePointed, NoseRounded, NoseStraight, NoseWide}

type LipFullness string

const (
	LipsThin   LipFullness = "Thin"
	LipsMedium LipFullness = "Medium"
	LipsFull   LipFullness = "Full"
)

var LipFullnesses = []LipFullness{LipsThin, LipsMedium, LipsFull}

type EyebrowThickness string

const (
	BrowsThin   EyebrowThickness = "Thin"
	BrowsMedium EyebrowThickness = "Medium"
	BrowsThick  EyebrowThickness = "Thick"
)

var EyebrowThicknesses = []EyebrowThickness{BrowsThin, BrowsMedium, BrowsThick}

type ForeheadHeight string

const (
	ForeheadLow     ForeheadHeight = "Low"
	ForeheadAverage ForeheadHeight = "Average"
	ForeheadHigh    ForeheadHeight = "High"
)

var ForeheadHeights = []ForeheadHeight{ForeheadLow, ForeheadAverage, ForeheadHigh}

// FacialAttributes is the per-feature breakdown shown on the results page.
type FacialAttributes struct {
	EyeSize          EyeSize          `json:"eyeSize" validate:"oneof=Small Medium Large"`
	NoseShape        NoseShape        `json:"noseShape" validate:"oneof=Pointed Rounded Straight Wide"`
	LipFullness      LipFullness      `json:"lipFullness" validate:"oneof=Thin Medium Full"`
	EyebrowThickness EyebrowThickness `json:"eyebrowThickness" validate:"oneof=Thin Medium Thick"`
	ForeheadHeight   ForeheadHeight   `json:"foreheadHeight" validate:"oneof=Low Average High"`
}

// FacialResemblance is the optional celebrity comparison block.
type FacialResemblance struct {
	Celebrity       string `json:"celebrity" validate:"required"`
	SimilarityScore int    `json:"similarityScore" validate:"min=0,max=100"`
}

// AnalysisResult is the provider-agnostic outcome of one analysis attempt.
// It is produced once and handed around by value.
type AnalysisResult struct {
	SkinType          SkinType           `json:"skinType" validate:"oneof=Dry Normal Oily Combination"`
	FaceShape         FaceShape          `json:"faceShape" validate:"oneof=Oval Round Square Heart Diamond Rectangular"`
	SkinTone          SkinTone           `json:"skinTone" validate:"oneof=Fair Light Medium Olive Dark"`
	FacialSymmetry    int                `json:"facialSymmetry" validate:"min=0,max=100"`
	DominantEmotion   Emotion            `json:"dominantEmotion" validate:"oneof=Happy Sad Angry Neutral Surprised"`
	FacialAttributes  FacialAttributes   `json:"facialAttributes"`
	FacialResemblance *FacialResemblance `json:"facialResemblance,omitempty"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func schemaValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate reports every field that falls outside its declared value set.
func (r AnalysisResult) Validate() error {
	err := schemaValidator().Struct(r)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s=%v", fe.Namespace(), fe.Value()))
	}
	return fmt.Errorf("invalid analysis result: %s", strings.Join(fields, ", "))
}

// ClampScore rounds a provider score and bounds it to [0,100].
func ClampScore(v float64) int {
	r := math.Round(v)
	switch {
	case math.IsNaN(r), r < 0:
		return 0
	case r > 100:
		return 100
	}
	return int(r)
}
