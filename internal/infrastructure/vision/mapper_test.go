package vision

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapToFeatureSet_EmptyResponse(t *testing.T) {
	features := mapToFeatureSet(imageResponse{})

	assert.NotNil(t, features.Labels)
	assert.NotNil(t, features.Objects)
	assert.NotNil(t, features.Colors)
	assert.Empty(t, features.Text)
}

func TestMapToFeatureSet_SkipsBlankNames(t *testing.T) {
	features := mapToFeatureSet(imageResponse{
		LabelAnnotations:           []entityAnnotation{{Description: " "}, {Description: "Backpack", Score: 0.8}},
		LocalizedObjectAnnotations: []objectAnnotation{{Name: ""}, {Name: "Bag", Score: 0.7}},
	})

	assert.Len(t, features.Labels, 1)
	assert.Equal(t, "Backpack", features.Labels[0].Description)
	assert.Len(t, features.Objects, 1)
	assert.Equal(t, "Bag", features.Objects[0].Name)
}

func TestExtractColors_KeepsTopThreeByPixelFraction(t *testing.T) {
	props := &imageProperties{}
	for i, fraction := range []float64{0.05, 0.4, 0.1, 0.3, 0.15} {
		var c colorInfo
		c.Color.Red = float64(i * 10)
		c.PixelFraction = fraction
		props.DominantColors.Colors = append(props.DominantColors.Colors, c)
	}

	colors := extractColors(props)

	assert.Len(t, colors, 3)
	assert.Equal(t, 0.4, colors[0].PixelFraction)
	assert.Equal(t, 10, colors[0].Red)
	assert.Equal(t, 0.3, colors[1].PixelFraction)
	assert.Equal(t, 0.15, colors[2].PixelFraction)
}

func TestChannel(t *testing.T) {
	assert.Equal(t, 0, channel(-4))
	assert.Equal(t, 255, channel(300))
	assert.Equal(t, 128, channel(127.5))
	assert.Equal(t, 0, channel(math.NaN()))
}
