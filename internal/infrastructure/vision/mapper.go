package vision

import (
	"math"
	"sort"
	"strings"

	"github.com/lostfound/backend/internal/domain"
)

// maxDominantColors is how many dominant colors are kept per image
const maxDominantColors = 3

// mapToFeatureSet converts one annotate response into the domain feature set
func mapToFeatureSet(resp imageResponse) *domain.ImageFeatureSet {
	features := &domain.ImageFeatureSet{
		Labels:  make([]domain.Label, 0, len(resp.LabelAnnotations)),
		Objects: make([]domain.DetectedObject, 0, len(resp.LocalizedObjectAnnotations)),
		Colors:  extractColors(resp.ImagePropertiesAnnotation),
	}

	for _, l := range resp.LabelAnnotations {
		if strings.TrimSpace(l.Description) == "" {
			continue
		}
		features.Labels = append(features.Labels, domain.Label{
			Description: l.Description,
			Confidence:  l.Score,
		})
	}

	for _, o := range resp.LocalizedObjectAnnotations {
		if strings.TrimSpace(o.Name) == "" {
			continue
		}
		features.Objects = append(features.Objects, domain.DetectedObject{
			Name:       o.Name,
			Confidence: o.Score,
		})
	}

	// the first text annotation holds the full detected text
	if len(resp.TextAnnotations) > 0 {
		features.Text = strings.TrimSpace(resp.TextAnnotations[0].Description)
	}

	return features
}

// extractColors keeps the dominant colors with the largest pixel fraction, largest first
func extractColors(props *imageProperties) []domain.Color {
	if props == nil {
		return []domain.Color{}
	}

	infos := append([]colorInfo(nil), props.DominantColors.Colors...)
	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].PixelFraction > infos[j].PixelFraction
	})
	if len(infos) > maxDominantColors {
		infos = infos[:maxDominantColors]
	}

	colors := make([]domain.Color, 0, len(infos))
	for _, c := range infos {
		colors = append(colors, domain.Color{
			Red:           channel(c.Color.Red),
			Green:         channel(c.Color.Green),
			Blue:          channel(c.Color.Blue),
			PixelFraction: c.PixelFraction,
		})
	}
	return colors
}

// channel rounds a color component into 0..255
func channel(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Round(math.Min(255, math.Max(0, v))))
}
