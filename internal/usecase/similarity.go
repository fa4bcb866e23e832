package usecase

import (
	"math"
	"strings"

	"github.com/lostfound/backend/internal/domain"
	"gonum.org/v1/gonum/floats"
)

// Image similarity term weights
const (
	labelOverlapWeight  = 0.6
	colorDistanceWeight = 0.4
)

// Metadata similarity term weights
const (
	categoryMatchScore   = 0.5
	featureOverlapWeight = 0.5
)

// maxColorDistance is the Euclidean distance between black and white in RGB space
var maxColorDistance = 255 * math.Sqrt(3)

// ImageSimilarity compares two feature sets by label overlap and dominant color.
// The color term is skipped entirely when either image has no dominant color.
func ImageSimilarity(a, b *domain.ImageFeatureSet) float64 {
	if a == nil || b == nil {
		return 0
	}

	score := labelSimilarity(a.Labels, b.Labels) * labelOverlapWeight

	if len(a.Colors) > 0 && len(b.Colors) > 0 {
		score += colorSimilarity(a.Colors[0], b.Colors[0]) * colorDistanceWeight
	}

	return clamp01(score)
}

// labelSimilarity is the Dice coefficient of the lower-cased label sets
func labelSimilarity(a, b []domain.Label) float64 {
	setA := labelSet(a)
	setB := labelSet(b)
	total := len(setA) + len(setB)
	if total == 0 {
		return 0
	}

	common := 0
	for l := range setA {
		if setB[l] {
			common++
		}
	}
	return 2 * float64(common) / float64(total)
}

func labelSet(labels []domain.Label) map[string]bool {
	set := make(map[string]bool, len(labels))
	for _, l := range labels {
		d := strings.ToLower(strings.TrimSpace(l.Description))
		if d == "" {
			continue
		}
		set[d] = true
	}
	return set
}

// colorSimilarity is 1 minus the normalized Euclidean RGB distance
func colorSimilarity(a, b domain.Color) float64 {
	distance := floats.Distance(rgb(a), rgb(b), 2)
	return clamp01(1 - distance/maxColorDistance)
}

func rgb(c domain.Color) []float64 {
	return []float64{float64(c.Red), float64(c.Green), float64(c.Blue)}
}

// MetadataSimilarity compares category and feature lists of two normalized items
func MetadataSimilarity(a, b *domain.NormalizedItem) float64 {
	if a == nil || b == nil {
		return 0
	}

	score := 0.0
	if a.Category == b.Category {
		score += categoryMatchScore
	}
	score += featureOverlap(a.Features, b.Features) * featureOverlapWeight

	return clamp01(score)
}

// featureOverlap is a Dice coefficient where two features are related when one
// contains the other. Pairing is one-to-one and maximal, so the result does not
// depend on the order of either list.
func featureOverlap(a, b []string) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 0
	}

	fa := lowerAll(a)
	fb := lowerAll(b)

	related := make([][]int, len(fa))
	for i, x := range fa {
		if x == "" {
			continue
		}
		for j, y := range fb {
			if y != "" && (strings.Contains(x, y) || strings.Contains(y, x)) {
				related[i] = append(related[i], j)
			}
		}
	}

	return clamp01(2 * float64(maxPairing(related, len(fb))) / float64(total))
}

// maxPairing returns the size of a maximum bipartite matching using augmenting
// paths. related[i] lists the right-hand indexes left index i may pair with.
func maxPairing(related [][]int, rightSize int) int {
	pairedWith := make([]int, rightSize)
	for j := range pairedWith {
		pairedWith[j] = -1
	}

	var augment func(i int, visited []bool) bool
	augment = func(i int, visited []bool) bool {
		for _, j := range related[i] {
			if visited[j] {
				continue
			}
			visited[j] = true
			if pairedWith[j] < 0 || augment(pairedWith[j], visited) {
				pairedWith[j] = i
				return true
			}
		}
		return false
	}

	count := 0
	for i := range related {
		if augment(i, make([]bool, rightSize)) {
			count++
		}
	}
	return count
}

func lowerAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

// clamp01 bounds v to [0,1]; NaN becomes 0
func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}
