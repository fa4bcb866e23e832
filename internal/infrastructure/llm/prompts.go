package llm

import (
	"fmt"
	"strings"

	"github.com/lostfound/backend/internal/domain"
)

func normalizePrompt(description string, labels []domain.Label) string {
	detected := make([]string, 0, len(labels))
	for _, l := range labels {
		detected = append(detected, fmt.Sprintf("%s (%.1f%%)", l.Description, l.Confidence*100))
	}
	if len(detected) == 0 {
		detected = append(detected, "none")
	}

	categories := make([]string, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		categories = append(categories, string(c))
	}

	return fmt.Sprintf(`A student reported an item on a campus lost and found board.

Description: %s
Labels detected in the photo: %s

Reply with a single JSON object and nothing else, using these keys:
- "normalized_description": one clear sentence describing the item
- "category": one of %s
- "features": up to %d short distinguishing features (brand, model, marks, stickers)
- "colors": the item's main colors`,
		description,
		strings.Join(detected, ", "),
		strings.Join(categories, ", "),
		maxNormalizedFeatures,
	)
}

func comparePrompt(textA, textB string) string {
	return fmt.Sprintf(`Rate how likely these two descriptions refer to the same physical item.

Description 1: %s
Description 2: %s

Reply with ONLY a number between 0 and 1, where 1 means certainly the same item.`,
		textA, textB)
}

func explainPrompt(lost, found *domain.Item, b domain.SimilarityBreakdown) string {
	return fmt.Sprintf(`A lost item report may match a found item report on campus.

Lost: %s - %s
Found: %s - %s

Visual similarity: %.0f%%
Description similarity: %.0f%%
Category and feature similarity: %.0f%%

In 2 or 3 friendly sentences addressed to the student who lost the item, explain why these might be the same item. Reply with the explanation only.`,
		lost.Title, lost.Description,
		found.Title, found.Description,
		b.ImageSimilarity*100,
		b.TextSimilarity*100,
		b.MetadataSimilarity*100,
	)
}
