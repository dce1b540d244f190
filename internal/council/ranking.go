package council

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/tjfontaine/llm-council/internal/domain"
)

// rankingMarker is the section raters are instructed to end with. Raters
// are free-text generators and regularly ignore instructions, so parsing
// degrades through three tiers instead of failing the stage.
const rankingMarker = "FINAL RANKING:"

var (
	numberedEntryPattern = regexp.MustCompile(`\d+\.\s*Response [A-Z]`)
	labelPattern         = regexp.MustCompile(`Response [A-Z]`)
)

// ParseRanking extracts an ordered label list from one rater's free text.
// Tier 1: strict "N. Response X" entries after the marker. Tier 2: any
// "Response X" occurrence after the marker. Tier 3 (no marker at all):
// any "Response X" occurrence anywhere, in appearance order. A text that
// yields nothing returns an empty list, never an error.
func ParseRanking(text string) []string {
	if idx := strings.Index(text, rankingMarker); idx >= 0 {
		section := text[idx+len(rankingMarker):]
		if numbered := numberedEntryPattern.FindAllString(section, -1); len(numbered) > 0 {
			labels := make([]string, 0, len(numbered))
			for _, entry := range numbered {
				labels = append(labels, labelPattern.FindString(entry))
			}
			return labels
		}
		return labelPattern.FindAllString(section, -1)
	}
	return labelPattern.FindAllString(text, -1)
}

// AggregateRankings folds every rater's parsed list into a leaderboard.
// Each label's 1-based position contributes one observation to its mapped
// display name; a name's score is the mean of its observations rounded to
// two decimals, sorted ascending (lower mean wins). Raters that produced
// nothing parseable simply contribute nothing.
func AggregateRankings(stage2 []domain.Stage2Result, labelToModel map[string]string) []domain.AggregateRanking {
	positions := make(map[string][]int)
	var order []string

	for _, rating := range stage2 {
		for pos, label := range rating.ParsedRanking {
			model, ok := labelToModel[label]
			if !ok {
				continue
			}
			if _, seen := positions[model]; !seen {
				order = append(order, model)
			}
			positions[model] = append(positions[model], pos+1)
		}
	}

	aggregate := make([]domain.AggregateRanking, 0, len(order))
	for _, model := range order {
		obs := positions[model]
		sum := 0
		for _, p := range obs {
			sum += p
		}
		mean := float64(sum) / float64(len(obs))
		aggregate = append(aggregate, domain.AggregateRanking{
			Model:       model,
			AverageRank: math.Round(mean*100) / 100,
			Count:       len(obs),
		})
	}

	sort.SliceStable(aggregate, func(i, j int) bool {
		return aggregate[i].AverageRank < aggregate[j].AverageRank
	})
	return aggregate
}
