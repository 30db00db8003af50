package service

import (
	"sort"

	"shopassistant/internal/lexicon"
	"shopassistant/internal/model"
)

// Ranking weights. Each exceeds the sum of those below it.
const (
	weightPreferredBrand    = 4
	weightPreferredCategory = 2
	weightWithinBudget      = 1
)

// Ranker reorders search results by a user's stored preferences. It never
// drops results.
type Ranker struct {
	weightBrand    int
	weightCategory int
	weightBudget   int
}

// NewRanker creates a ranker with the default weights
func NewRanker() *Ranker {
	return &Ranker{
		weightBrand:    weightPreferredBrand,
		weightCategory: weightPreferredCategory,
		weightBudget:   weightWithinBudget,
	}
}

// Rank returns products with preferred ones first. Ties keep the catalog
// order. The input slice is not modified.
func (r *Ranker) Rank(products []model.Product, pref *model.UserPreference) []model.Product {
	out := append([]model.Product(nil), products...)
	if pref == nil || len(out) < 2 {
		return out
	}

	brands := foldSet(pref.PreferredBrands)
	categories := foldSet(pref.PreferredCategories)

	scores := make(map[int64]int, len(out))
	for _, p := range out {
		scores[p.ID] = r.score(p, brands, categories, pref.PriceRange)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return scores[out[i].ID] > scores[out[j].ID]
	})
	return out
}

func (r *Ranker) score(p model.Product, brands, categories map[string]bool, budget model.PriceRange) int {
	score := 0
	if brands[lexicon.Fold(p.BrandName)] {
		score += r.weightBrand
	}
	if categories[lexicon.Fold(p.CategoryName)] {
		score += r.weightCategory
	}
	if withinBudget(p.Price, budget) {
		score += r.weightBudget
	}
	return score
}

// withinBudget is false when no budget is stored
func withinBudget(price int64, budget model.PriceRange) bool {
	if budget.Min == 0 && budget.Max == 0 {
		return false
	}
	if price < budget.Min {
		return false
	}
	return budget.Max == 0 || price <= budget.Max
}

func foldSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		if v = lexicon.Fold(v); v != "" {
			set[v] = true
		}
	}
	return set
}
