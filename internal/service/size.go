package service

import (
	"fmt"
	"sort"

	"shopassistant/internal/lexicon"
	"shopassistant/internal/model"
)

// SizeAdvisor recommends sizes for a product from the user's per-category
// size preferences and the lexicon's size guides
type SizeAdvisor struct {
	lex *lexicon.Lexicon
}

// NewSizeAdvisor creates a size advisor
func NewSizeAdvisor(lex *lexicon.Lexicon) *SizeAdvisor {
	return &SizeAdvisor{lex: lex}
}

// Recommend builds the advice for one product. pref may be nil.
func (a *SizeAdvisor) Recommend(product *model.Product, pref *model.UserPreference) *model.SizeRecommendation {
	rec := &model.SizeRecommendation{
		ProductID:        product.ID,
		RecommendedSizes: []string{},
		AvailableSizes:   append([]string{}, product.Sizes...),
		Explanation:      "Bạn có thể tham khảo bảng size bên dưới để chọn size phù hợp.",
		SizeGuide:        map[string]string{},
	}

	if pref != nil {
		if size, ok := preferredSize(pref.SizePreferences, product.CategoryName); ok {
			rec.RecommendedSizes = append(rec.RecommendedSizes, size)
			rec.Explanation = fmt.Sprintf("Dựa trên lịch sử mua hàng, bạn thường chọn size %s cho %s", size, product.CategoryName)
			if len(rec.AvailableSizes) > 0 && !contains(rec.AvailableSizes, size) {
				rec.Explanation += fmt.Sprintf(". Size %s hiện đã hết hàng", size)
			}
		}
	}

	if guide, ok := a.lex.SizeGuideFor(product.CategoryName); ok {
		for _, e := range guide.Entries {
			rec.SizeGuide[e.Size] = e.Note
		}
	}
	return rec
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// preferredSize looks up the stored size for a category. An exact key wins;
// otherwise keys are compared folded, in sorted order.
func preferredSize(prefs model.SizeMap, category string) (string, bool) {
	if size := prefs[category]; size != "" {
		return size, true
	}
	keys := make([]string, 0, len(prefs))
	for k := range prefs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	folded := lexicon.Fold(category)
	for _, k := range keys {
		if size := prefs[k]; size != "" && lexicon.Fold(k) == folded {
			return size, true
		}
	}
	return "", false
}
