package nlu

import (
	"encoding/json"
	"testing"

	"shopassistant/internal/lexicon"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExtractor() *Extractor {
	return NewExtractor(lexicon.Default(), DefaultPriceTolerance)
}

func TestExtract_PriceRange(t *testing.T) {
	tests := []struct {
		name string
		text string
		want *PriceRange
	}{
		{name: "under", text: "áo dưới 500k", want: &PriceRange{0, 500000}},
		{name: "under without k", text: "dưới 200", want: &PriceRange{0, 200000}},
		{name: "between", text: "từ 200k đến 400k", want: &PriceRange{200000, 400000}},
		{name: "around", text: "khoảng 300k", want: &PriceRange{250000, 350000}},
		{name: "around clamps at zero", text: "khoảng 20k", want: &PriceRange{0, 70000}},
		{name: "dash", text: "100k-300k", want: &PriceRange{100000, 300000}},
		{name: "dash with spaces", text: "giá 100 - 300", want: &PriceRange{100000, 300000}},
		{name: "first pattern wins", text: "dưới 500k hoặc 100k-300k", want: &PriceRange{0, 500000}},
		{name: "none", text: "áo đẹp", want: nil},
	}

	ex := newExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ex.Extract(tt.text).PriceRange)
		})
	}
}

func TestExtract_CustomTolerance(t *testing.T) {
	ex := NewExtractor(lexicon.Default(), 100000)
	assert.Equal(t, &PriceRange{200000, 400000}, ex.Extract("khoảng 300k").PriceRange)
}

func TestExtract_Sizes(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "size prefix", text: "size m", want: []string{"M"}},
		{name: "size prefix no space", text: "sizexl", want: []string{"XL"}},
		{name: "co prefix", text: "cỡ l", want: []string{"L"}},
		{name: "so prefix", text: "giày số 42", want: []string{"42"}},
		{name: "bare letters", text: "có áo s hay xl không", want: []string{"S", "XL"}},
		{name: "shoe size", text: "giày 40 màu trắng", want: []string{"40"}},
		{name: "out of range shoe size", text: "giày 47", want: []string{}},
		{name: "dedup keeps first seen", text: "size l, l hoặc 41", want: []string{"L", "41"}},
		{name: "letter inside word ignored", text: "màu đen size lớn", want: []string{}},
		{name: "price is not a size", text: "dưới 40k", want: []string{}},
	}

	ex := newExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ex.Extract(tt.text).Sizes)
		})
	}
}

func TestExtract_Terms(t *testing.T) {
	ex := newExtractor()

	ent := ex.Extract("Tìm giày Nike màu đen hoặc trắng phong cách thể thao")
	assert.Equal(t, []string{"đen", "trắng"}, ent.Colors)
	assert.Equal(t, []string{"nike"}, ent.Brands)
	assert.Equal(t, []string{"giày"}, ent.Categories)
	assert.Equal(t, []string{"sport"}, ent.Style)

	ent = ex.Extract("black hoodie")
	assert.Equal(t, []string{"đen"}, ent.Colors)
	assert.Equal(t, []string{"áo"}, ent.Categories)
}

func TestExtract_CanonicalNamesRoundTrip(t *testing.T) {
	lex := lexicon.Default()
	ex := NewExtractor(lex, DefaultPriceTolerance)

	for _, term := range lex.Colors {
		assert.Equal(t, []string{term.Name}, ex.Extract(term.Name).Colors, term.Name)
	}
	for _, term := range lex.Brands {
		assert.Equal(t, []string{term.Name}, ex.Extract(term.Name).Brands, term.Name)
	}
	for _, term := range lex.Categories {
		assert.Equal(t, []string{term.Name}, ex.Extract(term.Name).Categories, term.Name)
	}
}

func TestExtract_LongestFormWins(t *testing.T) {
	tests := []struct {
		text   string
		colors []string
	}{
		{text: "áo xanh lá", colors: []string{"xanh lá"}},
		{text: "áo xanh lá và quần xanh dương", colors: []string{"xanh", "xanh lá"}},
		{text: "giày xanh", colors: []string{"xanh"}},
		{text: "áo green", colors: []string{"xanh lá"}},
	}

	ex := newExtractor()
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.colors, ex.Extract(tt.text).Colors)
		})
	}
}

func TestExtract_Gender(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{text: "áo nam", want: "nam"},
		{text: "váy nữ", want: "nữ"},
		{text: "áo unisex", want: "unisex"},
		{text: "áo cho cả nam và nữ", want: "nam"},
		{text: "áo thun", want: ""},
	}

	ex := newExtractor()
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ex.Extract(tt.text).Gender)
		})
	}
}

func TestExtract_Keywords(t *testing.T) {
	ex := newExtractor()

	ent := ex.Extract("Tôi muốn mua áo khoác cho bạn")
	assert.Equal(t, []string{"muốn", "mua", "khoác"}, ent.Keywords)
}

func TestExtract_EmptyInput(t *testing.T) {
	ent := newExtractor().Extract("")

	assert.Equal(t, NewEntities(), ent)
	assert.NotNil(t, ent.Colors)
	assert.Nil(t, ent.PriceRange)
}

func TestExtract_DecomposedInput(t *testing.T) {
	// "trắng" typed as base letter plus combining breve and acute
	ent := newExtractor().Extract("áo tra\u0306\u0301ng")
	assert.Equal(t, []string{"trắng"}, ent.Colors)
}

func TestExtract_EndToEnd(t *testing.T) {
	ent := newExtractor().Extract("tìm áo màu đen size L dưới 300k")

	assert.Equal(t, []string{"áo"}, ent.Categories)
	assert.Equal(t, []string{"đen"}, ent.Colors)
	assert.Equal(t, []string{"L"}, ent.Sizes)
	assert.Equal(t, &PriceRange{0, 300000}, ent.PriceRange)
	assert.Empty(t, ent.Brands)
	assert.Empty(t, ent.Gender)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want Intent
	}{
		{text: "tìm áo màu đen size L dưới 300k", want: IntentProductSearch},
		{text: "xin chào", want: IntentGreeting},
		{text: "Hello bạn", want: IntentGreeting},
		{text: "hướng dẫn chọn size", want: IntentSizeHelp},
		{text: "thanh toán giỏ hàng thế nào", want: IntentOrderHelp},
		{text: "bao nhiêu tiền", want: IntentPriceInquiry},
		{text: "xyz", want: IntentGeneral},
		{text: "", want: IntentGeneral},
	}

	c := NewClassifier(lexicon.Default())
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.text))
		})
	}
}

func TestClassify_TieGoesToFirstIntent(t *testing.T) {
	lex, err := lexicon.Parse([]byte(`
intents:
  - intent: product_search
    phrases: [alpha]
  - intent: greeting
    phrases: [beta]
`))
	require.NoError(t, err)

	c := NewClassifier(lex)
	assert.Equal(t, IntentProductSearch, c.Classify("beta alpha"))
	assert.Equal(t, IntentGreeting, c.Classify("beta"))
}

func TestEntities_CloneIsDeep(t *testing.T) {
	orig := NewEntities()
	orig.Colors = append(orig.Colors, "đen")
	orig.PriceRange = &PriceRange{0, 100}

	cp := orig.Clone()
	cp.Colors[0] = "đỏ"
	cp.PriceRange.Max = 5

	assert.Equal(t, "đen", orig.Colors[0])
	assert.Equal(t, int64(100), orig.PriceRange.Max)
}

func TestEntities_JSON(t *testing.T) {
	ent := NewEntities()
	ent.PriceRange = &PriceRange{0, 300000}

	data, err := json.Marshal(ent)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"price_range":[0,300000]`)
	assert.Contains(t, string(data), `"colors":[]`)

	var back Entities
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, ent, back)

	var bad PriceRange
	assert.Error(t, json.Unmarshal([]byte(`[1]`), &bad))
}

func TestEntities_Normalize(t *testing.T) {
	var ent Entities
	ent.Normalize()
	assert.Equal(t, NewEntities(), ent)
}
