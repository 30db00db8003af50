package nlu

import (
	"encoding/json"
	"fmt"
)

// PriceRange is an inclusive price window in VND
type PriceRange struct {
	Min int64
	Max int64
}

// MarshalJSON encodes the range as a [min, max] pair
func (p PriceRange) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int64{p.Min, p.Max})
}

// UnmarshalJSON accepts a [min, max] pair
func (p *PriceRange) UnmarshalJSON(data []byte) error {
	var pair []int64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("price range must have 2 values, got %d", len(pair))
	}
	p.Min, p.Max = pair[0], pair[1]
	return nil
}

// Entities is the attribute bag extracted from one message. Slices are never
// nil; an empty Gender and a nil PriceRange mean "not mentioned".
type Entities struct {
	Colors     []string    `json:"colors"`
	Sizes      []string    `json:"sizes"`
	Brands     []string    `json:"brands"`
	Categories []string    `json:"categories"`
	Style      []string    `json:"style"`
	PriceRange *PriceRange `json:"price_range"`
	Gender     string      `json:"gender"`
	Keywords   []string    `json:"keywords"`
}

// NewEntities returns an empty bag
func NewEntities() Entities {
	return Entities{
		Colors:     []string{},
		Sizes:      []string{},
		Brands:     []string{},
		Categories: []string{},
		Style:      []string{},
		Keywords:   []string{},
	}
}

// Clone returns a deep copy
func (e Entities) Clone() Entities {
	out := Entities{
		Colors:     cloneStrings(e.Colors),
		Sizes:      cloneStrings(e.Sizes),
		Brands:     cloneStrings(e.Brands),
		Categories: cloneStrings(e.Categories),
		Style:      cloneStrings(e.Style),
		Gender:     e.Gender,
		Keywords:   cloneStrings(e.Keywords),
	}
	if e.PriceRange != nil {
		pr := *e.PriceRange
		out.PriceRange = &pr
	}
	return out
}

// Normalize replaces nil slices with empty ones, e.g. after decoding a bag
// that was stored by an older writer.
func (e *Entities) Normalize() {
	for _, s := range []*[]string{&e.Colors, &e.Sizes, &e.Brands, &e.Categories, &e.Style, &e.Keywords} {
		if *s == nil {
			*s = []string{}
		}
	}
}

// HasSearchAttributes reports whether any of the attributes that make a
// short message a refinement were found.
func (e Entities) HasSearchAttributes() bool {
	return len(e.Colors) > 0 || len(e.Brands) > 0 || len(e.Sizes) > 0 || e.PriceRange != nil
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
