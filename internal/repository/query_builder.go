package repository

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"shopassistant/internal/model"
	"shopassistant/internal/nlu"
)

type field int

const (
	fieldName field = iota
	fieldDescription
	fieldBrand
	fieldCategory
	fieldVariantColor
	fieldVariantSize
)

// group matches when any of its fields contains any of its values
type group struct {
	fields []field
	values []string
}

// Predicate is a conjunction of filter groups plus an optional price window.
// The zero Predicate matches every product.
type Predicate struct {
	groups   []group
	priceMin *int64
	priceMax *int64
}

// IsEmpty reports whether the predicate matches everything
func (p Predicate) IsEmpty() bool {
	return len(p.groups) == 0 && p.priceMin == nil && p.priceMax == nil
}

// QueryBuilder accumulates filters into a Predicate. Every Add method is a
// no-op on empty input.
type QueryBuilder struct {
	pred Predicate
}

// NewQueryBuilder creates a builder whose predicate matches everything
func NewQueryBuilder() *QueryBuilder {
	return &QueryBuilder{}
}

// AddTextSearch requires name or description to contain one of the keywords.
// Keywords of two characters or fewer are ignored.
func (b *QueryBuilder) AddTextSearch(keywords []string) *QueryBuilder {
	var kept []string
	for _, kw := range keywords {
		if utf8.RuneCountInString(kw) > 2 {
			kept = append(kept, kw)
		}
	}
	return b.add([]field{fieldName, fieldDescription}, kept)
}

// AddColorFilter requires a variant whose color contains one of colors
func (b *QueryBuilder) AddColorFilter(colors []string) *QueryBuilder {
	return b.add([]field{fieldVariantColor}, colors)
}

// AddBrandFilter requires the brand name to contain one of brands
func (b *QueryBuilder) AddBrandFilter(brands []string) *QueryBuilder {
	return b.add([]field{fieldBrand}, brands)
}

// AddCategoryFilter requires the category title to contain one of categories
func (b *QueryBuilder) AddCategoryFilter(categories []string) *QueryBuilder {
	return b.add([]field{fieldCategory}, categories)
}

// AddSizeFilter requires a variant whose size contains one of sizes
func (b *QueryBuilder) AddSizeFilter(sizes []string) *QueryBuilder {
	return b.add([]field{fieldVariantSize}, sizes)
}

// AddPriceFilter bounds the price inclusively on both ends
func (b *QueryBuilder) AddPriceFilter(pr *nlu.PriceRange) *QueryBuilder {
	if pr == nil {
		return b
	}
	lo, hi := pr.Min, pr.Max
	if b.pred.priceMin == nil || lo > *b.pred.priceMin {
		b.pred.priceMin = &lo
	}
	if b.pred.priceMax == nil || hi < *b.pred.priceMax {
		b.pred.priceMax = &hi
	}
	return b
}

// AddGenderFilter requires name, description or category to mention the
// gender word. Only "nam" and "nữ" filter; "unisex" adds nothing.
func (b *QueryBuilder) AddGenderFilter(gender string) *QueryBuilder {
	if gender != "nam" && gender != "nữ" {
		return b
	}
	return b.add([]field{fieldName, fieldDescription, fieldCategory}, []string{gender})
}

// Build returns the accumulated predicate
func (b *QueryBuilder) Build() Predicate {
	out := Predicate{groups: append([]group(nil), b.pred.groups...)}
	if b.pred.priceMin != nil {
		v := *b.pred.priceMin
		out.priceMin = &v
	}
	if b.pred.priceMax != nil {
		v := *b.pred.priceMax
		out.priceMax = &v
	}
	return out
}

func (b *QueryBuilder) add(fields []field, values []string) *QueryBuilder {
	var kept []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return b
	}
	b.pred.groups = append(b.pred.groups, group{fields: fields, values: kept})
	return b
}

// PredicateFromEntities applies every filter the entity bag supports
func PredicateFromEntities(e nlu.Entities) Predicate {
	return NewQueryBuilder().
		AddTextSearch(e.Keywords).
		AddColorFilter(e.Colors).
		AddBrandFilter(e.Brands).
		AddCategoryFilter(e.Categories).
		AddSizeFilter(e.Sizes).
		AddGenderFilter(e.Gender).
		AddPriceFilter(e.PriceRange).
		Build()
}

// SQL renders the predicate as a WHERE clause over products p, brands b and
// categories c. Placeholders start at argIndex; the next free index is
// returned.
func (p Predicate) SQL(argIndex int) (string, []interface{}, int) {
	whereClauses := []string{"1=1"}
	args := []interface{}{}

	for _, g := range p.groups {
		var conds []string
		for _, v := range g.values {
			ph := fmt.Sprintf("$%d", argIndex)
			args = append(args, "%"+escapeLike(v)+"%")
			argIndex++
			for _, f := range g.fields {
				conds = append(conds, fieldCondition(f, ph))
			}
		}
		whereClauses = append(whereClauses, "("+strings.Join(conds, " OR ")+")")
	}

	if p.priceMin != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("p.price >= $%d", argIndex))
		args = append(args, *p.priceMin)
		argIndex++
	}
	if p.priceMax != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("p.price <= $%d", argIndex))
		args = append(args, *p.priceMax)
		argIndex++
	}

	return strings.Join(whereClauses, " AND "), args, argIndex
}

func fieldCondition(f field, ph string) string {
	switch f {
	case fieldName:
		return "p.name ILIKE " + ph
	case fieldDescription:
		return "p.description ILIKE " + ph
	case fieldBrand:
		return "b.name ILIKE " + ph
	case fieldCategory:
		return "c.title ILIKE " + ph
	case fieldVariantColor:
		return "EXISTS (SELECT 1 FROM product_variants v JOIN colors co ON co.id = v.color_id WHERE v.product_id = p.id AND co.name ILIKE " + ph + ")"
	case fieldVariantSize:
		return "EXISTS (SELECT 1 FROM product_variants v JOIN sizes s ON s.id = v.size_id WHERE v.product_id = p.id AND s.name ILIKE " + ph + ")"
	}
	return "false"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Matches evaluates the predicate against a product in memory, with the same
// case-insensitive containment semantics as the SQL form.
func (p Predicate) Matches(prod *model.Product) bool {
	for _, g := range p.groups {
		if !g.matches(prod) {
			return false
		}
	}
	if p.priceMin != nil && prod.Price < *p.priceMin {
		return false
	}
	if p.priceMax != nil && prod.Price > *p.priceMax {
		return false
	}
	return true
}

func (g group) matches(prod *model.Product) bool {
	for _, v := range g.values {
		needle := strings.ToLower(v)
		for _, f := range g.fields {
			for _, hay := range fieldValues(f, prod) {
				if strings.Contains(strings.ToLower(hay), needle) {
					return true
				}
			}
		}
	}
	return false
}

func fieldValues(f field, prod *model.Product) []string {
	switch f {
	case fieldName:
		return []string{prod.Name}
	case fieldDescription:
		return []string{prod.Description}
	case fieldBrand:
		return []string{prod.BrandName}
	case fieldCategory:
		return []string{prod.CategoryName}
	case fieldVariantColor:
		return prod.Colors
	case fieldVariantSize:
		return prod.Sizes
	}
	return nil
}
