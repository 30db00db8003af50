// Package nlu turns free-text Vietnamese shopping messages into an intent
// and an attribute bag using the lexicon tables and a few regexes.
package nlu

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"shopassistant/internal/lexicon"
)

// DefaultPriceTolerance is the half-width of the window built for "khoảng N"
const DefaultPriceTolerance int64 = 50000

var (
	// Prefixed size patterns, tried in order. A letter capture must not run
	// into a following letter, so "size lớn" does not read as size L.
	sizePatterns = []*regexp.Regexp{
		regexp.MustCompile(`size\s*([smlx]+|\d+)`),
		regexp.MustCompile(`cỡ\s*([smlx]+|\d+)`),
		regexp.MustCompile(`số\s*(\d+)`),
	}
	letterSizeToken = regexp.MustCompile(`^[smlx]{1,3}$`)
	shoeSizeToken   = regexp.MustCompile(`^(3[6-9]|4[0-6])$`)

	priceUnder   = regexp.MustCompile(`dưới\s+(\d+)k?`)
	priceBetween = regexp.MustCompile(`từ\s+(\d+)k?\s+đến\s+(\d+)k?`)
	priceAround  = regexp.MustCompile(`khoảng\s+(\d+)k?`)
	priceDash    = regexp.MustCompile(`(\d+)k?\s*-\s*(\d+)k?`)
)

// Extractor pulls entities out of a message. It is safe for concurrent use.
type Extractor struct {
	lex            *lexicon.Lexicon
	priceTolerance int64
	stopWords      map[string]bool
}

// NewExtractor creates an extractor. A non-positive tolerance falls back to
// DefaultPriceTolerance.
func NewExtractor(lex *lexicon.Lexicon, priceTolerance int64) *Extractor {
	if priceTolerance <= 0 {
		priceTolerance = DefaultPriceTolerance
	}
	stop := make(map[string]bool, len(lex.StopWords))
	for _, w := range lex.StopWords {
		stop[w] = true
	}
	return &Extractor{lex: lex, priceTolerance: priceTolerance, stopWords: stop}
}

// Extract runs every pass over the message. It never fails; passes that find
// nothing leave their field empty.
func (e *Extractor) Extract(text string) Entities {
	text = lexicon.Fold(text)

	ent := NewEntities()
	ent.Colors = matchTerms(text, e.lex.Colors)
	ent.Sizes = e.extractSizes(text)
	ent.Brands = matchTerms(text, e.lex.Brands)
	ent.Categories = matchTerms(text, e.lex.Categories)
	ent.Style = matchTerms(text, e.lex.Styles)
	ent.PriceRange = e.extractPriceRange(text)
	ent.Gender = e.extractGender(text)
	ent.Keywords = e.extractKeywords(text)
	return ent
}

// matchTerms returns the canonical name of every term with a form occurring
// in text, in table order. Longer forms are tried first across the whole
// table and their span is blanked out, so "xanh lá" does not also count as
// "xanh".
func matchTerms(text string, terms []lexicon.Term) []string {
	type candidate struct {
		term int
		form string
	}
	var cands []candidate
	for i, t := range terms {
		for _, form := range t.Forms {
			if form != "" {
				cands = append(cands, candidate{term: i, form: form})
			}
		}
	}
	sort.SliceStable(cands, func(a, b int) bool {
		return len(cands[a].form) > len(cands[b].form)
	})

	matched := make([]bool, len(terms))
	for _, c := range cands {
		if !strings.Contains(text, c.form) {
			continue
		}
		matched[c.term] = true
		text = strings.ReplaceAll(text, c.form, strings.Repeat(" ", len(c.form)))
	}

	out := []string{}
	for i, t := range terms {
		if matched[i] {
			out = append(out, t.Name)
		}
	}
	return out
}

func (e *Extractor) extractSizes(text string) []string {
	out := []string{}
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.ToUpper(s)
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	for _, re := range sizePatterns {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[2], m[3]
			if isLetterAt(text, end) && !isDigits(text[start:end]) {
				continue
			}
			add(text[start:end])
		}
	}

	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		if letterSizeToken.MatchString(tok) {
			add(tok)
		}
	}
	for _, tok := range tokens {
		if shoeSizeToken.MatchString(tok) {
			add(tok)
		}
	}
	return out
}

func (e *Extractor) extractPriceRange(text string) *PriceRange {
	if m := priceUnder.FindStringSubmatch(text); m != nil {
		if n, ok := thousands(m[1]); ok {
			return &PriceRange{Min: 0, Max: n}
		}
	}
	if m := priceBetween.FindStringSubmatch(text); m != nil {
		lo, ok1 := thousands(m[1])
		hi, ok2 := thousands(m[2])
		if ok1 && ok2 {
			return &PriceRange{Min: lo, Max: hi}
		}
	}
	if m := priceAround.FindStringSubmatch(text); m != nil {
		if n, ok := thousands(m[1]); ok {
			lo := n - e.priceTolerance
			if lo < 0 {
				lo = 0
			}
			return &PriceRange{Min: lo, Max: n + e.priceTolerance}
		}
	}
	if m := priceDash.FindStringSubmatch(text); m != nil {
		lo, ok1 := thousands(m[1])
		hi, ok2 := thousands(m[2])
		if ok1 && ok2 {
			return &PriceRange{Min: lo, Max: hi}
		}
	}
	return nil
}

func (e *Extractor) extractGender(text string) string {
	for _, g := range e.lex.Genders {
		for _, form := range g.Forms {
			if strings.Contains(text, form) {
				return g.Name
			}
		}
	}
	return ""
}

func (e *Extractor) extractKeywords(text string) []string {
	out := []string{}
	for _, w := range strings.Fields(text) {
		if e.stopWords[w] || utf8.RuneCountInString(w) <= 2 {
			continue
		}
		out = append(out, w)
	}
	return out
}

// thousands reads a number of thousands of VND
func thousands(digits string) (int64, bool) {
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n > (1<<62)/1000 {
		return 0, false
	}
	return n * 1000, true
}

func isLetterAt(s string, i int) bool {
	if i >= len(s) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return unicode.IsLetter(r)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
