// Package lexicon holds the keyword and synonym tables the chat pipeline
// matches messages against. A Lexicon is immutable once built; enrichment
// returns a new value.
package lexicon

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultData []byte

// Term maps a canonical name to the surface forms that select it
type Term struct {
	Name  string   `yaml:"name" json:"name"`
	Forms []string `yaml:"forms" json:"forms"`
}

// IntentPhrases lists the phrases counted towards one intent
type IntentPhrases struct {
	Intent  string   `yaml:"intent" json:"intent"`
	Phrases []string `yaml:"phrases" json:"phrases"`
}

// GuideEntry is one row of a size guide
type GuideEntry struct {
	Size string `yaml:"size" json:"size"`
	Note string `yaml:"note" json:"note"`
}

// SizeGuide holds body measurements per size for a product category
type SizeGuide struct {
	Category string       `yaml:"category" json:"category"`
	Entries  []GuideEntry `yaml:"entries" json:"entries"`
}

// Lexicon is the full set of tables. Slice order is significant: intents are
// in tie-break priority, terms in display order, genders in match priority.
type Lexicon struct {
	Intents         []IntentPhrases `yaml:"intents"`
	Colors          []Term          `yaml:"colors"`
	Brands          []Term          `yaml:"brands"`
	Categories      []Term          `yaml:"categories"`
	Styles          []Term          `yaml:"styles"`
	Genders         []Term          `yaml:"genders"`
	StopWords       []string        `yaml:"stop_words"`
	FollowUpMarkers []string        `yaml:"follow_up_markers"`
	SizeGuides      []SizeGuide     `yaml:"size_guides"`
}

// TermSource is implemented by catalogs that can list their live brand and
// category titles.
type TermSource interface {
	BrandTitles(ctx context.Context) ([]string, error)
	CategoryTitles(ctx context.Context) ([]string, error)
}

// Default returns the embedded lexicon
func Default() *Lexicon {
	lex, err := Parse(defaultData)
	if err != nil {
		panic(fmt.Sprintf("lexicon: embedded default is invalid: %v", err))
	}
	return lex
}

// Load reads a lexicon from a YAML file
func Load(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lexicon file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML lexicon. Forms are NFC-normalised and
// lower-cased so that matching only has to do the same to the message.
func Parse(data []byte) (*Lexicon, error) {
	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("failed to decode lexicon: %w", err)
	}
	if len(lex.Intents) == 0 {
		return nil, fmt.Errorf("lexicon has no intents")
	}
	for i := range lex.Intents {
		if lex.Intents[i].Intent == "" {
			return nil, fmt.Errorf("intent at position %d has no name", i)
		}
		lex.Intents[i].Phrases = lowerAll(lex.Intents[i].Phrases)
	}
	for _, terms := range [][]Term{lex.Colors, lex.Brands, lex.Categories, lex.Styles, lex.Genders} {
		for i := range terms {
			if terms[i].Name == "" {
				return nil, fmt.Errorf("term at position %d has no name", i)
			}
			terms[i].Forms = lowerAll(terms[i].Forms)
		}
	}
	lex.StopWords = lowerAll(lex.StopWords)
	lex.FollowUpMarkers = lowerAll(lex.FollowUpMarkers)
	return &lex, nil
}

// SizeGuideFor returns the size guide of a category, if any
func (l *Lexicon) SizeGuideFor(category string) (SizeGuide, bool) {
	category = strings.ToLower(strings.TrimSpace(category))
	for _, g := range l.SizeGuides {
		if strings.ToLower(g.Category) == category {
			return g, true
		}
	}
	return SizeGuide{}, false
}

// Enrich returns a copy of base extended with the brand and category titles
// the source knows about. Titles already covered by a static term are
// skipped, so the static tables keep precedence.
func Enrich(ctx context.Context, base *Lexicon, src TermSource) (*Lexicon, error) {
	brands, err := src.BrandTitles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list brand titles: %w", err)
	}
	categories, err := src.CategoryTitles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list category titles: %w", err)
	}

	out := *base
	out.Brands = appendTitles(base.Brands, brands)
	out.Categories = appendTitles(base.Categories, categories)
	return &out, nil
}

func appendTitles(terms []Term, titles []string) []Term {
	out := make([]Term, len(terms), len(terms)+len(titles))
	copy(out, terms)

	known := make(map[string]bool)
	for _, t := range terms {
		known[strings.ToLower(t.Name)] = true
		for _, f := range t.Forms {
			known[f] = true
		}
	}
	for _, title := range titles {
		form := Fold(title)
		if form == "" || known[form] {
			continue
		}
		known[form] = true
		out = append(out, Term{Name: form, Forms: []string{form}})
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = Fold(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Fold brings text into the form lexicon entries are stored in: NFC,
// lower-case, trimmed. Vietnamese input often arrives decomposed.
func Fold(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(s)))
}
