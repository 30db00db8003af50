package nlu

import (
	"strings"

	"shopassistant/internal/lexicon"
)

// Intent is the coarse purpose of a message
type Intent string

const (
	IntentProductSearch Intent = "product_search"
	IntentSizeHelp      Intent = "size_help"
	IntentOrderHelp     Intent = "order_help"
	IntentGreeting      Intent = "greeting"
	IntentPriceInquiry  Intent = "price_inquiry"
	IntentGeneral       Intent = "general"
)

// Classifier scores a message against the phrase list of every intent
type Classifier struct {
	intents []lexicon.IntentPhrases
}

// NewClassifier creates a classifier over the lexicon's intent table
func NewClassifier(lex *lexicon.Lexicon) *Classifier {
	return &Classifier{intents: lex.Intents}
}

// Classify returns the intent with the most phrase hits. Ties go to the
// intent listed first in the lexicon; no hits at all yields IntentGeneral.
func (c *Classifier) Classify(text string) Intent {
	text = lexicon.Fold(text)

	best := IntentGeneral
	bestScore := 0
	for _, ip := range c.intents {
		score := 0
		for _, phrase := range ip.Phrases {
			if strings.Contains(text, phrase) {
				score++
			}
		}
		if score > bestScore {
			best = Intent(ip.Intent)
			bestScore = score
		}
	}
	return best
}
