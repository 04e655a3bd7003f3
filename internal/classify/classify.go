// Package classify maps raw shopper text to an intent, a sentiment and a
// language. It is a deliberately lightweight lexical classifier: ordered
// tables of (pattern, outcome) pairs, no I/O, no model. Support rules are
// checked before product rules so "I want to return these shoes" resolves to
// RETURNS, not PRODUCT_SEARCH.
package classify

import (
	"regexp"
	"strings"

	"shopchat/internal/models"
)

// Result is the full classification of one message.
type Result struct {
	Intent     models.Intent
	Sentiment  models.Sentiment
	Language   string
	Confidence float64
	// Query carries the free-text remainder for PRODUCT_SEARCH.
	Query string
	// Escalate is set on explicit human-agent requests and on negative
	// support messages.
	Escalate bool
}

type intentRule struct {
	pattern    *regexp.Regexp
	intent     models.Intent
	confidence float64
}

// Rule order matters: first match wins within a table, and the tables are
// evaluated support first, product second, generic search last.
var supportRules = []intentRule{
	{regexp.MustCompile(`\b(return|refund|exchange|money back)\b`), models.IntentReturns, 0.9},
	{regexp.MustCompile(`\b(shipping|delivery|deliver|ship)\b`), models.IntentShipping, 0.9},
	{regexp.MustCompile(`\b(track|where is my order|order status)\b`), models.IntentTrackOrder, 0.9},
	{regexp.MustCompile(`\b(help|support|question|contact)\b`), models.IntentHelp, 0.7},
}

var productRules = []intentRule{
	{regexp.MustCompile(`\b(best ?sellers?|most popular|top selling|popular items?)\b`), models.IntentBestsellers, 0.9},
	{regexp.MustCompile(`\b(new arrivals?|newest|latest|just in|what'?s new)\b`), models.IntentNewArrivals, 0.9},
	{regexp.MustCompile(`\b(on sale|sale items?|discount|deals?|clearance|promo)\b`), models.IntentOnSale, 0.9},
	{regexp.MustCompile(`\b(recommend|for me|suggest|pick for me|personali[sz]ed)\b`), models.IntentPersonalized, 0.8},
}

var searchTriggers = regexp.MustCompile(`\b(show me|looking for|do you have|find|search|browse|i want|i need)\b`)

var searchStopPrefixes = []string{
	"show me", "i'm looking for", "im looking for", "looking for",
	"do you have", "do you sell", "find me", "find", "search for",
	"search", "browse", "i want to buy", "i want", "i need",
}

var humanAgentPattern = regexp.MustCompile(`\b(human|real person|live agent|speak to someone|talk to a person|representative)\b`)

var positiveWords = []string{
	"love", "great", "awesome", "amazing", "perfect", "excellent",
	"thanks", "thank you", "good", "wonderful", "nice", "happy",
}

var negativeWords = []string{
	"terrible", "awful", "hate", "angry", "worst", "bad",
	"disappointed", "broken", "useless", "frustrated", "never again", "annoyed",
}

// languageMarkers are common function words unlikely to appear in the other
// supported locales. English is the default, so it carries no table.
var languageMarkers = map[string][]string{
	"es": {"hola", "gracias", "dónde", "donde está", "quiero", "necesito", "tienes", "envío", "por favor"},
	"fr": {"bonjour", "merci", "où", "je cherche", "je veux", "livraison", "s'il vous", "avez-vous"},
	"de": {"hallo", "danke", "wo ist", "ich suche", "ich möchte", "versand", "haben sie", "bitte"},
	"pt": {"olá", "obrigado", "obrigada", "onde está", "quero", "preciso", "você tem", "entrega"},
}

// Classify maps text to the closed intent/sentiment/language sets. It never
// panics; unmatched input resolves to {GENERAL_CHAT, neutral, en}.
func Classify(text string) Result {
	lower := strings.ToLower(strings.TrimSpace(text))
	res := Result{
		Intent:     models.IntentGeneralChat,
		Sentiment:  detectSentiment(lower),
		Language:   detectLanguage(lower),
		Confidence: 0.5,
	}
	if lower == "" {
		res.Sentiment = models.SentimentNeutral
		return res
	}

	if humanAgentPattern.MatchString(lower) {
		res.Intent = models.IntentHelp
		res.Confidence = 0.9
		res.Escalate = true
		return res
	}

	for _, rule := range supportRules {
		if rule.pattern.MatchString(lower) {
			res.Intent = rule.intent
			res.Confidence = rule.confidence
			res.Escalate = res.Sentiment == models.SentimentNegative
			return res
		}
	}
	for _, rule := range productRules {
		if rule.pattern.MatchString(lower) {
			res.Intent = rule.intent
			res.Confidence = rule.confidence
			return res
		}
	}
	if searchTriggers.MatchString(lower) {
		res.Intent = models.IntentProductSearch
		res.Confidence = 0.7
		res.Query = extractQuery(lower)
		return res
	}
	return res
}

// extractQuery strips the search trigger phrase so the catalog gets only the
// subject, e.g. "show me red sneakers" -> "red sneakers".
func extractQuery(lower string) string {
	for _, prefix := range searchStopPrefixes {
		if idx := strings.Index(lower, prefix); idx >= 0 {
			rest := strings.TrimSpace(lower[idx+len(prefix):])
			rest = strings.Trim(rest, "?!.,")
			if rest != "" {
				return rest
			}
		}
	}
	return strings.Trim(lower, "?!.,")
}

func detectSentiment(lower string) models.Sentiment {
	var pos, neg int
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			pos++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			neg++
		}
	}
	switch {
	case pos > neg:
		return models.SentimentPositive
	case neg > pos:
		return models.SentimentNegative
	default:
		return models.SentimentNeutral
	}
}

func detectLanguage(lower string) string {
	best := "en"
	bestHits := 0
	// Fixed evaluation order keeps ties deterministic.
	for _, lang := range Languages()[1:] {
		hits := 0
		for _, m := range languageMarkers[lang] {
			if strings.Contains(lower, m) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = lang, hits
		}
	}
	return best
}

// Languages returns the supported locale set, default first.
func Languages() []string {
	return []string{"en", "es", "fr", "de", "pt"}
}
