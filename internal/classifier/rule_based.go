package classifier

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"leadflow/internal/constants"
	"leadflow/internal/models"
)

// RuleBased classifies with ordered regular expressions and keyword lists.
// It is deterministic, local and never fails.
type RuleBased struct{}

// NewRuleBased returns the rule-based classifier.
func NewRuleBased() *RuleBased {
	return &RuleBased{}
}

func (r *RuleBased) Classify(_ context.Context, text string, _ Options) (*models.ClassificationResult, error) {
	return r.classify(text), nil
}

func (r *RuleBased) classify(text string) *models.ClassificationResult {
	text = strings.TrimSpace(text)
	result := &models.ClassificationResult{
		Intent:     models.IntentUnknown,
		Confidence: 0,
		Sentiment:  models.SentimentNeutral,
		Urgency:    models.UrgencyLow,
		Entities:   emptyEntities(),
		Summary:    summarize(text),
		Source:     models.SourceRuleBased,
	}
	if utf8.RuneCountInString(text) < constants.MinClassifiableRunes {
		return result
	}

	result.Intent, result.Confidence = matchIntent(text)
	result.Sentiment = analyzeSentiment(text)
	result.Urgency = assessUrgency(text, result.Intent, result.Sentiment)
	result.Entities = extractEntities(text)
	return result
}

func matchIntent(text string) (models.Intent, float64) {
	for _, rule := range intentRules {
		for _, p := range rule.patterns {
			if p.MatchString(text) {
				return rule.intent, constants.RuleMatchConfidence
			}
		}
	}
	return models.IntentGeneralQuestion, constants.RuleDefaultConfidence
}

// sentimentScore returns (pos-neg)/(pos+neg) in [-1, 1], or 0 without keywords.
func sentimentScore(text string) float64 {
	lower := strings.ToLower(text)
	pos, neg := 0, 0
	for _, kw := range positiveKeywords {
		pos += strings.Count(lower, kw)
	}
	for _, kw := range negativeKeywords {
		neg += strings.Count(lower, kw)
	}
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}

func analyzeSentiment(text string) models.Sentiment {
	score := sentimentScore(text)
	switch {
	case score < -constants.SentimentThreshold:
		return models.SentimentNegative
	case score > constants.SentimentThreshold:
		return models.SentimentPositive
	default:
		return models.SentimentNeutral
	}
}

func assessUrgency(text string, intent models.Intent, sentiment models.Sentiment) models.Urgency {
	lower := strings.ToLower(text)
	for _, kw := range urgencyKeywords {
		if strings.Contains(lower, kw) {
			return models.UrgencyHigh
		}
	}
	if sentiment == models.SentimentNegative || intent == models.IntentComplaint {
		return models.UrgencyMedium
	}
	return models.UrgencyLow
}

func extractEntities(text string) models.Entities {
	entities := emptyEntities()

	for _, m := range orderNumberPattern.FindAllStringSubmatch(text, -1) {
		entities.OrderNumbers = appendUnique(entities.OrderNumbers, m[1])
	}
	for _, v := range valuePattern.FindAllString(text, -1) {
		entities.Values = appendUnique(entities.Values, strings.TrimSpace(v))
	}
	for _, d := range numericDatePattern.FindAllString(text, -1) {
		entities.Dates = appendUnique(entities.Dates, d)
	}
	for _, d := range relativeDatePattern.FindAllString(text, -1) {
		entities.Dates = appendUnique(entities.Dates, strings.ToLower(d))
	}

	// Numbers already claimed by orders, values or dates must not read as quantities.
	masked := mask(text, orderNumberPattern, valuePattern, numericDatePattern)
	entities.Products = extractProducts(masked)
	return entities
}

func extractProducts(text string) []string {
	products := []string{}
	var claimed [][2]int

	for _, m := range quantityPattern.FindAllStringSubmatchIndex(text, -1) {
		qty := text[m[2]:m[3]]
		word := text[m[4]:m[5]]
		if productStopwords[strings.ToLower(word)] || qty == "0" {
			continue
		}
		product := qty + " " + word
		if m[6] >= 0 {
			product += " " + strings.TrimRight(text[m[6]:m[7]], ".-/")
		}
		products = appendUnique(products, product)
		claimed = append(claimed, [2]int{m[2], m[1]})
	}

	for _, m := range knownProductPattern.FindAllStringSubmatchIndex(text, -1) {
		if overlaps(claimed, m[0], m[1]) {
			continue
		}
		product := strings.ToLower(text[m[2]:m[3]])
		if m[4] >= 0 {
			product += " " + strings.TrimRight(text[m[4]:m[5]], ".-/")
		}
		products = appendUnique(products, product)
	}
	return products
}

func overlaps(spans [][2]int, start, end int) bool {
	for _, s := range spans {
		if start < s[1] && end > s[0] {
			return true
		}
	}
	return false
}

// mask blanks every match of the given patterns, preserving byte offsets.
func mask(text string, patterns ...*regexp.Regexp) string {
	b := []byte(text)
	for _, p := range patterns {
		for _, loc := range p.FindAllStringIndex(text, -1) {
			for i := loc[0]; i < loc[1]; i++ {
				b[i] = ' '
			}
		}
	}
	return string(b)
}

func summarize(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= constants.MaxSummaryRunes {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:constants.MaxSummaryRunes])) + "..."
}

func emptyEntities() models.Entities {
	return models.Entities{
		Products:     []string{},
		Values:       []string{},
		Dates:        []string{},
		OrderNumbers: []string{},
	}
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
