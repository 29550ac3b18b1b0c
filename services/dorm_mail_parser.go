package services

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ncnu-assistant/dormmail-backend/models"
	"github.com/ncnu-assistant/dormmail-backend/shared"
	"github.com/sirupsen/logrus"
)

// FieldDelimiter separates columns in the legacy page's plain-text layout
const FieldDelimiter = "　"

// recordWindow is the number of tokens following the date marker in one record
const recordWindow = 6

var (
	bodyContentRegex = regexp.MustCompile(`(?is)<body[^>]*>(.*?)</body>`)
	htmlTagRegex     = regexp.MustCompile(`<[^>]*>`)
	dateMarkerRegex  = regexp.MustCompile(`20\d{2}/\d{1,2}/\d{1,2}`)
)

// Tokenizer turns the decoded page into the ordered stream of non-empty fields
type Tokenizer interface {
	Tokenize(html string) []string
}

// RegexTokenizer isolates <body>, strips tags and splits on the fullwidth space.
// It is best-effort and has no notion of nesting or entities.
type RegexTokenizer struct{}

// NewRegexTokenizer creates the default tokenizer
func NewRegexTokenizer() *RegexTokenizer {
	return &RegexTokenizer{}
}

// Tokenize implements Tokenizer
func (t *RegexTokenizer) Tokenize(html string) []string {
	match := bodyContentRegex.FindStringSubmatch(html)
	if match == nil {
		return []string{}
	}

	bodyText := htmlTagRegex.ReplaceAllString(match[1], "")
	return SplitFields(bodyText)
}

// GoqueryTokenizer reads the body text through a real HTML parser.
// Output follows the same split and trim rules as RegexTokenizer.
type GoqueryTokenizer struct{}

// NewGoqueryTokenizer creates the HTML-parser tokenizer
func NewGoqueryTokenizer() *GoqueryTokenizer {
	return &GoqueryTokenizer{}
}

// Tokenize implements Tokenizer
func (t *GoqueryTokenizer) Tokenize(html string) []string {
	// the parser synthesizes a body for any document, so require a real one
	if !bodyContentRegex.MatchString(html) {
		return []string{}
	}

	document, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"component": "GoqueryTokenizer",
			"error":     err,
		}).Warn("Failed to parse dorm mail HTML")
		return []string{}
	}

	return SplitFields(document.Find("body").First().Text())
}

// NewTokenizer returns the tokenizer registered under name
func NewTokenizer(name string) Tokenizer {
	if name == shared.TokenizerGoquery {
		return NewGoqueryTokenizer()
	}
	return NewRegexTokenizer()
}

// SplitFields splits text on U+3000, trims each piece and drops empty ones
func SplitFields(text string) []string {
	parts := strings.Split(text, FieldDelimiter)
	fields := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			fields = append(fields, trimmed)
		}
	}
	return fields
}

// IsDateMarker reports whether a token looks like an arrival date (YYYY/M/D, year 20xx)
func IsDateMarker(token string) bool {
	return strings.Contains(token, "/") && dateMarkerRegex.MatchString(token)
}

// ExtractMailRecords scans tokens left to right for date markers and rebuilds the
// fixed-width record around each one. A record consumes its window (cursor += 7);
// anything else moves the cursor by one token.
func ExtractMailRecords(tokens []string) []models.MailRecord {
	records := make([]models.MailRecord, 0)

	i := 0
	for i < len(tokens) {
		if IsDateMarker(tokens[i]) && i > 0 && i+recordWindow < len(tokens) {
			record := models.MailRecord{
				ID:               strings.TrimSpace(tokens[i-1]),
				ArrivalTime:      strings.TrimSpace(tokens[i]),
				Recipient:        strings.TrimSpace(tokens[i+1]),
				Carrier:          strings.TrimSpace(tokens[i+2]),
				Type:             strings.TrimSpace(tokens[i+3]),
				TrackingNumber:   strings.TrimSpace(tokens[i+4]),
				Department:       strings.TrimSpace(tokens[i+5]),
				DaysSinceArrival: strings.TrimSpace(tokens[i+6]),
			}

			if record.ID != "" && record.Recipient != "" {
				records = append(records, record)
				i += recordWindow + 1
				continue
			}
		}
		i++
	}

	return records
}

// MailExtractor hides the tokenizer and extractor pair from callers
type MailExtractor interface {
	Extract(html string) []models.MailRecord
}

// TokenMailExtractor runs a Tokenizer followed by ExtractMailRecords
type TokenMailExtractor struct {
	tokenizer Tokenizer
}

// NewTokenMailExtractor wraps tokenizer; a nil tokenizer falls back to the regex one
func NewTokenMailExtractor(tokenizer Tokenizer) *TokenMailExtractor {
	if tokenizer == nil {
		tokenizer = NewRegexTokenizer()
	}
	return &TokenMailExtractor{tokenizer: tokenizer}
}

// Extract implements MailExtractor
func (e *TokenMailExtractor) Extract(html string) []models.MailRecord {
	tokens := e.tokenizer.Tokenize(html)
	records := ExtractMailRecords(tokens)

	logrus.WithFields(logrus.Fields{
		"component":    "TokenMailExtractor",
		"token_count":  len(tokens),
		"record_count": len(records),
	}).Debug("Extracted dorm mail records")

	return records
}
