package services

import (
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/ncnu-assistant/dormmail-backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleRecord = models.MailRecord{
	ID:               "1234",
	ArrivalTime:      "2024/10/01",
	Recipient:        "王Ｏ明",
	Carrier:          "黑貓",
	Type:             "包裹",
	TrackingNumber:   "9876543210",
	Department:       "資工系碩1",
	DaysSinceArrival: "3.17",
}

func recordFields(r models.MailRecord) []string {
	return []string{r.ID, r.ArrivalTime, r.Recipient, r.Carrier, r.Type, r.TrackingNumber, r.Department, r.DaysSinceArrival}
}

func renderPage(rows ...[]string) string {
	var b strings.Builder
	b.WriteString("<html><head><title>宿舍郵件</title></head><body>")
	b.WriteString("<p>序號　到件時間　收件人　貨運　類別　單號　系級　天數　</p>")
	for _, row := range rows {
		b.WriteString("<div>")
		b.WriteString(strings.Join(row, "　"))
		b.WriteString("　</div>")
	}
	b.WriteString("</body></html>")
	return b.String()
}

func TestExtractMailRecordsValidWindow(t *testing.T) {
	tokens := recordFields(sampleRecord)

	records := ExtractMailRecords(tokens)

	require.Len(t, records, 1)
	assert.Equal(t, sampleRecord, records[0])
}

func TestExtractMailRecordsInsufficientWindow(t *testing.T) {
	tokens := recordFields(sampleRecord)[:7]

	records := ExtractMailRecords(tokens)

	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestExtractMailRecordsDateAtStart(t *testing.T) {
	tokens := recordFields(sampleRecord)[1:]
	tokens = append(tokens, "extra")

	assert.Empty(t, ExtractMailRecords(tokens))
}

func TestExtractMailRecordsSkipsEmptyIDOrRecipient(t *testing.T) {
	emptyID := recordFields(sampleRecord)
	emptyID[0] = " "
	assert.Empty(t, ExtractMailRecords(emptyID))

	emptyRecipient := recordFields(sampleRecord)
	emptyRecipient[2] = ""
	assert.Empty(t, ExtractMailRecords(emptyRecipient))
}

func TestExtractMailRecordsCursorAdvance(t *testing.T) {
	cases := []struct {
		name       string
		tokens     []string
		ids        []string
		recipients []string
	}{
		{
			name:       "rejected window moves one token and finds the record inside it",
			tokens:     []string{"1", "2024/1/1", "", "x", "9", "2024/2/2", "王Ｏ明", "黑貓", "包裹", "123", "資工系1", "1.5"},
			ids:        []string{"9"},
			recipients: []string{"王Ｏ明"},
		},
		{
			name:       "accepted window consumes an inner date token",
			tokens:     []string{"1", "2024/1/1", "2024/1/2", "a", "b", "c", "d", "e", "f"},
			ids:        []string{"1"},
			recipients: []string{"2024/1/2"},
		},
		{
			name:       "empty id is rejected and the following record still parses",
			tokens:     []string{" ", "2024/1/1", "李Ｏ華", "9", "2024/3/3", "王Ｏ明", "郵局", "掛號", "555", "國企系2", "0.2"},
			ids:        []string{"9"},
			recipients: []string{"王Ｏ明"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			records := ExtractMailRecords(tc.tokens)

			ids := make([]string, 0, len(records))
			recipients := make([]string, 0, len(records))
			for _, record := range records {
				ids = append(ids, record.ID)
				recipients = append(recipients, record.Recipient)
			}
			assert.Equal(t, tc.ids, ids)
			assert.Equal(t, tc.recipients, recipients)
		})
	}
}

func TestExtractMailRecordsConsecutiveRecords(t *testing.T) {
	second := sampleRecord
	second.ID = "1235"
	second.ArrivalTime = "2024/9/28"
	second.Recipient = "李Ｏ華"

	tokens := append([]string{"header", "noise"}, recordFields(sampleRecord)...)
	tokens = append(tokens, recordFields(second)...)

	records := ExtractMailRecords(tokens)

	require.Len(t, records, 2)
	assert.Equal(t, sampleRecord, records[0])
	assert.Equal(t, second, records[1])
}

func TestExtractMailRecordsEmptyInput(t *testing.T) {
	records := ExtractMailRecords(nil)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestIsDateMarker(t *testing.T) {
	assert.True(t, IsDateMarker("2024/10/01"))
	assert.True(t, IsDateMarker("2024/1/5"))
	assert.True(t, IsDateMarker("到件 2023/12/31 10:00"))
	assert.False(t, IsDateMarker("1999/10/01"))
	assert.False(t, IsDateMarker("2024-10-01"))
	assert.False(t, IsDateMarker("20241001"))
	assert.False(t, IsDateMarker(""))
}

func TestSplitFields(t *testing.T) {
	fields := SplitFields("  a　 b 　　\n　c　")
	assert.Equal(t, []string{"a", "b", "c"}, fields)
	assert.Empty(t, SplitFields("　　"))
}

func TestRegexTokenizerRequiresBody(t *testing.T) {
	tokenizer := NewRegexTokenizer()

	assert.Empty(t, tokenizer.Tokenize("<html><p>2024/10/01</p></html>"))
	assert.Empty(t, tokenizer.Tokenize(""))
}

func TestRegexTokenizerStripsTags(t *testing.T) {
	tokens := NewRegexTokenizer().Tokenize(`<BODY class="x"><b>甲</b>　<i>乙</i>　</BODY>`)
	assert.Equal(t, []string{"甲", "乙"}, tokens)
}

func TestTokenizersAgreeOnSamplePage(t *testing.T) {
	page := renderPage(recordFields(sampleRecord))

	regexTokens := NewRegexTokenizer().Tokenize(page)
	goqueryTokens := NewGoqueryTokenizer().Tokenize(page)

	assert.Equal(t, regexTokens, goqueryTokens)
	assert.Equal(t, []models.MailRecord{sampleRecord}, ExtractMailRecords(goqueryTokens))
}

func TestGoqueryTokenizerRequiresBody(t *testing.T) {
	assert.Empty(t, NewGoqueryTokenizer().Tokenize("<p>2024/10/01</p>"))
}

func TestNewTokenizer(t *testing.T) {
	assert.IsType(t, &GoqueryTokenizer{}, NewTokenizer("goquery"))
	assert.IsType(t, &RegexTokenizer{}, NewTokenizer("regex"))
	assert.IsType(t, &RegexTokenizer{}, NewTokenizer("unknown"))
}

func TestTokenMailExtractorEndToEnd(t *testing.T) {
	extractor := NewTokenMailExtractor(nil)

	records := extractor.Extract(renderPage(recordFields(sampleRecord)))

	require.Len(t, records, 1)
	assert.Equal(t, sampleRecord, records[0])
	assert.Empty(t, extractor.Extract("<html>no body here</html>"))
}

// fieldGen produces non-empty tokens without the delimiter, tags or surrounding space
func fieldGen() gopter.Gen {
	return gen.OneConstOf("1234", "王Ｏ明", "黑貓", "包裹", "資工系碩1", "3.17", "A", "郵局", "12.5", "掛號")
}

func TestTokenizerRoundTripProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("Joining fields with U+3000 inside <body> tokenizes back to the same fields", prop.ForAll(
		func(fields []string) bool {
			page := "<html><body>" + strings.Join(fields, FieldDelimiter) + "</body></html>"
			tokens := NewRegexTokenizer().Tokenize(page)
			if len(fields) == 0 {
				return len(tokens) == 0
			}
			if len(tokens) != len(fields) {
				return false
			}
			for i := range fields {
				if tokens[i] != fields[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(fieldGen()),
	))

	properties.Property("Tokens are never empty and never carry surrounding whitespace", prop.ForAll(
		func(parts []string) bool {
			for _, token := range SplitFields(strings.Join(parts, FieldDelimiter)) {
				if token == "" || token != strings.TrimSpace(token) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.OneConstOf("", " ", " a ", "\tb", "c\n", "　", "d")),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestDateMarkerProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("Any 20xx/M/D date is a marker", prop.ForAll(
		func(year, month, day int) bool {
			return IsDateMarker(strings.Join([]string{strconv.Itoa(year), strconv.Itoa(month), strconv.Itoa(day)}, "/"))
		},
		gen.IntRange(2000, 2099),
		gen.IntRange(1, 12),
		gen.IntRange(1, 31),
	))

	properties.Property("Tokens without a slash are never markers", prop.ForAll(
		func(token string) bool {
			return !IsDateMarker(strings.ReplaceAll(token, "/", ""))
		},
		gen.AnyString(),
	))

	properties.Property("A marker with a full window always yields exactly one record", prop.ForAll(
		func(year, month, day int) bool {
			record := sampleRecord
			record.ArrivalTime = strings.Join([]string{strconv.Itoa(year), strconv.Itoa(month), strconv.Itoa(day)}, "/")
			records := ExtractMailRecords(recordFields(record))
			return len(records) == 1 && records[0] == record
		},
		gen.IntRange(2000, 2099),
		gen.IntRange(1, 12),
		gen.IntRange(1, 31),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
