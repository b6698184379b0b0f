package poller

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"foerderbande/models"

	lingua "github.com/pemistahl/lingua-go"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// Result is the outcome of processing one fetched item
type Result string

const (
	ResultInserted  Result = "inserted"
	ResultUpdated   Result = "updated"
	ResultSkipped   Result = "skipped"
	ResultDuplicate Result = "duplicate"
)

// minDetectionLength is the number of letters below which language detection is not attempted
const minDetectionLength = 40

var htmlTagRegex = regexp.MustCompile(`<[^>]*>`)

type EntryProcessor struct {
	store               Store
	seen                SeenCache
	detector            lingua.LanguageDetector
	supportedLanguages  map[lingua.Language]string
	confidenceThreshold float64
}

func NewEntryProcessor(store Store, seen SeenCache, config Config) *EntryProcessor {
	p := &EntryProcessor{
		store:               store,
		seen:                seen,
		supportedLanguages:  getSupportedLanguages(),
		confidenceThreshold: config.ConfidenceThreshold,
	}

	if config.DetectLanguage {
		p.detector = NewLanguageDetector(targetLanguagesToLingua(config.Languages, p.supportedLanguages))
	}

	return p
}

// Process stores a fetched item as raw feed entry, filters it and stores it
// as funding call. The returned call is set when the item was stored.
// Items whose link, title and description are unchanged since the last
// stored version are reported as duplicates without touching the store.
func (p *EntryProcessor) Process(ctx context.Context, source models.Source, item models.FetchedItem) (Result, *models.FundingCall, error) {
	title := CleanHTML(item.Title)
	description := CleanHTML(item.Description)
	link := strings.TrimSpace(item.Link)

	if link == "" && strings.HasPrefix(item.GUID, "http") {
		link = strings.TrimSpace(item.GUID)
	}
	if title == "" && link == "" {
		return ResultSkipped, nil, nil
	}

	entryID := models.EntryID(item.Link, item.Title)
	key := contentKey(item)

	if p.seen != nil {
		seen, err := p.seen.Seen(ctx, key)
		if err != nil {
			log.WithFields(log.Fields{
				"source": source.Name,
			}).Warn("Seen cache lookup failed: ", err)
		} else if seen {
			return ResultDuplicate, nil, nil
		}
	}

	if _, err := p.store.UpsertFeedEntry(ctx, models.FeedEntry{
		ID:            entryID,
		FeedSource:    source.Name,
		Title:         item.Title,
		Link:          item.Link,
		Description:   item.Description,
		PublishedDate: item.Published,
		RawContent:    item.Raw,
	}); err != nil {
		return ResultSkipped, nil, fmt.Errorf("failed to store feed entry: %w", err)
	}

	if link == "" {
		log.WithFields(log.Fields{
			"source": source.Name,
			"title":  title,
		}).Debug("Skipping item without link")
		return ResultSkipped, nil, nil
	}
	if title == "" {
		title = link
	}

	text := title + " " + description

	if !MatchesKeywords(text, source.Keywords, source.ExcludeKeywords) {
		return ResultSkipped, nil, nil
	}

	if !HasEnoughLetters(text) || ContainsRepetitivePattern(title) {
		return ResultSkipped, nil, nil
	}

	language, ok := p.DetectLanguage(text, source.Languages)
	if !ok {
		return ResultSkipped, nil, nil
	}

	call := models.FundingCall{
		Title:     title,
		URL:       link,
		Source:    source.Name,
		ExtraData: buildExtraData(item, language, entryID),
	}
	if description != "" {
		call.Description = &description
	}

	stored, inserted, err := p.store.UpsertFundingCall(ctx, call)
	if err != nil {
		return ResultSkipped, nil, fmt.Errorf("failed to store funding call: %w", err)
	}

	if p.seen != nil {
		if err := p.seen.MarkSeen(ctx, key); err != nil {
			log.WithFields(log.Fields{
				"source": source.Name,
			}).Warn("Seen cache update failed: ", err)
		}
	}

	log.WithFields(log.Fields{
		"url":      stored.URL,
		"source":   source.Name,
		"inserted": inserted,
		"language": language,
	}).Debug("Stored funding call")

	if inserted {
		return ResultInserted, &stored, nil
	}
	return ResultUpdated, &stored, nil
}

// contentKey changes whenever a field copied into the funding call changes
func contentKey(item models.FetchedItem) string {
	sum := md5.Sum([]byte(item.Link + "\x00" + item.Title + "\x00" + item.Description))
	return hex.EncodeToString(sum[:])
}

func buildExtraData(item models.FetchedItem, language string, entryID string) map[string]any {
	extra := make(map[string]any, len(item.Extra)+6)
	for k, v := range item.Extra {
		extra[k] = v
	}

	extra["entry_id"] = entryID
	if item.Published != nil {
		extra["published"] = item.Published.UTC().Format(time.RFC3339)
	}
	if item.GUID != "" {
		extra["guid"] = item.GUID
	}
	if item.Author != "" {
		extra["author"] = item.Author
	}
	if len(item.Categories) > 0 {
		extra["categories"] = item.Categories
	}
	if language != "" {
		extra["language"] = language
	}

	return extra
}

// DetectLanguage checks the text against the allowed languages. It returns the
// detected ISO code (empty when detection was not attempted) and whether the
// text should be kept.
func (p *EntryProcessor) DetectLanguage(text string, allowed []string) (string, bool) {
	if p.detector == nil || len(allowed) == 0 {
		return "", true
	}

	letters := lo.CountBy([]rune(text), unicode.IsLetter)
	if letters < minDetectionLength {
		return "", true
	}

	targetLangs := targetLanguagesToLingua(allowed, p.supportedLanguages)
	if len(targetLangs) == 0 {
		return "", true
	}

	var highestConf float64
	var detectedLang lingua.Language

	for _, lang := range targetLangs {
		conf := p.detector.ComputeLanguageConfidence(text, lang)
		if conf > highestConf {
			highestConf = conf
			detectedLang = lang
		}
	}

	if highestConf < p.confidenceThreshold {
		return "", false
	}

	log.Debugf("%s confidence: %.2f (threshold: %.2f)",
		detectedLang.String(), highestConf, p.confidenceThreshold)

	return linguaToISO(detectedLang, p.supportedLanguages), true
}

// CleanHTML removes HTML tags and normalizes whitespace
func CleanHTML(input string) string {
	cleaned := htmlTagRegex.ReplaceAllString(input, " ")
	cleaned = html.UnescapeString(cleaned)
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	return strings.TrimSpace(cleaned)
}

// MatchesKeywords reports whether the text contains one of the include keywords
// (or no include keywords are set) and none of the exclude keywords. A trailing
// asterisk on a keyword is ignored since matching is by substring.
func MatchesKeywords(text string, include []string, exclude []string) bool {
	text = strings.ToLower(text)
	contains := func(keyword string) bool {
		keyword = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(keyword), "*"))
		return keyword != "" && strings.Contains(text, keyword)
	}

	if len(include) > 0 && !lo.SomeBy(include, contains) {
		return false
	}
	return !lo.SomeBy(exclude, contains)
}

// HasEnoughLetters reports whether more than 30% of the characters are letters
func HasEnoughLetters(text string) bool {
	total := utf8.RuneCountInString(text)
	if total == 0 {
		return false
	}

	letterCount := 0
	for _, char := range text {
		if unicode.IsLetter(char) {
			letterCount++
		}
	}

	return float64(letterCount)/float64(total) > 0.30
}

// ContainsRepetitivePattern detects runs of the same symbol and short
// sequences repeated many times. Digits, spaces and punctuation are ignored
// so amounts like 100000 do not count as repetition.
func ContainsRepetitivePattern(text string) bool {
	text = strings.ToLower(text)

	// Split text into clusters (a base rune plus its modifiers)
	clusters := []string{}
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if r == utf8.RuneError || !(unicode.IsLetter(r) || unicode.IsSymbol(r) || r > 0x1F000) {
			continue
		}

		cluster := string(r)
		for i < len(text) {
			r, size = utf8.DecodeRuneInString(text[i:])
			if r == utf8.RuneError {
				break
			}
			// Modifiers, zero-width joiners and variation selectors belong to the previous rune
			if unicode.Is(unicode.Mn, r) || r == '\u200d' || r == '\ufe0f' {
				cluster += string(r)
				i += size
				continue
			}
			break
		}
		clusters = append(clusters, cluster)
	}

	if len(clusters) < 4 {
		return false
	}

	// Check for repeating clusters
	repeatingClusters := 0
	lastCluster := ""
	for _, cluster := range clusters {
		if cluster == lastCluster {
			repeatingClusters++
			if repeatingClusters >= 4 {
				return true
			}
		} else {
			repeatingClusters = 1
			lastCluster = cluster
		}
	}

	// Check for repeating patterns up to 8 clusters long
	for patternLen := 2; patternLen <= 8; patternLen++ {
		if len(clusters) < patternLen*2 {
			continue
		}

		minRepeats := 4
		if patternLen >= 4 {
			minRepeats = 3
		}

		for i := 0; i <= len(clusters)-patternLen*2; i++ {
			pattern := clusters[i : i+patternLen]
			repeats := 1

			for j := i + patternLen; j <= len(clusters)-patternLen; j += patternLen {
				if !sameOrder(pattern, clusters[j:j+patternLen]) {
					break
				}
				repeats++
				if repeats >= minRepeats {
					return true
				}
			}
		}
	}

	return false
}

func sameOrder(a, b []string) bool {
	for k := range a {
		if a[k] != b[k] {
			return false
		}
	}
	return true
}
