package poller

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
	"github.com/samber/lo"
)

// NewLanguageDetector builds a detector for the given languages. English and
// German are added so the detector always has at least two candidates.
func NewLanguageDetector(targetLangs []lingua.Language) lingua.LanguageDetector {
	languages := lo.Uniq(append([]lingua.Language{lingua.English, lingua.German}, targetLangs...))

	return lingua.NewLanguageDetectorBuilder().
		FromLanguages(languages...).
		WithMinimumRelativeDistance(0.25).
		Build()
}

// linguaToISO maps a lingua language to its lower case ISO 639-1 code
func linguaToISO(lang lingua.Language, languages map[lingua.Language]string) string {
	if code, ok := languages[lang]; ok {
		return code
	}
	return ""
}

// isoToLingua maps an ISO 639-1 code to a lingua language
func isoToLingua(code string, languages map[lingua.Language]string) (lingua.Language, bool) {
	code = strings.ToLower(code)
	for lang, isoCode := range languages {
		if isoCode == code {
			return lang, true
		}
	}
	return lingua.Unknown, false
}

func getSupportedLanguages() map[lingua.Language]string {
	languages := make(map[lingua.Language]string)

	// Map all lingua languages to their ISO 639-1 codes
	for _, lang := range lingua.AllLanguages() {
		isoCode := strings.ToLower(lang.IsoCode639_1().String())
		languages[lang] = isoCode
	}

	return languages
}

func targetLanguagesToLingua(languages []string, supported map[lingua.Language]string) []lingua.Language {
	linguaLanguages := []lingua.Language{}

	for _, lang := range languages {
		linguaLang, ok := isoToLingua(lang, supported)
		if ok {
			linguaLanguages = append(linguaLanguages, linguaLang)
		}
	}

	return linguaLanguages
}
