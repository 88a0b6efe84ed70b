package services

import (
	"projectpilot/internal/models"
	"strings"
)

// spanishMarkerThreshold is the number of distinct marker words that classify text as Spanish
const spanishMarkerThreshold = 2

const spanishChars = "áéíóúüñ¿¡"

// LanguageDetector picks the reply locale from prompt text
type LanguageDetector struct {
	vocab VocabularyProvider
}

// NewLanguageDetector creates a detector over the given vocabulary
func NewLanguageDetector(vocab VocabularyProvider) *LanguageDetector {
	return &LanguageDetector{vocab: vocab}
}

// DetectLanguage returns "es" when the text has a Spanish-only character or at
// least two distinct Spanish marker words, otherwise "en"
func (d *LanguageDetector) DetectLanguage(text string) string {
	lower := strings.ToLower(text)
	if strings.ContainsAny(lower, spanishChars) {
		return models.LanguageSpanish
	}

	normalized := normalizeText(lower)
	seen := make(map[string]bool)
	for _, marker := range d.vocab.Vocabulary().SpanishMarkers {
		key := strings.TrimSpace(normalizeText(marker))
		if key == "" || seen[key] {
			continue
		}
		if containsKeyword(normalized, key) {
			seen[key] = true
			if len(seen) >= spanishMarkerThreshold {
				return models.LanguageSpanish
			}
		}
	}
	return models.LanguageEnglish
}
