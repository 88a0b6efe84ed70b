package services

import (
	"projectpilot/internal/models"
	"regexp"
	"strings"
	"unicode"
)

var (
	// Only the first word after the phrase is taken, so "call me Ana please" yields "Ana"
	nicknamePattern = regexp.MustCompile(`(?i)\b(?:call me|my name is|i'm called|llámame|llamame|me llamo|mi nombre es)\s+([\p{L}][\p{L}'-]*)`)

	spanishRequestPattern = regexp.MustCompile(`(?i)\b(?:in spanish|en español|en espanol|habla(?:me)? en español|responde en español)\b`)
	englishRequestPattern = regexp.MustCompile(`(?i)\b(?:in english|en inglés|en ingles|speak english|responde en inglés)\b`)

	concisePattern  = regexp.MustCompile(`(?i)\b(?:be brief|keep it short|shorter answers|sé breve|se breve|respuestas cortas|más corto|mas corto)\b`)
	detailedPattern = regexp.MustCompile(`(?i)\b(?:more detail|in detail|detailed answers|más detalle|mas detalle|con detalle|explica(?:me)? a fondo)\b`)
)

// Words that commonly follow "call me" but are not names
var nicknameStopWords = map[string]bool{
	"back": true, "later": true, "when": true, "if": true, "a": true, "an": true, "the": true,
	"cuando": true, "luego": true, "si": true, "un": true, "una": true,
}

// ExtractUserPreferences scans a prompt for explicit preference statements.
// Returns nil when none are found.
func ExtractUserPreferences(prompt string) *models.PreferencePatch {
	patch := &models.PreferencePatch{}

	if m := nicknamePattern.FindStringSubmatch(prompt); m != nil {
		name := strings.Trim(m[1], "'-")
		if name != "" && !nicknameStopWords[strings.ToLower(name)] {
			runes := []rune(name)
			runes[0] = unicode.ToUpper(runes[0])
			name = string(runes)
			patch.Nickname = &name
		}
	}

	switch {
	case spanishRequestPattern.MatchString(prompt):
		lang := models.LanguageSpanish
		patch.PreferredLanguage = &lang
	case englishRequestPattern.MatchString(prompt):
		lang := models.LanguageEnglish
		patch.PreferredLanguage = &lang
	}

	switch {
	case concisePattern.MatchString(prompt):
		level := models.VerbosityConcise
		patch.VerbosityLevel = &level
	case detailedPattern.MatchString(prompt):
		level := models.VerbosityDetailed
		patch.VerbosityLevel = &level
	}

	if patch.IsEmpty() {
		return nil
	}
	return patch
}

// MergePreferences applies patch on top of base. Each non-nil patch field
// overrides the matching key; all other keys are kept. base is not modified.
func MergePreferences(base models.ConversationMetadata, patch *models.PreferencePatch) models.ConversationMetadata {
	merged := base
	if patch == nil {
		return merged
	}
	if patch.PreferredLanguage != nil {
		merged.UserPreferences.PreferredLanguage = *patch.PreferredLanguage
	}
	if patch.Nickname != nil {
		merged.UserPreferences.Nickname = *patch.Nickname
	}
	if patch.VerbosityLevel != nil {
		merged.AssistantSettings.VerbosityLevel = *patch.VerbosityLevel
	}
	return merged
}

// CombinePatches overlays b on a; b wins per key
func CombinePatches(a, b *models.PreferencePatch) *models.PreferencePatch {
	if a.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return a
	}
	out := *a
	if b.PreferredLanguage != nil {
		out.PreferredLanguage = b.PreferredLanguage
	}
	if b.Nickname != nil {
		out.Nickname = b.Nickname
	}
	if b.VerbosityLevel != nil {
		out.VerbosityLevel = b.VerbosityLevel
	}
	return &out
}

// PatchFields flattens a patch into dotted metadata paths for a $set update
func PatchFields(patch *models.PreferencePatch) map[string]interface{} {
	fields := make(map[string]interface{})
	if patch == nil {
		return fields
	}
	if patch.PreferredLanguage != nil {
		fields["metadata.userPreferences.preferredLanguage"] = *patch.PreferredLanguage
	}
	if patch.Nickname != nil {
		fields["metadata.userPreferences.nickname"] = *patch.Nickname
	}
	if patch.VerbosityLevel != nil {
		fields["metadata.assistantSettings.verbosityLevel"] = *patch.VerbosityLevel
	}
	return fields
}
