package services

import (
	"projectpilot/internal/models"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestExtractUserPreferences(t *testing.T) {
	tests := []struct {
		name      string
		prompt    string
		nickname  string
		language  string
		verbosity string
		wantNil   bool
	}{
		{name: "call me", prompt: "Hi, call me ana please", nickname: "Ana"},
		{name: "my name is", prompt: "My name is Carlos and I lead QA", nickname: "Carlos"},
		{name: "llámame", prompt: "Llámame Ángel", nickname: "Ángel"},
		{name: "me llamo", prompt: "hola, me llamo lucía", nickname: "Lucía"},
		{name: "call me back is not a name", prompt: "call me back later", wantNil: true},
		{name: "spanish request", prompt: "answer in Spanish from now on", language: models.LanguageSpanish},
		{name: "english request", prompt: "por favor responde en inglés", language: models.LanguageEnglish},
		{name: "concise", prompt: "be brief: what's left in the sprint?", verbosity: models.VerbosityConcise},
		{name: "detailed", prompt: "explícame con más detalle el backlog", verbosity: models.VerbosityDetailed},
		{name: "combined", prompt: "Call me Sam and answer in English", nickname: "Sam", language: models.LanguageEnglish},
		{name: "nothing", prompt: "How many open bugs do we have?", wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patch := ExtractUserPreferences(tt.prompt)
			if tt.wantNil {
				if patch != nil {
					t.Fatalf("Expected nil patch, got %+v", patch)
				}
				return
			}
			if patch == nil {
				t.Fatal("Expected a patch, got nil")
			}
			checkPtr(t, "nickname", patch.Nickname, tt.nickname)
			checkPtr(t, "language", patch.PreferredLanguage, tt.language)
			checkPtr(t, "verbosity", patch.VerbosityLevel, tt.verbosity)
		})
	}
}

func checkPtr(t *testing.T, field string, got *string, want string) {
	t.Helper()
	if want == "" {
		if got != nil {
			t.Errorf("Expected no %s, got %q", field, *got)
		}
		return
	}
	if got == nil || *got != want {
		t.Errorf("Expected %s %q, got %v", field, want, got)
	}
}

func TestMergePreferences_PerKeyOverride(t *testing.T) {
	base := models.ConversationMetadata{
		UserPreferences:   models.UserPreferences{PreferredLanguage: "es", Nickname: "Ana"},
		AssistantSettings: models.AssistantSettings{VerbosityLevel: models.VerbosityNormal},
	}

	merged := MergePreferences(base, &models.PreferencePatch{Nickname: strPtr("Anita")})

	if merged.UserPreferences.Nickname != "Anita" {
		t.Errorf("Expected nickname Anita, got %s", merged.UserPreferences.Nickname)
	}
	if merged.UserPreferences.PreferredLanguage != "es" {
		t.Errorf("Expected language to be kept, got %s", merged.UserPreferences.PreferredLanguage)
	}
	if merged.AssistantSettings.VerbosityLevel != models.VerbosityNormal {
		t.Errorf("Expected verbosity to be kept, got %s", merged.AssistantSettings.VerbosityLevel)
	}
	if base.UserPreferences.Nickname != "Ana" {
		t.Error("Expected base metadata to be unmodified")
	}
}

func TestMergePreferences_NilPatch(t *testing.T) {
	base := models.ConversationMetadata{UserPreferences: models.UserPreferences{Nickname: "Ana"}}
	if merged := MergePreferences(base, nil); merged != base {
		t.Errorf("Expected unchanged metadata, got %+v", merged)
	}
}

func TestCombinePatches(t *testing.T) {
	seed := &models.PreferencePatch{PreferredLanguage: strPtr("es")}
	explicit := &models.PreferencePatch{PreferredLanguage: strPtr("en"), Nickname: strPtr("Sam")}

	combined := CombinePatches(seed, explicit)
	if *combined.PreferredLanguage != "en" || *combined.Nickname != "Sam" {
		t.Errorf("Expected explicit values to win, got %+v", combined)
	}
	if CombinePatches(nil, nil) != nil {
		t.Error("Expected nil when both patches are nil")
	}
}

func TestPatchFields(t *testing.T) {
	fields := PatchFields(&models.PreferencePatch{
		PreferredLanguage: strPtr("en"),
		VerbosityLevel:    strPtr(models.VerbosityConcise),
	})

	if len(fields) != 2 {
		t.Fatalf("Expected 2 fields, got %d", len(fields))
	}
	if fields["metadata.userPreferences.preferredLanguage"] != "en" {
		t.Errorf("Unexpected language field: %v", fields)
	}
	if fields["metadata.assistantSettings.verbosityLevel"] != models.VerbosityConcise {
		t.Errorf("Unexpected verbosity field: %v", fields)
	}
	if len(PatchFields(nil)) != 0 {
		t.Error("Expected no fields for nil patch")
	}
}
