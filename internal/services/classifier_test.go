package services

import (
	"os"
	"path/filepath"
	"projectpilot/internal/models"
	"testing"
)

func TestRelevanceClassifier_DecisionTable(t *testing.T) {
	classifier := NewRelevanceClassifier(DefaultVocabulary())

	tests := []struct {
		prompt string
		want   bool
	}{
		{"What is the weather today?", false},
		{"Give me a pasta recipe", false},
		{"¿Qué tiempo hace en Madrid?", false},
		{"Is the weather going to delay the sprint?", true},
		{"How many bugs are open?", true},
		{"¿Cuántas tareas tengo pendientes?", true},
		{"hello there", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			if got := classifier.IsInDomain(tt.prompt); got != tt.want {
				t.Errorf("IsInDomain(%q) = %v, want %v", tt.prompt, got, tt.want)
			}
		})
	}
}

func TestRelevanceClassifier_InDomainKeywordAlwaysWins(t *testing.T) {
	classifier := NewRelevanceClassifier(DefaultVocabulary())
	offTopic := "tell me a joke about the weather"

	if classifier.IsInDomain(offTopic) {
		t.Fatalf("Expected %q to be off-topic", offTopic)
	}

	for _, kw := range []string{"sprint", "backlog", "leaderboard", "tareas", "proyecto"} {
		prompt := offTopic + " and the " + kw
		if !classifier.IsInDomain(prompt) {
			t.Errorf("Expected in-domain keyword %q to flip the decision", kw)
		}
	}
}

func TestRelevanceClassifier_WholeWordsOnly(t *testing.T) {
	vocab := &Vocabulary{InDomain: []string{"task"}, OffTopic: []string{"cook"}}
	classifier := NewRelevanceClassifier(vocab)

	// "cookie" must not match "cook", "multitask" must not match "task"
	if !classifier.IsInDomain("I ate a cookie while doing multitask work") {
		t.Error("Expected partial-word matches to be ignored")
	}
	if classifier.IsInDomain("how do I cook rice") {
		t.Error("Expected whole-word off-topic match to reject")
	}
}

func TestRelevanceClassifier_SubstitutedVocabulary(t *testing.T) {
	vocab := &Vocabulary{InDomain: []string{"widget"}, OffTopic: []string{"sprint"}}
	classifier := NewRelevanceClassifier(vocab)

	if classifier.IsInDomain("when does the sprint end") {
		t.Error("Expected custom off-topic keyword to reject")
	}
	if !classifier.IsInDomain("sprint widget status") {
		t.Error("Expected custom in-domain keyword to accept")
	}
}

func TestLanguageDetector(t *testing.T) {
	detector := NewLanguageDetector(DefaultVocabulary())

	tests := []struct {
		name string
		text string
		want string
	}{
		{"inverted question mark", "¿Quién está trabajando en la tarea X?", models.LanguageSpanish},
		{"single diacritic", "mañana", models.LanguageSpanish},
		{"uppercase diacritic", "ÁREA", models.LanguageSpanish},
		{"two markers without accents", "dame las tareas", models.LanguageSpanish},
		{"one marker only", "show me la lista", models.LanguageEnglish},
		{"repeated single marker", "la la la la", models.LanguageEnglish},
		{"plain english", "Who is working on task X?", models.LanguageEnglish},
		{"empty", "", models.LanguageEnglish},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detector.DetectLanguage(tt.text); got != tt.want {
				t.Errorf("DetectLanguage(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

func TestLoadVocabulary_MissingListsKeepDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.yaml")
	content := "in_domain:\n  - widget\n  - gizmo\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write vocabulary file: %v", err)
	}

	vocab, err := LoadVocabulary(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(vocab.InDomain) != 2 || vocab.InDomain[0] != "widget" {
		t.Errorf("Expected custom in-domain list, got %v", vocab.InDomain)
	}
	if len(vocab.OffTopic) != len(DefaultVocabulary().OffTopic) {
		t.Errorf("Expected default off-topic list, got %d entries", len(vocab.OffTopic))
	}
}

func TestVocabularyStore_ReloadKeepsPreviousOnError(t *testing.T) {
	store := NewVocabularyStore(DefaultVocabulary())
	before := store.Vocabulary()

	if err := store.Reload(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Expected error for missing file")
	}
	if store.Vocabulary() != before {
		t.Error("Expected active vocabulary to be unchanged after failed reload")
	}

	path := filepath.Join(t.TempDir(), "vocab.yaml")
	os.WriteFile(path, []byte("off_topic: [sprint]\n"), 0644)
	if err := store.Reload(path); err != nil {
		t.Fatalf("Expected reload to succeed, got %v", err)
	}

	classifier := NewRelevanceClassifier(store)
	if !classifier.IsInDomain("give me a recipe") {
		t.Error("Expected recipe to be accepted once the off-topic list is replaced")
	}
	if got := store.Vocabulary().OffTopic; len(got) != 1 || got[0] != "sprint" {
		t.Errorf("Expected reloaded off-topic list, got %v", got)
	}
}
