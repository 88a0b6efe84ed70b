package services

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Vocabulary is the keyword configuration for the relevance classifier and
// the language detector. Entries may be single words or short phrases.
type Vocabulary struct {
	InDomain       []string `yaml:"in_domain"`
	OffTopic       []string `yaml:"off_topic"`
	SpanishMarkers []string `yaml:"spanish_markers"`
}

// VocabularyProvider supplies the vocabulary in effect right now
type VocabularyProvider interface {
	Vocabulary() *Vocabulary
}

// Vocabulary lets a fixed *Vocabulary be used as its own provider
func (v *Vocabulary) Vocabulary() *Vocabulary { return v }

// DefaultVocabulary returns the built-in bilingual keyword lists
func DefaultVocabulary() *Vocabulary {
	return &Vocabulary{
		InDomain: []string{
			// English
			"project", "projects", "task", "tasks", "sprint", "sprints", "backlog",
			"story", "stories", "user story", "bug", "bugs", "epic", "epics",
			"team", "teammate", "member", "members", "role", "roles", "permission", "permissions",
			"deadline", "due", "progress", "status", "milestone", "roadmap",
			"point", "points", "badge", "badges", "level", "leaderboard", "ranking", "rank",
			"activity", "assign", "assigned", "assignee", "estimate", "velocity", "priority",
			"board", "kanban", "scrum", "standup", "retrospective", "planning",
			"working on", "in progress", "to do", "todo", "done", "blocked",
			// Spanish
			"proyecto", "proyectos", "tarea", "tareas", "equipo", "miembro", "miembros",
			"rol", "permiso", "permisos", "historia", "historias", "historia de usuario",
			"error", "errores", "épica", "épicas", "plazo", "fecha límite", "progreso", "estado",
			"hito", "puntos", "insignia", "insignias", "nivel", "clasificación",
			"actividad", "asignar", "asignado", "asignada", "asignadas", "estimación",
			"prioridad", "tablero", "retrospectiva", "planificación",
			"trabajando", "pendiente", "pendientes", "terminado", "terminada", "bloqueado", "bloqueada",
		},
		OffTopic: []string{
			// English
			"weather", "forecast", "recipe", "recipes", "cook", "cooking", "movie", "movies",
			"football", "soccer", "basketball", "celebrity", "horoscope", "joke", "jokes",
			"trivia", "lyrics", "song", "songs", "politics", "election", "capital of",
			// Spanish
			"clima", "pronóstico", "qué tiempo hace", "receta", "recetas", "cocinar",
			"película", "películas", "fútbol", "futbol", "baloncesto", "famoso", "horóscopo",
			"chiste", "chistes", "canción", "canciones", "letra de", "política", "elecciones",
			"capital de",
		},
		SpanishMarkers: []string{
			"el", "la", "los", "las", "del", "que", "qué", "por", "para", "con", "una",
			"es", "está", "están", "hay", "cómo", "como", "cuál", "cuántas", "cuántos",
			"quién", "quien", "dónde", "hola", "gracias", "mis", "tengo", "puedes",
			"dame", "muestra", "muéstrame", "tarea", "tareas", "proyecto", "equipo",
		},
	}
}

// LoadVocabulary reads a YAML vocabulary file. Lists missing from the file
// keep their built-in defaults.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary file: %w", err)
	}

	var loaded Vocabulary
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary file: %w", err)
	}

	vocab := DefaultVocabulary()
	if len(loaded.InDomain) > 0 {
		vocab.InDomain = loaded.InDomain
	}
	if len(loaded.OffTopic) > 0 {
		vocab.OffTopic = loaded.OffTopic
	}
	if len(loaded.SpanishMarkers) > 0 {
		vocab.SpanishMarkers = loaded.SpanishMarkers
	}
	return vocab, nil
}

// VocabularyStore holds the active vocabulary and swaps it on file change
type VocabularyStore struct {
	current   atomic.Pointer[Vocabulary]
	watcher   *fsnotify.Watcher
	closeOnce sync.Once
}

// NewVocabularyStore creates a store seeded with vocab
func NewVocabularyStore(vocab *Vocabulary) *VocabularyStore {
	s := &VocabularyStore{}
	s.current.Store(vocab)
	return s
}

// Vocabulary returns the active vocabulary
func (s *VocabularyStore) Vocabulary() *Vocabulary {
	return s.current.Load()
}

// Reload reads path and swaps it in. On error the active vocabulary is kept.
func (s *VocabularyStore) Reload(path string) error {
	vocab, err := LoadVocabulary(path)
	if err != nil {
		return err
	}
	s.current.Store(vocab)
	log.Printf("✅ [VOCABULARY] Loaded %d in-domain, %d off-topic, %d Spanish marker entries from %s",
		len(vocab.InDomain), len(vocab.OffTopic), len(vocab.SpanishMarkers), path)
	return nil
}

// WatchFile reloads path whenever it is written or recreated
func (s *VocabularyStore) WatchFile(path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("failed to get absolute path for %s: %w", path, err)
	}

	// Watch the directory; editors often replace the file instead of writing it
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch directory for %s: %w", path, err)
	}
	s.watcher = watcher

	go s.watchLoop(watcher, absPath)
	log.Printf("👁️  [VOCABULARY] Watching %s for changes", path)
	return nil
}

func (s *VocabularyStore) watchLoop(watcher *fsnotify.Watcher, absPath string) {
	filename := filepath.Base(absPath)

	var debounceTimer *time.Timer
	debounceDuration := 500 * time.Millisecond

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filename {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceDuration, func() {
				if err := s.Reload(absPath); err != nil {
					log.Printf("⚠️  [VOCABULARY] Reload failed, keeping previous vocabulary: %v", err)
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️  [VOCABULARY] Watcher error: %v", err)
		}
	}
}

// Close stops the file watcher
func (s *VocabularyStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.watcher != nil {
			err = s.watcher.Close()
		}
	})
	return err
}

// normalizeText lower-cases text and replaces every non letter/digit rune
// with a space, padded so whole-word lookups can use " word ".
func normalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 2)
	b.WriteByte(' ')
	lastSpace := true
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	if !lastSpace {
		b.WriteByte(' ')
	}
	return b.String()
}

// containsKeyword reports whether the normalized text contains kw as whole words
func containsKeyword(normalized, kw string) bool {
	needle := normalizeText(kw)
	if strings.TrimSpace(needle) == "" {
		return false
	}
	return strings.Contains(normalized, needle)
}

func containsAny(normalized string, keywords []string) bool {
	for _, kw := range keywords {
		if containsKeyword(normalized, kw) {
			return true
		}
	}
	return false
}
