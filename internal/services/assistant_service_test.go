package services

import (
	"context"
	"errors"
	"net/http"
	"projectpilot/internal/models"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeModel struct {
	mu         sync.Mutex
	reply      string
	err        error
	calls      int
	lastPrompt string
}

func (m *fakeModel) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastPrompt = prompt
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

type fakeGamification struct {
	snapshot *models.GamificationSnapshot
	calls    int
}

func (f *fakeGamification) Snapshot(ctx context.Context, userID, projectID string) *models.GamificationSnapshot {
	f.calls++
	return f.snapshot
}

type fakeProfiles struct {
	profiles map[string]models.UserProfile
	err      error
}

func (f *fakeProfiles) LookupProfiles(ctx context.Context, ids []string) (map[string]models.UserProfile, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.profiles, nil
}

func testGamificationSnapshot() *models.GamificationSnapshot {
	return &models.GamificationSnapshot{
		User: &models.UserGamification{UserID: "u1", TotalPoints: 50, Level: 2},
		Leaderboard: []models.LeaderboardEntry{
			{UserID: "u4", Points: 300, Rank: 1},
			{UserID: "u2", Points: 120, Rank: 2},
			{UserID: "u1", Points: 50, Rank: 3},
			{UserID: "u3", Points: 40, Rank: 4},
			{UserID: "u5", Points: 10, Rank: 5},
		},
		RecentActivity: []models.ActivityEntry{
			{UserID: "u1", Action: "task_completed", Points: 10},
			{UserID: "u2", Action: "bug_fixed", Points: 20},
			{UserID: "u3", Action: "review", Points: 5},
			{UserID: "u4", Action: "story_done", Points: 15},
		},
		ProjectStats: &models.ProjectStats{CompletionRate: 50, CompletedItems: 1, TotalItems: 2, TotalPoints: 520, Contributors: 5},
	}
}

type assistantFixture struct {
	service *AssistantService
	source  *fakeProjectSource
	cache   *ProjectDataCache
	store   *MemoryConversationStore
}

func newAssistantFixture(t *testing.T, model LanguageModel) *assistantFixture {
	t.Helper()
	source := newFakeProjectSource()
	snapshot := testSnapshot("p1", "Apollo")
	snapshot.Members = []models.ProjectMember{{UserID: "u1", ProjectID: "p1"}, {UserID: "u2", ProjectID: "p1"}}
	snapshot.Tasks = []models.Task{{ID: "t1", ProjectID: "p1", Title: "X", Status: "in_progress", AssigneeID: "u2"}}
	source.put(snapshot)

	cache := NewProjectDataCache(source)
	t.Cleanup(cache.Close)
	store := NewMemoryConversationStore()

	fixture := &assistantFixture{source: source, cache: cache, store: store}
	fixture.service = NewAssistantService(AssistantDeps{
		Cache:         cache,
		Conversations: store,
		Gamification:  &fakeGamification{snapshot: testGamificationSnapshot()},
		Profiles: &fakeProfiles{profiles: map[string]models.UserProfile{
			"u1": {UserID: "u1", Name: "Ana", Role: "developer"},
			"u2": {UserID: "u2", Name: "Ben", Role: "qa"},
		}},
		Model: model,
	})
	return fixture
}

func (f *assistantFixture) history(t *testing.T, userID, projectID string) []models.Message {
	t.Helper()
	conv, err := f.store.Find(context.Background(), userID, projectID)
	if err != nil {
		t.Fatalf("Expected conversation to exist, got %v", err)
	}
	messages, err := f.store.GetRecentHistory(context.Background(), conv.ID, 100)
	if err != nil {
		t.Fatalf("Expected history, got %v", err)
	}
	return messages
}

func (f *assistantFixture) setLanguage(t *testing.T, userID, projectID, language string) {
	t.Helper()
	conv, err := f.store.GetOrCreate(context.Background(), userID, projectID)
	if err != nil {
		t.Fatalf("Expected conversation, got %v", err)
	}
	seed := models.Message{Role: models.RoleUser, Content: "seed", Timestamp: time.Now()}
	if err := f.store.AppendMessage(context.Background(), conv.ID, seed, &models.PreferencePatch{PreferredLanguage: &language}); err != nil {
		t.Fatalf("Expected append to succeed, got %v", err)
	}
}

func TestAssistant_OffTopicRefusalUsesStoredLanguage(t *testing.T) {
	model := &fakeModel{reply: "unused"}
	f := newAssistantFixture(t, model)
	f.setLanguage(t, "u1", "p1", models.LanguageSpanish)

	resp, err := f.service.Chat(context.Background(), "u1", models.AssistantRequest{
		Prompt:    "What is the weather today?",
		ProjectID: "p1",
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !resp.IsOffTopic {
		t.Error("Expected isOffTopic to be true")
	}
	if resp.Reply != OffTopicRefusal(models.LanguageSpanish, "") {
		t.Errorf("Expected Spanish refusal, got %q", resp.Reply)
	}
	if model.calls != 0 {
		t.Errorf("Expected no model calls, got %d", model.calls)
	}
	if f.cache.SubscriptionCount() != 0 {
		t.Errorf("Expected no subscriptions for an off-topic prompt, got %d", f.cache.SubscriptionCount())
	}
	if loads, _, _ := f.source.counts(); loads != 0 {
		t.Errorf("Expected no project loads, got %d", loads)
	}

	messages := f.history(t, "u1", "p1")
	if len(messages) != 3 {
		t.Fatalf("Expected seed, prompt and refusal stored, got %d messages", len(messages))
	}
	if messages[2].Role != models.RoleAssistant || messages[2].Content != resp.Reply {
		t.Errorf("Expected refusal persisted as assistant message, got %+v", messages[2])
	}
}

func TestAssistant_AnswersProjectQuestion(t *testing.T) {
	model := &fakeModel{reply: "  **Ben** está trabajando en la tarea X.  "}
	f := newAssistantFixture(t, model)

	prompt := "¿Quién está trabajando en la tarea X?"
	resp, err := f.service.Chat(context.Background(), "u1", models.AssistantRequest{Prompt: prompt, ProjectID: "p1"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if resp.Reply != "**Ben** está trabajando en la tarea X." {
		t.Errorf("Expected trimmed model reply, got %q", resp.Reply)
	}
	if resp.IsOffTopic {
		t.Error("Expected isOffTopic to be false")
	}
	if resp.Error != "" {
		t.Errorf("Expected no error field, got %q", resp.Error)
	}
	if resp.CacheHit == nil || !*resp.CacheHit {
		t.Error("Expected cacheHit true for a just-populated entry")
	}
	if resp.HasMarkdown == nil || !*resp.HasMarkdown {
		t.Error("Expected hasMarkdown true")
	}
	if resp.Conversation == nil || resp.Conversation.Metadata.UserPreferences.PreferredLanguage != models.LanguageSpanish {
		t.Errorf("Expected first contact to seed Spanish, got %+v", resp.Conversation)
	}

	g := resp.GamificationData
	if g == nil {
		t.Fatal("Expected gamification data")
	}
	if len(g.Leaderboard) != 3 {
		t.Fatalf("Expected 3 leaderboard entries, got %d", len(g.Leaderboard))
	}
	for i := 1; i < len(g.Leaderboard); i++ {
		if g.Leaderboard[i-1].Points < g.Leaderboard[i].Points {
			t.Errorf("Expected leaderboard sorted descending, got %+v", g.Leaderboard)
		}
	}
	if g.UserRank != 3 {
		t.Errorf("Expected user rank 3, got %d", g.UserRank)
	}
	if len(g.RecentActivity) != 3 {
		t.Errorf("Expected 3 activity entries, got %d", len(g.RecentActivity))
	}

	if !f.cache.HasSubscription("p1") {
		t.Error("Expected a subscription for p1")
	}
	if !strings.Contains(model.lastPrompt, "User question: "+prompt) {
		t.Error("Expected prompt to end with the user question")
	}
	if !strings.Contains(model.lastPrompt, "Respond in Spanish") {
		t.Error("Expected Spanish response instruction")
	}
	if !strings.Contains(model.lastPrompt, "Ben") {
		t.Error("Expected enriched member names in prompt")
	}
	if strings.Contains(model.lastPrompt, "RECENT CONVERSATION") {
		t.Error("Expected the current prompt not to be rendered as history")
	}

	messages := f.history(t, "u1", "p1")
	if len(messages) != 2 {
		t.Fatalf("Expected 2 stored messages, got %d", len(messages))
	}
	if messages[0].Content != prompt || messages[1].Content != resp.Reply {
		t.Errorf("Expected prompt then reply, got %+v", messages)
	}
}

func TestAssistant_StaleEntryIsNotACacheHit(t *testing.T) {
	model := &fakeModel{reply: "There are 2 backlog items."}
	f := newAssistantFixture(t, model)
	req := models.AssistantRequest{Prompt: "How many backlog items are there?", ProjectID: "p1"}

	if _, err := f.service.Chat(context.Background(), "u1", req); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// No change arrives and the entry ages past the fresh window
	entry, ok := f.cache.Get("p1")
	if !ok {
		t.Fatal("Expected p1 to be cached")
	}
	f.service.now = func() time.Time { return entry.LastUpdated.Add(f.service.freshWindow + time.Minute) }

	resp, err := f.service.Chat(context.Background(), "u1", req)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if resp.CacheHit == nil {
		t.Fatal("Expected cacheHit to be set")
	}
	if *resp.CacheHit {
		t.Error("Expected cacheHit false for an entry older than the fresh window")
	}
	if loads, _, _ := f.source.counts(); loads != 1 {
		t.Errorf("Expected the stale entry to be served without reloading, got %d loads", loads)
	}
}

func TestAssistant_SecondRequestSharesSubscriptionAndHistory(t *testing.T) {
	model := &fakeModel{reply: "There are 2 backlog items."}
	f := newAssistantFixture(t, model)

	for _, prompt := range []string{"How many tasks are in the backlog?", "And which bugs are open?"} {
		if _, err := f.service.Chat(context.Background(), "u1", models.AssistantRequest{Prompt: prompt, ProjectID: "p1"}); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	}

	loads, watches, _ := f.source.counts()
	if loads != 1 {
		t.Errorf("Expected 1 project load, got %d", loads)
	}
	if watches != 1 {
		t.Errorf("Expected 1 watch, got %d", watches)
	}
	if !strings.Contains(model.lastPrompt, "RECENT CONVERSATION") {
		t.Error("Expected earlier exchange in the second prompt")
	}
	if !strings.Contains(model.lastPrompt, "User: How many tasks are in the backlog?") {
		t.Error("Expected first question in the history section")
	}
}

func TestAssistant_ProjectNotFound(t *testing.T) {
	model := &fakeModel{reply: "unused"}
	f := newAssistantFixture(t, model)

	_, err := f.service.Chat(context.Background(), "u1", models.AssistantRequest{
		Prompt:    "Show me the sprint status",
		ProjectID: "missing",
	})
	if err == nil {
		t.Fatal("Expected error for missing project")
	}
	if code := StatusCodeFor(err); code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", code)
	}
	if _, err := f.store.Find(context.Background(), "u1", "missing"); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("Expected no conversation for missing project, got %v", err)
	}
	if f.cache.HasSubscription("missing") {
		t.Error("Expected no subscription left for a missing project")
	}
	if model.calls != 0 {
		t.Errorf("Expected no model calls, got %d", model.calls)
	}
}

func TestAssistant_ModelFailureFallsBack(t *testing.T) {
	fake := &fakeGemini{status: http.StatusBadRequest, response: `{"error":{"code":400,"message":"bad request","status":"INVALID_ARGUMENT"}}`}
	f := newAssistantFixture(t, newTestGeminiModel(t, fake))
	f.setLanguage(t, "u1", "p1", models.LanguageSpanish)

	resp, err := f.service.Chat(context.Background(), "u1", models.AssistantRequest{
		Prompt:    "What is the project status?",
		ProjectID: "p1",
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	want := FallbackReply(models.LanguageSpanish, "")
	if resp.Reply != want {
		t.Errorf("Expected Spanish fallback, got %q", resp.Reply)
	}
	if resp.Error == "" {
		t.Error("Expected error field to be set")
	}

	messages := f.history(t, "u1", "p1")
	last := messages[len(messages)-1]
	if last.Role != models.RoleAssistant || last.Content != want {
		t.Errorf("Expected fallback persisted, got %+v", last)
	}
}

func TestAssistant_EmptyModelReplyFallsBack(t *testing.T) {
	f := newAssistantFixture(t, &fakeModel{reply: "   "})

	resp, err := f.service.Chat(context.Background(), "u1", models.AssistantRequest{
		Prompt:    "What is the project status?",
		ProjectID: "p1",
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if resp.Reply != FallbackReply(models.LanguageEnglish, "") {
		t.Errorf("Expected English fallback, got %q", resp.Reply)
	}
}

func TestAssistant_NoModelConfigured(t *testing.T) {
	f := newAssistantFixture(t, nil)

	resp, err := f.service.Chat(context.Background(), "u1", models.AssistantRequest{
		Prompt:    "Call me Ana. What is the project status?",
		ProjectID: "p1",
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if resp.Reply != FallbackReply(models.LanguageEnglish, "Ana") {
		t.Errorf("Expected fallback addressed to Ana, got %q", resp.Reply)
	}
	if !strings.Contains(resp.Error, ErrModelUnavailable.Error()) {
		t.Errorf("Expected model unavailable error, got %q", resp.Error)
	}
}

func TestAssistant_RejectsBadRequests(t *testing.T) {
	f := newAssistantFixture(t, &fakeModel{reply: "ok"})

	tests := []struct {
		name   string
		userID string
		req    models.AssistantRequest
		status int
	}{
		{"no user", "", models.AssistantRequest{Prompt: "tasks?", ProjectID: "p1"}, http.StatusUnauthorized},
		{"blank prompt", "u1", models.AssistantRequest{Prompt: "   ", ProjectID: "p1"}, http.StatusBadRequest},
		{"missing project", "u1", models.AssistantRequest{Prompt: "tasks?"}, http.StatusBadRequest},
		{"prompt too long", "u1", models.AssistantRequest{Prompt: strings.Repeat("a", maxPromptRunes+1), ProjectID: "p1"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Chat(context.Background(), tt.userID, tt.req)
			if err == nil {
				t.Fatal("Expected error")
			}
			if code := StatusCodeFor(err); code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, code)
			}
		})
	}
}

func TestAssistant_GetConversation(t *testing.T) {
	f := newAssistantFixture(t, &fakeModel{reply: "Two items."})

	if _, err := f.service.GetConversation(context.Background(), "u1", "p1", 10); StatusCodeFor(err) != http.StatusNotFound {
		t.Errorf("Expected 404 before any message, got %v", err)
	}

	if _, err := f.service.Chat(context.Background(), "u1", models.AssistantRequest{Prompt: "How many tasks?", ProjectID: "p1"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	conv, err := f.service.GetConversation(context.Background(), "u1", "p1", 1)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(conv.Messages) != 1 || conv.Messages[0].Content != "Two items." {
		t.Errorf("Expected only the latest message, got %+v", conv.Messages)
	}
}

func TestDropTrailingPrompt(t *testing.T) {
	history := []models.Message{
		{Role: models.RoleUser, Content: "a"},
		{Role: models.RoleAssistant, Content: "b"},
		{Role: models.RoleUser, Content: "c"},
	}
	if got := dropTrailingPrompt(history, "c"); len(got) != 2 {
		t.Errorf("Expected 2 messages, got %d", len(got))
	}
	if got := dropTrailingPrompt(history, "other"); len(got) != 3 {
		t.Errorf("Expected 3 messages, got %d", len(got))
	}
	if got := dropTrailingPrompt(nil, "c"); len(got) != 0 {
		t.Errorf("Expected empty history, got %d", len(got))
	}
}
