package services

import (
	"context"
	"errors"
	"log/slog"
	"projectpilot/internal/logging"
	"projectpilot/internal/models"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	maxPromptRunes    = 4000
	envelopeListLimit = 3
	maxHistoryPage    = 50
)

// Request outcomes recorded in metrics
const (
	outcomeAnswered = "answered"
	outcomeOffTopic = "off_topic"
	outcomeFallback = "fallback"
	outcomeNotFound = "not_found"
	outcomeError    = "error"
)

// GamificationProvider returns the per-request gamification snapshot
type GamificationProvider interface {
	Snapshot(ctx context.Context, userID, projectID string) *models.GamificationSnapshot
}

// AssistantDeps are the collaborators of the assistant pipeline
type AssistantDeps struct {
	Cache         *ProjectDataCache
	Conversations ConversationStore
	Gamification  GamificationProvider
	Profiles      ProfileLookup // optional
	Model         LanguageModel // optional; without it every answer is a fallback
	Relevance     *RelevanceClassifier
	Language      *LanguageDetector

	HistoryLimit int
	ListCap      int
	FreshWindow  time.Duration
}

// AssistantService classifies a prompt, gathers project context, asks the
// language model and records the exchange
type AssistantService struct {
	cache         *ProjectDataCache
	conversations ConversationStore
	gamification  GamificationProvider
	profiles      ProfileLookup
	model         LanguageModel
	relevance     *RelevanceClassifier
	language      *LanguageDetector

	historyLimit int
	listCap      int
	freshWindow  time.Duration
	now          func() time.Time
}

// NewAssistantService creates the assistant pipeline
func NewAssistantService(deps AssistantDeps) *AssistantService {
	s := &AssistantService{
		cache:         deps.Cache,
		conversations: deps.Conversations,
		gamification:  deps.Gamification,
		profiles:      deps.Profiles,
		model:         deps.Model,
		relevance:     deps.Relevance,
		language:      deps.Language,
		historyLimit:  deps.HistoryLimit,
		listCap:       deps.ListCap,
		freshWindow:   deps.FreshWindow,
		now:           time.Now,
	}
	if s.historyLimit <= 0 {
		s.historyLimit = 10
	}
	if s.listCap <= 0 {
		s.listCap = 10
	}
	if s.freshWindow <= 0 {
		s.freshWindow = 5 * time.Minute
	}
	if s.relevance == nil {
		s.relevance = NewRelevanceClassifier(DefaultVocabulary())
	}
	if s.language == nil {
		s.language = NewLanguageDetector(DefaultVocabulary())
	}
	return s
}

// ValidateAssistantRequest trims and validates the request body
func ValidateAssistantRequest(req *models.AssistantRequest) error {
	req.Prompt = strings.TrimSpace(req.Prompt)
	req.ProjectID = strings.TrimSpace(req.ProjectID)

	err := validation.ValidateStruct(req,
		validation.Field(&req.Prompt, validation.Required, validation.RuneLength(1, maxPromptRunes)),
		validation.Field(&req.ProjectID, validation.Required),
	)
	if err != nil {
		return &ValidationError{Message: err.Error()}
	}
	return nil
}

// Chat answers one prompt. Only authentication, validation, missing projects
// and conversation store failures return an error; model failures produce a
// fallback reply.
func (s *AssistantService) Chat(ctx context.Context, userID string, req models.AssistantRequest) (*models.AssistantResponse, error) {
	start := s.now()

	if userID == "" {
		return nil, &UnauthorizedError{Message: "authentication required"}
	}
	if err := ValidateAssistantRequest(&req); err != nil {
		return nil, err
	}

	logger := logging.WithRequest(userID, req.ProjectID)

	if !s.relevance.IsInDomain(req.Prompt) {
		resp, err := s.refuse(ctx, userID, req, logger)
		s.record(outcomeOffTopic, err, start)
		return resp, err
	}

	resp, err := s.answer(ctx, userID, req, logger)
	outcome := outcomeAnswered
	if resp != nil && resp.Error != "" {
		outcome = outcomeFallback
	}
	s.record(outcome, err, start)
	return resp, err
}

func (s *AssistantService) record(outcome string, err error, start time.Time) {
	if err != nil {
		outcome = outcomeError
		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			outcome = outcomeNotFound
		}
	}
	GetMetrics().RecordRequest(outcome, s.now().Sub(start).Seconds())
}

// refuse records the prompt and a localized refusal without touching the project cache
func (s *AssistantService) refuse(ctx context.Context, userID string, req models.AssistantRequest, logger *slog.Logger) (*models.AssistantResponse, error) {
	logger.Info("prompt classified as off-topic")

	conv, err := s.conversations.GetOrCreate(ctx, userID, req.ProjectID)
	if err != nil {
		return nil, err
	}

	patch := s.preferencePatch(conv.Metadata, req.Prompt)
	if err := s.conversations.AppendMessage(ctx, conv.ID, s.message(models.RoleUser, req.Prompt), patch); err != nil {
		return nil, err
	}
	metadata := MergePreferences(conv.Metadata, patch)

	reply := OffTopicRefusal(metadata.UserPreferences.PreferredLanguage, metadata.UserPreferences.Nickname)
	s.persistReply(ctx, conv.ID, reply, logger)

	return &models.AssistantResponse{
		Reply:        reply,
		Timestamp:    s.now().UTC().Format(time.RFC3339),
		IsOffTopic:   true,
		Conversation: &models.ConversationEcho{ID: conv.ID, Metadata: metadata},
	}, nil
}

func (s *AssistantService) answer(ctx context.Context, userID string, req models.AssistantRequest, logger *slog.Logger) (*models.AssistantResponse, error) {
	// 1. Project data. Subscribe first so no change is missed between load and subscribe.
	gatherStart := s.now()
	if err := s.cache.EnsureSubscribed(req.ProjectID); err != nil {
		logging.WithStage(logger, "subscribe").Warn("continuing without live updates", "error", err)
	}
	entry, err := s.cache.GetOrPopulate(ctx, req.ProjectID)
	if err != nil {
		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			s.cache.Unsubscribe(req.ProjectID)
		}
		return nil, err
	}
	snapshot := entry.Snapshot

	// 2. Conversation
	conv, err := s.conversations.GetOrCreate(ctx, userID, req.ProjectID)
	if err != nil {
		return nil, err
	}
	patch := s.preferencePatch(conv.Metadata, req.Prompt)
	if err := s.conversations.AppendMessage(ctx, conv.ID, s.message(models.RoleUser, req.Prompt), patch); err != nil {
		return nil, err
	}
	metadata := MergePreferences(conv.Metadata, patch)

	history, err := s.conversations.GetRecentHistory(ctx, conv.ID, s.historyLimit+1)
	if err != nil {
		logging.WithStage(logger, "history").Warn("rendering without conversation history", "error", err)
		history = nil
	}
	history = dropTrailingPrompt(history, req.Prompt)
	if len(history) > s.historyLimit {
		history = history[len(history)-s.historyLimit:]
	}

	// 3 and 4. Gamification and member enrichment run concurrently
	var gamification *models.GamificationSnapshot
	members := snapshot.Members
	var currentProfile *models.UserProfile

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if s.gamification != nil {
			gamification = s.gamification.Snapshot(ctx, userID, req.ProjectID)
		}
	}()
	go func() {
		defer wg.Done()
		if s.profiles == nil {
			return
		}
		ids := make([]string, 0, len(members)+1)
		ids = append(ids, userID)
		for _, m := range members {
			ids = append(ids, m.UserID)
		}
		profiles, err := s.profiles.LookupProfiles(ctx, ids)
		if err != nil {
			logging.WithStage(logger, "enrich").Warn("using unenriched member list", "error", err)
			return
		}
		members = EnrichMembers(members, profiles)
		if p, ok := profiles[userID]; ok {
			currentProfile = &p
		}
	}()
	wg.Wait()
	GetMetrics().RecordStage("gather", s.now().Sub(gatherStart).Seconds())

	// 5. Partition and render
	pc := s.buildPromptContext(userID, req.Prompt, metadata, history, snapshot, members, currentProfile, gamification)
	prompt := RenderPrompt(pc)

	// Model call; any failure becomes a localized fallback
	resp := &models.AssistantResponse{}
	reply, modelErr := s.generate(ctx, prompt)
	if modelErr != nil {
		logging.WithStage(logger, "model").Warn("model call failed, using fallback reply", "error", modelErr)
		reply = FallbackReply(metadata.UserPreferences.PreferredLanguage, metadata.UserPreferences.Nickname)
		resp.Error = modelErr.Error()
	}

	s.persistReply(ctx, conv.ID, reply, logger)

	cacheHit := entry.IsFresh(s.now(), s.freshWindow)
	hasMarkdown := HasMarkdown(reply)

	resp.Reply = reply
	resp.Timestamp = s.now().UTC().Format(time.RFC3339)
	resp.Conversation = &models.ConversationEcho{ID: conv.ID, Metadata: metadata}
	resp.GamificationData = envelope(userID, gamification)
	resp.CacheHit = &cacheHit
	resp.HasMarkdown = &hasMarkdown

	logger.Info("assistant reply sent",
		"cache_hit", cacheHit,
		"history", len(history),
		"prompt_chars", len(prompt),
		"fallback", modelErr != nil,
	)
	return resp, nil
}

// GetConversation returns the user's conversation for a project with its most recent messages
func (s *AssistantService) GetConversation(ctx context.Context, userID, projectID string, limit int) (*models.ConversationHistoryResponse, error) {
	if userID == "" {
		return nil, &UnauthorizedError{Message: "authentication required"}
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, &ValidationError{Message: "projectId: cannot be blank."}
	}
	if limit <= 0 {
		limit = s.historyLimit
	}
	if limit > maxHistoryPage {
		limit = maxHistoryPage
	}

	conv, err := s.conversations.Find(ctx, userID, projectID)
	if err != nil {
		if errors.Is(err, ErrConversationNotFound) {
			return nil, &NotFoundError{Resource: "conversation", ID: projectID, Err: err}
		}
		return nil, err
	}
	messages, err := s.conversations.GetRecentHistory(ctx, conv.ID, limit)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return &models.ConversationHistoryResponse{
		ID:        conv.ID,
		ProjectID: conv.ProjectID,
		Metadata:  conv.Metadata,
		Messages:  messages,
	}, nil
}

func (s *AssistantService) generate(ctx context.Context, prompt string) (string, error) {
	if s.model == nil {
		return "", &ModelError{Err: ErrModelUnavailable}
	}
	start := s.now()
	reply, err := s.model.Generate(ctx, prompt)
	GetMetrics().RecordStage("model", s.now().Sub(start).Seconds())
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", &ModelError{Err: ErrEmptyCompletion}
	}
	return reply, nil
}

func (s *AssistantService) persistReply(ctx context.Context, conversationID, reply string, logger *slog.Logger) {
	if err := s.conversations.AppendMessage(ctx, conversationID, s.message(models.RoleAssistant, reply), nil); err != nil {
		logging.WithStage(logger, "persist").Error("failed to store assistant reply", "error", err)
	}
}

func (s *AssistantService) message(role models.MessageRole, content string) models.Message {
	return models.Message{Role: role, Content: content, Timestamp: s.now()}
}

// preferencePatch extracts explicit preferences and, on first contact, seeds
// the preferred language from the prompt itself
func (s *AssistantService) preferencePatch(stored models.ConversationMetadata, prompt string) *models.PreferencePatch {
	patch := ExtractUserPreferences(prompt)
	if stored.UserPreferences.PreferredLanguage != "" {
		return patch
	}
	if patch != nil && patch.PreferredLanguage != nil {
		return patch
	}
	detected := s.language.DetectLanguage(prompt)
	return CombinePatches(&models.PreferencePatch{PreferredLanguage: &detected}, patch)
}

func (s *AssistantService) buildPromptContext(
	userID, question string,
	metadata models.ConversationMetadata,
	history []models.Message,
	snapshot *models.ProjectSnapshot,
	members []models.ProjectMember,
	profile *models.UserProfile,
	gamification *models.GamificationSnapshot,
) *PromptContext {
	now := s.now()

	user := CurrentUser{ID: userID, Nickname: metadata.UserPreferences.Nickname}
	if profile != nil {
		user.Name = profile.Name
		user.Role = profile.Role
	}

	var completion *models.ProjectStats
	if gamification != nil && gamification.ProjectStats != nil {
		completion = gamification.ProjectStats
	} else {
		// Project stats degraded; the cached backlog still gives completion
		done, total := CompletionStats(snapshot.BacklogItems)
		completion = &models.ProjectStats{CompletedItems: done, TotalItems: total}
		if total > 0 {
			completion.CompletionRate = float64(done) / float64(total) * 100
		}
	}

	pc := &PromptContext{
		Question:     question,
		Language:     metadata.UserPreferences.PreferredLanguage,
		Verbosity:    metadata.AssistantSettings.VerbosityLevel,
		Now:          now,
		ListCap:      s.listCap,
		User:         user,
		History:      history,
		Project:      snapshot.Project,
		Members:      members,
		RoleNames:    RoleNameIndex(snapshot.ProjectRoles),
		Roles:        BuildRolePermissions(snapshot.ProjectRoles, snapshot.AvailablePermissions),
		Backlog:      PartitionBacklog(snapshot.BacklogItems),
		TaskStatuses: TaskStatusBreakdown(snapshot.Tasks),
		Completion:   completion,
		Gamification: gamification,
	}
	if sprint := FindActiveSprint(snapshot.Sprints, now); sprint != nil {
		pc.ActiveSprint = sprint
		pc.SprintTasks = TasksForSprint(snapshot.Tasks, sprint.ID)
	}
	return pc
}

// dropTrailingPrompt removes the just-appended user message so the question
// is not rendered twice
func dropTrailingPrompt(history []models.Message, prompt string) []models.Message {
	n := len(history)
	if n > 0 && history[n-1].Role == models.RoleUser && history[n-1].Content == prompt {
		return history[:n-1]
	}
	return history
}

// envelope trims the snapshot to what clients receive
func envelope(userID string, g *models.GamificationSnapshot) *models.GamificationEnvelope {
	if g == nil {
		return nil
	}
	leaderboard := g.Leaderboard
	if len(leaderboard) > envelopeListLimit {
		leaderboard = leaderboard[:envelopeListLimit]
	}
	activity := g.RecentActivity
	if len(activity) > envelopeListLimit {
		activity = activity[:envelopeListLimit]
	}
	return &models.GamificationEnvelope{
		UserStats:      g.User,
		UserRank:       g.UserRank(userID),
		Leaderboard:    leaderboard,
		RecentActivity: activity,
		ProjectStats:   g.ProjectStats,
	}
}
