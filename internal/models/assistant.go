package models

// AssistantRequest is the inbound chat request body
type AssistantRequest struct {
	Prompt    string `json:"prompt"`
	ProjectID string `json:"projectId"`
}

// AssistantResponse is the envelope returned for every answered prompt
type AssistantResponse struct {
	Reply            string                `json:"reply"`
	Timestamp        string                `json:"timestamp"`
	IsOffTopic       bool                  `json:"isOffTopic,omitempty"`
	Conversation     *ConversationEcho     `json:"conversation,omitempty"`
	GamificationData *GamificationEnvelope `json:"gamificationData,omitempty"`
	CacheHit         *bool                 `json:"cacheHit,omitempty"`
	HasMarkdown      *bool                 `json:"hasMarkdown,omitempty"`
	Error            string                `json:"error,omitempty"`
}

// ConversationEcho echoes the conversation id and its merged metadata
type ConversationEcho struct {
	ID       string               `json:"id"`
	Metadata ConversationMetadata `json:"metadata"`
}

// GamificationEnvelope is the trimmed gamification view sent to clients
type GamificationEnvelope struct {
	UserStats      *UserGamification  `json:"userStats,omitempty"`
	UserRank       int                `json:"userRank"`
	Leaderboard    []LeaderboardEntry `json:"leaderboard"`
	RecentActivity []ActivityEntry    `json:"recentActivity"`
	ProjectStats   *ProjectStats      `json:"projectStats,omitempty"`
}
