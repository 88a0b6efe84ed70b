package models

import (
	"time"
)

// MessageRole identifies who authored a conversation message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Supported reply languages
const (
	LanguageSpanish = "es"
	LanguageEnglish = "en"
)

// Verbosity levels for assistant replies
const (
	VerbosityConcise  = "concise"
	VerbosityNormal   = "normal"
	VerbosityDetailed = "detailed"
)

// Message is a single immutable entry in a conversation
type Message struct {
	Role      MessageRole `bson:"role" json:"role"`
	Content   string      `bson:"content" json:"content"`
	Timestamp time.Time   `bson:"timestamp" json:"timestamp"`
}

// UserPreferences holds what the assistant has learned about the user
type UserPreferences struct {
	PreferredLanguage string `bson:"preferredLanguage,omitempty" json:"preferredLanguage,omitempty"`
	Nickname          string `bson:"nickname,omitempty" json:"nickname,omitempty"`
}

// AssistantSettings holds per-conversation reply settings
type AssistantSettings struct {
	VerbosityLevel string `bson:"verbosityLevel,omitempty" json:"verbosityLevel,omitempty"`
}

// ConversationMetadata is patched by preference extraction
type ConversationMetadata struct {
	UserPreferences   UserPreferences   `bson:"userPreferences" json:"userPreferences"`
	AssistantSettings AssistantSettings `bson:"assistantSettings" json:"assistantSettings"`
}

// Conversation is the single assistant thread for a (user, project) pair.
// Messages are stored with the conversation but not loaded here; use the
// store's history query to read them.
type Conversation struct {
	ID           string               `bson:"_id" json:"id"`
	UserID       string               `bson:"userId" json:"user_id"`
	ProjectID    string               `bson:"projectId" json:"project_id"`
	Metadata     ConversationMetadata `bson:"metadata" json:"metadata"`
	MessageCount int                  `bson:"messageCount" json:"message_count"`
	CreatedAt    time.Time            `bson:"createdAt" json:"created_at"`
	UpdatedAt    time.Time            `bson:"updatedAt" json:"updated_at"`
}

// PreferencePatch is a partial metadata update; nil fields are left untouched
type PreferencePatch struct {
	PreferredLanguage *string `json:"preferredLanguage,omitempty"`
	Nickname          *string `json:"nickname,omitempty"`
	VerbosityLevel    *string `json:"verbosityLevel,omitempty"`
}

// IsEmpty reports whether the patch changes nothing
func (p *PreferencePatch) IsEmpty() bool {
	return p == nil || (p.PreferredLanguage == nil && p.Nickname == nil && p.VerbosityLevel == nil)
}

// ConversationHistoryResponse is returned by the conversation read endpoint
type ConversationHistoryResponse struct {
	ID        string               `json:"id"`
	ProjectID string               `json:"projectId"`
	Metadata  ConversationMetadata `json:"metadata"`
	Messages  []Message            `json:"messages"`
}
