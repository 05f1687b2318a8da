package main

import (
	"time"
)

// Role identifies the speaker of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatTurn is one message of a conversation. Turns are never mutated after creation.
type ChatTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatUsage reports the token counters returned by the AI backend.
type ChatUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// ChatReply is the normalized result of a chat exchange.
type ChatReply struct {
	Message string    `json:"message"`
	Usage   ChatUsage `json:"usage"`
}

// ContactStatus tracks how far a contact request has been handled.
type ContactStatus string

const (
	ContactStatusUnread    ContactStatus = "unread"
	ContactStatusRead      ContactStatus = "read"
	ContactStatusResponded ContactStatus = "responded"
	ContactStatusArchived  ContactStatus = "archived"
)

// Valid reports whether s is one of the known statuses.
func (s ContactStatus) Valid() bool {
	switch s {
	case ContactStatusUnread, ContactStatusRead, ContactStatusResponded, ContactStatusArchived:
		return true
	}
	return false
}

// ContactInput is the user-supplied part of a contact form submission.
type ContactInput struct {
	Name    string `json:"name" validate:"required,min=2,max=100"`
	Email   string `json:"email" validate:"required,email"`
	Message string `json:"message" validate:"required,min=10,max=1000"`
}

// ContactMetadata is captured from the inbound request, not from the form.
type ContactMetadata struct {
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
}

// ContactSubmission is a persisted contact request.
type ContactSubmission struct {
	ID        uint64        `json:"id"`
	Name      string        `json:"name"`
	Email     string        `json:"email"`
	Message   string        `json:"message"`
	IP        string        `json:"ip,omitempty"`
	UserAgent string        `json:"user_agent,omitempty"`
	Status    ContactStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// ContactReceipt is returned to the submitter. ID is nil when persistence
// was skipped or failed.
type ContactReceipt struct {
	ID        *uint64   `json:"id"`
	CreatedAt time.Time `json:"timestamp"`
}

// ContactFilter narrows an admin listing of contact requests.
type ContactFilter struct {
	Limit  int
	Offset int
	Status ContactStatus
}

// ContactPage is one page of contact requests plus the unpaged total.
type ContactPage struct {
	Items []ContactSubmission
	Total int64
}
