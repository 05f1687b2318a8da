package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateContact(t *testing.T) {
	v := NewInputValidator()

	tests := []struct {
		name    string
		in      ContactInput
		field   string
		message string
	}{
		{
			name: "valid",
			in:   ContactInput{Name: "Jane Doe", Email: "jane@example.com", Message: "Hello, I'd like to discuss a project."},
		},
		{
			name:    "short message",
			in:      ContactInput{Name: "Jane Doe", Email: "jane@example.com", Message: "Hello"},
			field:   "message",
			message: `"message" length must be at least 10 characters long`,
		},
		{
			name:    "missing name",
			in:      ContactInput{Email: "jane@example.com", Message: "Hello there, nice site!"},
			field:   "name",
			message: `"name" is required`,
		},
		{
			name:    "whitespace name is trimmed away",
			in:      ContactInput{Name: "   ", Email: "jane@example.com", Message: "Hello there, nice site!"},
			field:   "name",
			message: `"name" is required`,
		},
		{
			name:    "bad email",
			in:      ContactInput{Name: "Jane", Email: "not-an-email", Message: "Hello there, nice site!"},
			field:   "email",
			message: `"email" must be a valid email`,
		},
		{
			name:    "long message",
			in:      ContactInput{Name: "Jane", Email: "jane@example.com", Message: strings.Repeat("x", 1001)},
			field:   "message",
			message: `"message" length must be less than or equal to 1000 characters long`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			err := v.ValidateContact(&in)
			if tt.field == "" {
				require.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, tt.message, verr.Message)
		})
	}
}

func TestValidateContactTrims(t *testing.T) {
	in := ContactInput{Name: "  Jane Doe ", Email: " jane@example.com", Message: " Hello, I'd like to talk.  "}
	require.NoError(t, NewInputValidator().ValidateContact(&in))
	assert.Equal(t, "Jane Doe", in.Name)
	assert.Equal(t, "jane@example.com", in.Email)
	assert.Equal(t, "Hello, I'd like to talk.", in.Message)
}

func TestValidateChatRequest(t *testing.T) {
	v := NewInputValidator()

	require.NoError(t, v.Struct(&ChatRequest{Message: "hi"}))

	var verr *ValidationError
	require.ErrorAs(t, v.Struct(&ChatRequest{}), &verr)
	assert.Equal(t, "message", verr.Field)

	require.ErrorAs(t, v.Struct(&ChatRequest{Message: strings.Repeat("a", MaxChatMessageLength+1)}), &verr)
	assert.Equal(t, "message", verr.Field)

	require.ErrorAs(t, v.Struct(&ChatRequest{Message: "hi", SessionID: strings.Repeat("s", 129)}), &verr)
	assert.Equal(t, "sessionId", verr.Field)
}

func TestValidateStatus(t *testing.T) {
	for _, s := range []ContactStatus{ContactStatusUnread, ContactStatusRead, ContactStatusResponded, ContactStatusArchived} {
		assert.NoError(t, ValidateStatus(s))
	}
	assert.Error(t, ValidateStatus("deleted"))
	assert.Error(t, ValidateStatus(""))
}
