package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"
)

// mcpUserAgent is recorded as the user agent of contact requests submitted over MCP.
const mcpUserAgent = ServerName + "/mcp"

// NewMCPServer registers the chat and contact tools.
func (a *App) NewMCPServer() *server.MCPServer {
	s := server.NewMCPServer(ServerName, ServerVersion)

	s.AddTool(mcp.NewTool("chat",
		mcp.WithDescription("Ask the portfolio assistant a question. Conversations are kept per session."),
		mcp.WithString("message", mcp.Required(), mcp.Description("The question to ask")),
		mcp.WithString("session_id", mcp.Description("Conversation identifier, defaults to \"default\"")),
	), a.chatHandler)

	s.AddTool(mcp.NewTool("clear_history",
		mcp.WithDescription("Forget the conversation history of a session."),
		mcp.WithString("session_id", mcp.Description("Conversation identifier, defaults to \"default\"")),
	), a.clearHistoryHandler)

	s.AddTool(mcp.NewTool("submit_contact",
		mcp.WithDescription("Submit the contact form: emails the visitor and the owner and stores the request."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Sender name, 2-100 characters")),
		mcp.WithString("email", mcp.Required(), mcp.Description("Sender email address")),
		mcp.WithString("message", mcp.Required(), mcp.Description("Message, 10-1000 characters")),
	), a.submitContactHandler)

	s.AddTool(mcp.NewTool("list_contacts",
		mcp.WithDescription("List stored contact requests, newest first."),
		mcp.WithNumber("limit", mcp.Description("Page size, default 50")),
		mcp.WithNumber("offset", mcp.Description("Number of requests to skip")),
		mcp.WithString("status", mcp.Description("Only requests with this status: unread, read, responded or archived")),
	), a.listContactsHandler)

	s.AddTool(mcp.NewTool("update_contact_status",
		mcp.WithDescription("Change the handling status of a contact request."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Contact request id")),
		mcp.WithString("status", mcp.Required(), mcp.Description("unread, read, responded or archived")),
	), a.updateContactStatusHandler)

	return s
}

// chatHandler handles the chat tool.
func (a *App) chatHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	req := ChatRequest{
		Message:   stringArg(args, "message"),
		SessionID: stringArg(args, "session_id"),
	}
	if err := a.validator.Struct(&req); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	reply, err := a.chat.Chat(ctx, req.Message, req.SessionID)
	if err != nil {
		return a.toolError("Chat failed", err), nil
	}
	return mcp.NewToolResultText(reply.Message), nil
}

// clearHistoryHandler handles the clear_history tool.
func (a *App) clearHistoryHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	req := ClearHistoryRequest{SessionID: stringArg(args, "session_id")}
	if err := a.validator.Struct(&req); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	a.chat.ClearHistory(req.SessionID)
	return mcp.NewToolResultText(HistoryClearedMsg), nil
}

// submitContactHandler handles the submit_contact tool.
func (a *App) submitContactHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments"), nil
	}

	in := ContactInput{
		Name:    stringArg(args, "name"),
		Email:   stringArg(args, "email"),
		Message: stringArg(args, "message"),
	}
	receipt, err := a.contacts.Submit(ctx, in, ContactMetadata{UserAgent: mcpUserAgent})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if receipt.ID == nil {
		return mcp.NewToolResultText(ContactReceivedMsg), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s (request #%d)", ContactReceivedMsg, *receipt.ID)), nil
}

// listContactsHandler handles the list_contacts tool. The page is returned as JSON.
func (a *App) listContactsHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	filter := ContactFilter{
		Limit:  intArg(args, "limit"),
		Offset: intArg(args, "offset"),
		Status: ContactStatus(stringArg(args, "status")),
	}

	page, applied, err := a.contacts.List(ctx, filter)
	if err != nil {
		return a.toolError("Listing contacts failed", err), nil
	}

	out, err := json.MarshalIndent(map[string]any{
		"data":   page.Items,
		"total":  page.Total,
		"limit":  applied.Limit,
		"offset": applied.Offset,
	}, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Could not encode contact list: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// updateContactStatusHandler handles the update_contact_status tool.
func (a *App) updateContactStatusHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments"), nil
	}

	id := intArg(args, "id")
	if id <= 0 {
		return mcp.NewToolResultError("Contact id must be a positive integer"), nil
	}
	status := ContactStatus(stringArg(args, "status"))

	if err := a.contacts.UpdateStatus(ctx, uint64(id), status); err != nil {
		return a.toolError("Status update failed", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: #%d is now %s", ContactUpdatedMsg, id, status)), nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

// intArg accepts JSON numbers and numeric strings.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%d", &n); err == nil {
			return n
		}
	}
	return 0
}

// toolError reports err to the MCP client with the same redaction as the HTTP API.
func (a *App) toolError(action string, err error) *mcp.CallToolResult {
	if statusForError(err) >= http.StatusInternalServerError {
		log.Error().Err(err).Msg(action)
	}
	return mcp.NewToolResultError(action + ": " + clientMessage(err, a.cfg.IsProduction()))
}
