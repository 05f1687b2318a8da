package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// runInteractiveChat reads questions from in and prints the assistant's
// answers to out until EOF or /exit. Lines starting with a slash are commands.
func (a *App) runInteractiveChat(ctx context.Context, in io.Reader, out io.Writer, sessionID string) error {
	fmt.Fprintln(out, WelcomeMsg)
	fmt.Fprintf(out, "Session: %s\n", sessionID)
	fmt.Fprintln(out, HelpMsg)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\n"+PromptStr)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			switch strings.ToLower(strings.Fields(line)[0]) {
			case "/exit", "/quit":
				return nil
			case "/clear":
				a.chat.ClearHistory(sessionID)
				fmt.Fprintln(out, HistoryClearedMsg)
			case "/help":
				fmt.Fprintln(out, HelpMsg)
			default:
				fmt.Fprintln(out, UnknownCmdMsg)
			}
			continue
		}

		a.cliChat(ctx, out, line, sessionID)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// cliChat sends one message and prints the reply with its token usage.
func (a *App) cliChat(ctx context.Context, out io.Writer, message, sessionID string) {
	if err := a.validator.Struct(&ChatRequest{Message: message, SessionID: sessionID}); err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}

	reply, err := a.chat.Chat(ctx, message, sessionID)
	if err != nil {
		fmt.Fprintf(out, "Error: %v\n", err)
		return
	}

	fmt.Fprintf(out, "\n%s\n", reply.Message)
	fmt.Fprintf(out, "[tokens: prompt %d, completion %d, total %d]\n",
		reply.Usage.PromptTokens, reply.Usage.CompletionTokens, reply.Usage.TotalTokens)
}
