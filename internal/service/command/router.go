// Package command intercepts reserved chat commands before they reach the
// generation pipeline.
package command

import (
	"context"
	"strings"
)

const (
	// Help lists the available commands.
	Help = "/ajuda"
	// Language overrides the response language of the conversation.
	Language = "/hacker"
)

// HelpText is the fixed reply to Help.
const HelpText = "Comandos disponíveis:\n" +
	"/ajuda - mostra esta mensagem de ajuda\n" +
	"/hacker <idioma> - define o idioma das respostas (ex.: /hacker english)"

// LanguageSetter persists the language chosen for a conversation.
type LanguageSetter interface {
	SetLanguage(ctx context.Context, key, language string)
}

// Result is the reply produced by a recognized command. Generation is skipped
// whenever a Result is returned.
type Result struct {
	Command string
	Reply   string
}

// Router recognizes reserved commands (case-insensitive).
type Router struct {
	languages LanguageSetter
}

// NewRouter creates a Router that stores language overrides in languages.
func NewRouter(languages LanguageSetter) *Router {
	return &Router{languages: languages}
}

// Route inspects already-trimmed text. It returns false when the text is not a
// command, or is a malformed one, so processing falls through to generation.
func (r *Router) Route(ctx context.Context, key, text string) (Result, bool) {
	name, arg := split(text)

	switch name {
	case Help:
		return Result{Command: Help, Reply: HelpText}, true
	case Language:
		if arg == "" {
			return Result{}, false
		}
		r.languages.SetLanguage(ctx, key, arg)
		return Result{Command: Language, Reply: LanguageConfirmation(arg)}, true
	default:
		return Result{}, false
	}
}

// LanguageConfirmation is the reply sent after a language override.
func LanguageConfirmation(language string) string {
	return "Idioma de resposta alterado para: " + language
}

// split returns the lowercased first token and the remainder after the first
// space, trimmed but otherwise verbatim.
func split(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	name, rest, _ := strings.Cut(text, " ")
	return strings.ToLower(name), strings.TrimSpace(rest)
}
