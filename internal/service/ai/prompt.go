package ai

import "strings"

const knowledgeClause = " Use a seguinte base de conhecimento para ajudar a responder as perguntas do usuário: "

// BuildSystemPrompt synthesizes the system turn sent ahead of every user turn.
// The knowledge clause is omitted entirely when knowledge is empty.
func BuildSystemPrompt(language, knowledge string) string {
	var builder strings.Builder
	builder.WriteString("Você é um assistente útil que responde em ")
	builder.WriteString(language)
	builder.WriteString(".")
	if knowledge != "" {
		builder.WriteString(knowledgeClause)
		builder.WriteString(knowledge)
	}
	return builder.String()
}
