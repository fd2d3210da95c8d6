package service

import (
	"fmt"
	"strings"

	"github.com/jharjadi/pro-rag/chat-api-go/internal/model"
)

// IDontKnowMessage is what the model must answer when the context is not enough.
const IDontKnowMessage = "I don't know the answer to that question."

// answerTemplate is the instruction prompt sent with every question.
const answerTemplate = `[INST]
You are a helpful AI chat assistant with RAG capabilities. When a user asks you a question,
you will also be given context provided between <context> and </context> tags. Use that context
to provide a summary that addresses the user's question. Ensure the answer is coherent, concise,
and directly relevant to the user's question.

If the user asks a generic question which cannot be answered with the given context,
just say "` + IDontKnowMessage + `"

Don't say things like "according to the provided context."

<context>
%s
</context>
<question>
%s
</question>
[/INST]
Answer:
`

// summaryTemplate asks the model to fold the chat history into a standalone query.
const summaryTemplate = `[INST]
Based on the chat history below and the question, generate a query that extends the question
with the chat history provided. The query should be in natural language.
Answer with only the query. Do not add any explanation.

<chat_history>
%s
</chat_history>
<question>
%s
</question>
[/INST]
`

// CreatePrompt builds the answer prompt from the retrieved context and the question.
func CreatePrompt(contextBlock, question string) string {
	return fmt.Sprintf(answerTemplate, contextBlock, question)
}

// SummaryPrompt builds the query-expansion prompt from the chat history and the question.
func SummaryPrompt(history []model.Turn, question string) string {
	return fmt.Sprintf(summaryTemplate, FormatHistory(history), question)
}

// FormatHistory renders turns one per line as "role: content".
func FormatHistory(turns []model.Turn) string {
	var sb strings.Builder
	for i, t := range turns {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(string(t.Role))
		sb.WriteString(": ")
		sb.WriteString(t.Content)
	}
	return sb.String()
}

// SingleLine collapses a model reply to its first non-empty line.
func SingleLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if l := strings.TrimSpace(line); l != "" {
			return l
		}
	}
	return ""
}
