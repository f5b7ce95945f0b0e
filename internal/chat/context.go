package chat

import "github.com/neuroexpert/site/internal/domain"

// BuildContext turns stored turns into provider messages. turns are newest
// first; the newest turns are kept while their combined token cost stays
// within maxTokens, and the result is oldest first.
func BuildContext(turns []*domain.ChatTurn, maxTokens int) []Message {
	total := 0
	kept := 0
	for _, t := range turns {
		cost := t.Tokens()
		if total+cost > maxTokens {
			break
		}
		total += cost
		kept++
	}

	out := make([]Message, 0, kept*2)
	for i := kept - 1; i >= 0; i-- {
		out = append(out,
			Message{Role: RoleUser, Content: turns[i].UserMessage},
			Message{Role: RoleAssistant, Content: turns[i].AIResponse},
		)
	}
	return out
}
