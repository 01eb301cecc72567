// ABOUTME: Conversion from store records to the wire shapes served to clients
// ABOUTME: Message content gains its rendered HTML here

package messaging

import (
	"github.com/2389/reelchat/internal/store"
	"github.com/2389/reelchat/internal/wire"
)

// ToWireMessage converts a stored message, rendering its content to HTML.
func ToWireMessage(m *store.Message) wire.Message {
	return wire.Message{
		ID:             m.ID,
		Seq:            m.Seq,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		ContentHTML:    RenderHTML(m.Content),
		CreatedAt:      m.CreatedAt,
	}
}

// ToWireConversation converts a stored conversation.
func ToWireConversation(c *store.Conversation) wire.Conversation {
	out := wire.Conversation{
		ID:            c.ID,
		Participants:  []string{c.ParticipantA, c.ParticipantB},
		LastMessageAt: c.LastMessageAt,
		UnreadCount:   c.UnreadCount,
		CreatedAt:     c.CreatedAt,
	}
	if out.UnreadCount == nil {
		out.UnreadCount = map[string]int{c.ParticipantA: 0, c.ParticipantB: 0}
	}
	if c.LastMessage != nil {
		out.LastMessage = &wire.LastMessage{
			MessageID: c.LastMessage.MessageID,
			SenderID:  c.LastMessage.SenderID,
			Content:   c.LastMessage.Content,
			CreatedAt: c.LastMessage.CreatedAt,
		}
	}
	return out
}
