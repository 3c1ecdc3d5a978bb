package chat

import (
	"time"

	"github.com/lalith-99/dmstream/internal/models"
)

// EventMessage is the push type for a delivered message.
const EventMessage = "message"

// MessageView is the client-facing shape of a message, used both for live
// pushes and history replies. IsSelf is relative to whoever receives it.
type MessageView struct {
	SenderIdentity   string      `json:"senderIdentity"`
	ReceiverIdentity string      `json:"receiverIdentity"`
	Content          *string     `json:"content"`
	Kind             models.Kind `json:"kind"`
	MediaReference   *string     `json:"mediaReference"`
	Timestamp        time.Time   `json:"timestamp"`
	IsSelf           bool        `json:"isSelf"`
}

func viewOf(m *models.Message, isSelf bool) MessageView {
	return MessageView{
		SenderIdentity:   m.SenderIdentity,
		ReceiverIdentity: m.ReceiverIdentity,
		Content:          optional(m.Body.Content()),
		Kind:             m.Body.Kind(),
		MediaReference:   optional(m.Body.MediaRef()),
		Timestamp:        m.CreatedAt,
		IsSelf:           isSelf,
	}
}

// Empty strings go out as null, matching the stored NULLs.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
