package records

import (
	"context"
	"time"

	"github.com/dalemusser/bandhub/internal/app/store/docstore"
	"github.com/dalemusser/bandhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/bandhub/internal/domain/errs"
	"github.com/dalemusser/bandhub/internal/domain/models"
	"github.com/google/uuid"
)

const ChatsCollection = "chats"

// MaxMessageLength caps a sanitized chat message body.
const MaxMessageLength = 4000

// Chats holds group conversations.
type Chats struct {
	*Collection[models.Chat, *models.Chat]
}

func NewChats(s docstore.Store, gate Gate) *Chats {
	return &Chats{NewCollection[models.Chat](s, ChatsCollection, models.ModuleChats, gate)}
}

// Open creates a chat. The name is stripped of markup.
func (c *Chats) Open(ctx context.Context, groupID, name string) (models.Chat, error) {
	return c.Create(ctx, groupID, models.Chat{Name: htmlsanitize.PlainText(name), Messages: []models.ChatMessage{}})
}

// PostMessage appends a sanitized message from the caller.
func (c *Chats) PostMessage(ctx context.Context, groupID, chatID, body string) (models.ChatMessage, error) {
	caller, err := c.authorize(ctx, groupID)
	if err != nil {
		return models.ChatMessage{}, err
	}
	clean := htmlsanitize.Sanitize(body)
	if clean == "" {
		return models.ChatMessage{}, errs.Validation("message is empty")
	}
	if len(clean) > MaxMessageLength {
		return models.ChatMessage{}, errs.Validation("message longer than %d characters", MaxMessageLength)
	}
	msg := models.ChatMessage{
		ID:       uuid.NewString(),
		AuthorID: caller.UserID,
		Body:     clean,
		SentAt:   time.Now().UTC(),
	}
	_, err = c.update(ctx, groupID, chatID, func(ch *models.Chat) error {
		ch.Messages = append(ch.Messages, msg)
		return nil
	})
	if err != nil {
		return models.ChatMessage{}, err
	}
	return msg, nil
}
