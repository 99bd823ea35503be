package models

import (
	"time"

	"github.com/google/uuid"
)

// Chat is a named conversation shared by its members.
type Chat struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ChatMember links a user to a chat. Membership is the sole authorization
// predicate for chat actions.
type ChatMember struct {
	ID       int64     `json:"id"`
	ChatID   int64     `json:"chatId"`
	UserID   int64     `json:"userId"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Message is a chat message. Rows are immutable once created; ordering is
// (created_at, id) descending, the id tie-break covering timestamp
// collisions at the store's resolution.
type Message struct {
	ID        int64     `json:"id"`
	ChatID    int64     `json:"chatId"`
	UserID    int64     `json:"userId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessageFile links a message to a stored file. The file store owns the blob.
type MessageFile struct {
	ID        int64     `json:"id"`
	MessageID int64     `json:"messageId"`
	FileID    uuid.UUID `json:"fileId"`
}

// FileRef is an attachment as exposed on the wire: the stored file id,
// the original file name, and the resolved download URL.
type FileRef struct {
	ID       uuid.UUID `json:"id"`
	FileName string    `json:"fileName"`
	URL      string    `json:"url,omitempty"`
}

// MessageWithFiles is the chat-channel wire envelope and the REST
// representation of a message: the full message plus resolved attachments.
type MessageWithFiles struct {
	ID        int64     `json:"id"`
	ChatID    int64     `json:"chatId"`
	UserID    int64     `json:"userId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	Files     []FileRef `json:"files"`
}

// LastMessage is the most recent message of a chat, as embedded in chat
// listings.
type LastMessage struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	UserID    int64     `json:"userId"`
}

// ChatWithLastMessage annotates a chat with its most recent message, nil
// when the chat has none.
type ChatWithLastMessage struct {
	Chat
	LastMessage *LastMessage `json:"lastMessage"`
}
