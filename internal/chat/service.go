// Package chat owns chat and message persistence, membership management,
// and the fan-out of new messages onto their chat's broker channel.
package chat

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rs/zerolog"

	"github.com/OpenFieldOps/open-job-api/internal/access"
	"github.com/OpenFieldOps/open-job-api/internal/apperr"
	"github.com/OpenFieldOps/open-job-api/internal/broker"
	"github.com/OpenFieldOps/open-job-api/internal/files"
	"github.com/OpenFieldOps/open-job-api/internal/metrics"
	"github.com/OpenFieldOps/open-job-api/internal/models"
	"github.com/OpenFieldOps/open-job-api/internal/store"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Attachment is an incoming file to upload alongside a message.
type Attachment struct {
	FileName string
	Reader   io.Reader
}

// MessagePage is one page of a chat's messages plus pagination metadata.
type MessagePage struct {
	Messages   []models.MessageWithFiles `json:"messages"`
	Total      int                       `json:"total"`
	Page       int                       `json:"page"`
	Limit      int                       `json:"limit"`
	TotalPages int                       `json:"totalPages"`
}

// Service implements chat messaging over the relational store and the
// broker.
type Service struct {
	store  store.DataStore
	access *access.Resolver
	broker broker.Broker
	files  files.Store
	logger zerolog.Logger
}

// NewService creates a chat service.
func NewService(s store.DataStore, a *access.Resolver, b broker.Broker, f files.Store, logger zerolog.Logger) *Service {
	return &Service{store: s, access: a, broker: b, files: f, logger: logger}
}

// CreateChat inserts a chat and membership rows for every given user in
// one logical unit. Callers include the creator's id if the creator should
// be a member.
func (s *Service) CreateChat(ctx context.Context, name string, memberIDs []int64) (*models.Chat, error) {
	return s.store.CreateChat(ctx, name, memberIDs)
}

// SetMembers replaces the chat's membership set atomically. It is not
// incremental: callers wanting add/remove compute the full target set
// first. An empty set empties the chat.
func (s *Service) SetMembers(ctx context.Context, chatID int64, memberIDs []int64) error {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return err
	}
	if chat == nil {
		return apperr.ErrNotFound
	}
	return s.store.SetChatMembers(ctx, chatID, memberIDs)
}

// ListChatsForUser returns every chat the user belongs to, each annotated
// with its most recent message.
func (s *Service) ListChatsForUser(ctx context.Context, userID int64) ([]models.ChatWithLastMessage, error) {
	return s.store.ListChatsForUser(ctx, userID)
}

// SendMessage persists a message with its attachments, bumps the chat's
// updated_at, and publishes the assembled message onto the chat's channel.
// Non-members get apperr.ErrUnauthorized with nothing persisted. The
// commit happens before the publish: a subscriber never observes a message
// whose row is not yet visible. A failed publish is logged and does not
// fail the send.
func (s *Service) SendMessage(ctx context.Context, chatID, userID int64, text string, attachments []Attachment) (*models.MessageWithFiles, error) {
	member, err := s.access.CanAccessChat(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, apperr.ErrUnauthorized
	}

	fileRefs := make([]models.FileRef, 0, len(attachments))
	for _, att := range attachments {
		id, err := s.files.Save(ctx, att.Reader)
		if err != nil {
			s.removeBlobs(ctx, fileRefs)
			return nil, err
		}
		fileRefs = append(fileRefs, models.FileRef{ID: id, FileName: att.FileName, URL: s.files.URL(id)})
	}

	// Message, file rows and links commit together; if the transaction
	// fails the already-written blobs are removed so nothing is stranded.
	msg, err := s.store.CreateMessage(ctx, chatID, userID, text, fileRefs)
	if err != nil {
		s.removeBlobs(ctx, fileRefs)
		return nil, err
	}
	metrics.MessagesSent.Inc()

	full := &models.MessageWithFiles{
		ID:        msg.ID,
		ChatID:    msg.ChatID,
		UserID:    msg.UserID,
		Text:      msg.Text,
		CreatedAt: msg.CreatedAt,
		Files:     fileRefs,
	}

	payload, err := json.Marshal(full)
	if err != nil {
		return nil, err
	}
	if err := s.broker.Publish(ctx, broker.ChatChannel(chatID), payload); err != nil {
		metrics.BrokerPublishErrors.Inc()
		s.logger.Error().Err(err).Int64("chat_id", chatID).Msg("publish chat message")
	}

	return full, nil
}

// removeBlobs best-effort deletes blobs whose metadata never committed.
func (s *Service) removeBlobs(ctx context.Context, refs []models.FileRef) {
	for _, ref := range refs {
		if err := s.files.Remove(ctx, ref.ID); err != nil {
			s.logger.Warn().Err(err).Str("file_id", ref.ID.String()).Msg("remove orphaned blob")
		}
	}
}

// ListMessages returns one page of a chat's messages, most recent first by
// (created_at, id), with attachments resolved and pagination metadata.
// Non-members get apperr.ErrUnauthorized.
func (s *Service) ListMessages(ctx context.Context, chatID, userID int64, page, pageSize int) (*MessagePage, error) {
	member, err := s.access.CanAccessChat(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, apperr.ErrUnauthorized
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	messages, total, err := s.store.ListMessages(ctx, chatID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}

	// One batched query for the whole page's attachments.
	ids := make([]int64, len(messages))
	for i, msg := range messages {
		ids[i] = msg.ID
	}
	attachments, err := s.store.ListMessageFiles(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]models.MessageWithFiles, len(messages))
	for i, msg := range messages {
		refs := make([]models.FileRef, 0, len(attachments[msg.ID]))
		for _, ref := range attachments[msg.ID] {
			refs = append(refs, models.FileRef{ID: ref.ID, FileName: ref.FileName, URL: s.files.URL(ref.ID)})
		}
		out[i] = models.MessageWithFiles{
			ID:        msg.ID,
			ChatID:    msg.ChatID,
			UserID:    msg.UserID,
			Text:      msg.Text,
			CreatedAt: msg.CreatedAt,
			Files:     refs,
		}
	}

	return &MessagePage{
		Messages:   out,
		Total:      total,
		Page:       page,
		Limit:      pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}
