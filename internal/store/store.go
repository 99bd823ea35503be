package store

import (
	"context"
	"encoding/json"

	"github.com/OpenFieldOps/open-job-api/internal/models"
)

// DataStore defines the interface for persistent storage of jobs, chats,
// messages and notifications. PostgresStore is the production
// implementation; tests substitute fakes.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Access predicates. Both are single set-membership checks; the same
	// SQL condition backs ListJobsForUser so gate and list filter cannot
	// drift apart.
	UserHasJobAccess(ctx context.Context, userID, jobID int64) (bool, error)
	UserIsChatMember(ctx context.Context, userID, chatID int64) (bool, error)

	// Job operations
	CreateJob(ctx context.Context, job *models.Job, operatorIDs []int64) (*models.Job, error)
	GetJob(ctx context.Context, id int64) (*models.Job, error)
	ListJobsForUser(ctx context.Context, userID int64) ([]models.Job, error)
	UpdateJobStatus(ctx context.Context, id int64, status models.JobStatus) (*models.Job, error)
	SetJobOperators(ctx context.Context, jobID int64, operatorIDs []int64) error
	ListJobOperators(ctx context.Context, jobID int64) ([]int64, error)

	// Chat operations
	CreateChat(ctx context.Context, name string, memberIDs []int64) (*models.Chat, error)
	GetChat(ctx context.Context, id int64) (*models.Chat, error)
	SetChatMembers(ctx context.Context, chatID int64, memberIDs []int64) error
	ListChatsForUser(ctx context.Context, userID int64) ([]models.ChatWithLastMessage, error)
	// CreateMessage also inserts the attachments' file metadata: message,
	// files and links commit or roll back together, so a failed send never
	// strands file rows.
	CreateMessage(ctx context.Context, chatID, userID int64, text string, files []models.FileRef) (*models.Message, error)
	ListMessages(ctx context.Context, chatID int64, limit, offset int) ([]models.Message, int, error)
	ListMessageFiles(ctx context.Context, messageIDs []int64) (map[int64][]models.FileRef, error)

	// Notification operations
	CreateNotification(ctx context.Context, userID int64, title, message string, typ models.NotificationType, payload json.RawMessage) (*models.Notification, error)
	ListNotifications(ctx context.Context, userID int64) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id int64) error
	MarkAllNotificationsRead(ctx context.Context, userID int64) error
	DeleteAllNotifications(ctx context.Context, userID int64) error
}
