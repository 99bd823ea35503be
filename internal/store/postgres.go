package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/OpenFieldOps/open-job-api/internal/apperr"
	"github.com/OpenFieldOps/open-job-api/internal/metrics"
	"github.com/OpenFieldOps/open-job-api/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// jobAccessCond returns the job access condition with the given user
// placeholder: the principal created the job, or appears in its
// operator-assignment set. The gate and every job listing share this
// fragment so they cannot disagree. Expects the jobs table aliased as j.
func jobAccessCond(user string) string {
	return `(j.created_by = ` + user + ` OR EXISTS (
		SELECT 1 FROM job_operators jo
		WHERE jo.job_id = j.id AND jo.operator_id = ` + user + `
	))`
}

// UserHasJobAccess reports whether the user created the job or is assigned
// to it, as a single set-membership check.
func (s *PostgresStore) UserHasJobAccess(ctx context.Context, userID, jobID int64) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM jobs j
			WHERE j.id = $1 AND `+jobAccessCond("$2")+`
		)
	`, jobID, userID).Scan(&ok)
	return ok, err
}

// UserIsChatMember reports whether a (chat, user) membership row exists.
func (s *PostgresStore) UserIsChatMember(ctx context.Context, userID, chatID int64) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM chat_members
			WHERE chat_id = $1 AND user_id = $2
		)
	`, chatID, userID).Scan(&ok)
	return ok, err
}

const jobColumns = `j.id, j.title, j.description, j.location, j.status,
	j.created_by, j.start_date, j.end_date, j.created_at, j.updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	job := &models.Job{}
	err := row.Scan(
		&job.ID,
		&job.Title,
		&job.Description,
		&job.Location,
		&job.Status,
		&job.CreatedBy,
		&job.StartDate,
		&job.EndDate,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// CreateJob inserts a job and its initial operator assignments in one
// transaction.
func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job, operatorIDs []int64) (*models.Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	created, err := scanJob(tx.QueryRow(ctx, `
		INSERT INTO jobs AS j (title, description, location, status, created_by, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+jobColumns+`
	`, job.Title, job.Description, job.Location, job.Status, job.CreatedBy, job.StartDate, job.EndDate))
	if err != nil {
		return nil, err
	}

	if len(operatorIDs) > 0 {
		_, err = tx.Exec(ctx, `
			INSERT INTO job_operators (job_id, operator_id)
			SELECT $1, unnest($2::bigint[])
		`, created.ID, operatorIDs)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

// GetJob retrieves a job by ID.
func (s *PostgresStore) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM jobs j WHERE j.id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

// ListJobsForUser retrieves every job the user may act on, filtered with
// the same condition UserHasJobAccess evaluates.
func (s *PostgresStore) ListJobsForUser(ctx context.Context, userID int64) ([]models.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs j
		WHERE `+jobAccessCond("$1")+`
		ORDER BY j.start_date DESC, j.id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// UpdateJobStatus updates a job's status and bumps updated_at. Returns nil
// if the job does not exist.
func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id int64, status models.JobStatus) (*models.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, `
		UPDATE jobs AS j
		SET status = $2, updated_at = NOW()
		WHERE j.id = $1
		RETURNING `+jobColumns+`
	`, id, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

// SetJobOperators replaces the operator-assignment set atomically.
func (s *PostgresStore) SetJobOperators(ctx context.Context, jobID int64, operatorIDs []int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM job_operators WHERE job_id = $1`, jobID); err != nil {
		return err
	}
	if len(operatorIDs) > 0 {
		_, err = tx.Exec(ctx, `
			INSERT INTO job_operators (job_id, operator_id)
			SELECT $1, unnest($2::bigint[])
		`, jobID, operatorIDs)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ListJobOperators retrieves the operator ids assigned to a job.
func (s *PostgresStore) ListJobOperators(ctx context.Context, jobID int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT operator_id FROM job_operators WHERE job_id = $1 ORDER BY operator_id
	`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateChat inserts the chat row and membership rows for every given user
// in one transaction.
func (s *PostgresStore) CreateChat(ctx context.Context, name string, memberIDs []int64) (*models.Chat, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	chat := &models.Chat{}
	err = tx.QueryRow(ctx, `
		INSERT INTO chats (name)
		VALUES ($1)
		RETURNING id, name, created_at, updated_at
	`, name).Scan(&chat.ID, &chat.Name, &chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(memberIDs) > 0 {
		_, err = tx.Exec(ctx, `
			INSERT INTO chat_members (chat_id, user_id)
			SELECT $1, unnest($2::bigint[])
			ON CONFLICT (chat_id, user_id) DO NOTHING
		`, chat.ID, memberIDs)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return chat, nil
}

// GetChat retrieves a chat by ID.
func (s *PostgresStore) GetChat(ctx context.Context, id int64) (*models.Chat, error) {
	chat := &models.Chat{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, created_at, updated_at FROM chats WHERE id = $1
	`, id).Scan(&chat.ID, &chat.Name, &chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return chat, nil
}

// SetChatMembers replaces the membership set atomically: delete-all then
// insert-all. A removed member loses access the moment this commits.
func (s *PostgresStore) SetChatMembers(ctx context.Context, chatID int64, memberIDs []int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM chat_members WHERE chat_id = $1`, chatID); err != nil {
		return err
	}
	if len(memberIDs) > 0 {
		_, err = tx.Exec(ctx, `
			INSERT INTO chat_members (chat_id, user_id)
			SELECT $1, unnest($2::bigint[])
			ON CONFLICT (chat_id, user_id) DO NOTHING
		`, chatID, memberIDs)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ListChatsForUser retrieves every chat the user belongs to, each with its
// most recent message. One query for the whole set; the lateral join picks
// the latest message per chat without a per-chat round trip.
func (s *PostgresStore) ListChatsForUser(ctx context.Context, userID int64) ([]models.ChatWithLastMessage, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.name, c.created_at, c.updated_at,
		       m.text, m.created_at, m.user_id
		FROM chats c
		JOIN chat_members cm ON cm.chat_id = c.id AND cm.user_id = $1
		LEFT JOIN LATERAL (
			SELECT text, created_at, user_id
			FROM messages
			WHERE chat_id = c.id
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		) m ON TRUE
		ORDER BY c.updated_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chats := make([]models.ChatWithLastMessage, 0)
	for rows.Next() {
		var chat models.ChatWithLastMessage
		var text *string
		var createdAt *time.Time
		var senderID *int64
		err := rows.Scan(
			&chat.ID,
			&chat.Name,
			&chat.CreatedAt,
			&chat.UpdatedAt,
			&text,
			&createdAt,
			&senderID,
		)
		if err != nil {
			return nil, err
		}
		if text != nil {
			chat.LastMessage = &models.LastMessage{
				Text:      *text,
				CreatedAt: *createdAt,
				UserID:    *senderID,
			}
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	metrics.PostgresLatency.Observe(time.Since(start).Seconds())
	return chats, nil
}

// CreateMessage persists a message, its attachments' file metadata, the
// attachment links, and the chat's updated_at bump in one transaction.
// Nothing is visible to readers, and nothing may be published, until the
// commit; a rollback leaves no file rows behind.
func (s *PostgresStore) CreateMessage(ctx context.Context, chatID, userID int64, text string, files []models.FileRef) (*models.Message, error) {
	start := time.Now()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	msg := &models.Message{}
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (chat_id, user_id, text)
		VALUES ($1, $2, $3)
		RETURNING id, chat_id, user_id, text, created_at
	`, chatID, userID, text).Scan(&msg.ID, &msg.ChatID, &msg.UserID, &msg.Text, &msg.CreatedAt)
	if err != nil {
		return nil, err
	}

	if len(files) > 0 {
		fileIDs := make([]uuid.UUID, len(files))
		fileNames := make([]string, len(files))
		for i, ref := range files {
			fileIDs[i] = ref.ID
			fileNames[i] = ref.FileName
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO files (id, file_name)
			SELECT unnest($1::uuid[]), unnest($2::text[])
		`, fileIDs, fileNames)
		if err != nil {
			return nil, err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO message_files (message_id, file_id)
			SELECT $1, unnest($2::uuid[])
		`, msg.ID, fileIDs)
		if err != nil {
			return nil, err
		}
	}

	_, err = tx.Exec(ctx, `UPDATE chats SET updated_at = NOW() WHERE id = $1`, chatID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	metrics.PostgresLatency.Observe(time.Since(start).Seconds())
	return msg, nil
}

// ListMessages retrieves one page of a chat's messages, most recent first,
// ordered by (created_at, id) descending, plus the total row count.
func (s *PostgresStore) ListMessages(ctx context.Context, chatID int64, limit, offset int) ([]models.Message, int, error) {
	var total int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages WHERE chat_id = $1
	`, chatID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, chat_id, user_id, text, created_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, chatID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0, limit)
	for rows.Next() {
		var msg models.Message
		err := rows.Scan(&msg.ID, &msg.ChatID, &msg.UserID, &msg.Text, &msg.CreatedAt)
		if err != nil {
			return nil, 0, err
		}
		messages = append(messages, msg)
	}
	return messages, total, rows.Err()
}

// ListMessageFiles retrieves the attachments for a whole page of messages
// in one query, keyed by message id.
func (s *PostgresStore) ListMessageFiles(ctx context.Context, messageIDs []int64) (map[int64][]models.FileRef, error) {
	files := make(map[int64][]models.FileRef)
	if len(messageIDs) == 0 {
		return files, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT mf.message_id, f.id, f.file_name
		FROM message_files mf
		JOIN files f ON f.id = mf.file_id
		WHERE mf.message_id = ANY($1::bigint[])
		ORDER BY mf.id
	`, messageIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var messageID int64
		var ref models.FileRef
		if err := rows.Scan(&messageID, &ref.ID, &ref.FileName); err != nil {
			return nil, err
		}
		files[messageID] = append(files[messageID], ref)
	}
	return files, rows.Err()
}

// CreateNotification inserts a notification row.
func (s *PostgresStore) CreateNotification(ctx context.Context, userID int64, title, message string, typ models.NotificationType, payload json.RawMessage) (*models.Notification, error) {
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	n := &models.Notification{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO notifications (user_id, title, message, type, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, user_id, title, message, type, payload, is_read, created_at
	`, userID, title, message, typ, payload).Scan(
		&n.ID,
		&n.UserID,
		&n.Title,
		&n.Message,
		&n.Type,
		&n.Payload,
		&n.IsRead,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// ListNotifications retrieves a user's notifications, newest first.
func (s *PostgresStore) ListNotifications(ctx context.Context, userID int64) ([]models.Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, title, message, type, payload, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := make([]models.Notification, 0)
	for rows.Next() {
		var n models.Notification
		err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.Payload, &n.IsRead, &n.CreatedAt)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkNotificationRead marks a single notification as read, scoped to its
// owner.
func (s *PostgresStore) MarkNotificationRead(ctx context.Context, userID, id int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND id = $2
	`, userID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// MarkAllNotificationsRead marks every notification of a user as read.
func (s *PostgresStore) MarkAllNotificationsRead(ctx context.Context, userID int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE WHERE user_id = $1
	`, userID)
	return err
}

// DeleteAllNotifications removes every notification of a user.
func (s *PostgresStore) DeleteAllNotifications(ctx context.Context, userID int64) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM notifications WHERE user_id = $1
	`, userID)
	return err
}
