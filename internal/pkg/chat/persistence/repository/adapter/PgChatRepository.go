package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	chat "go-chatline/internal/pkg/chat/application/domain"
	repository "go-chatline/internal/pkg/chat/persistence/repository/port"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgUniqueViolation is the SQLSTATE raised by the single-pair unique index.
const pgUniqueViolation = "23505"

const conversationColumns = `id, kind, name, members, admins, last_message_at, created_at, updated_at`

type PgChatRepository struct {
	pool *pgxpool.Pool
}

func NewPgChatRepository(pool *pgxpool.Pool) *PgChatRepository {
	return &PgChatRepository{pool: pool}
}

var _ repository.ChatRepository = (*PgChatRepository)(nil)

func (r *PgChatRepository) InsertConversation(ctx context.Context, c *chat.Conversation) error {
	if r == nil || r.pool == nil {
		return errors.New("PgChatRepository: nil pool")
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO chat.conversation (id, kind, name, members, admins, pair_key, last_message_at, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), $7, $8, $9)
	`, c.ID, string(c.Kind), c.Name, c.Members.Slice(), c.Admins.Slice(), c.PairKey(), c.LastMessageAt, c.CreatedAt, c.UpdatedAt)
	if isUniqueViolation(err) {
		return chat.ErrConflict
	}
	return err
}

func (r *PgChatRepository) FindSingle(ctx context.Context, userID string, otherUserID string) (*chat.Conversation, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	row := r.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM chat.conversation
		WHERE kind = 'single' AND pair_key = $1
	`, chat.PairKey(userID, otherUserID))
	return scanConversation(row)
}

func (r *PgChatRepository) GetConversation(ctx context.Context, conversationID string) (*chat.Conversation, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	row := r.pool.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM chat.conversation
		WHERE id = $1
	`, conversationID)
	return scanConversation(row)
}

func (r *PgChatRepository) ListConversationIDsByMember(ctx context.Context, userID string) ([]string, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM chat.conversation WHERE $1 = ANY(members) ORDER BY id
	`, userID)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *PgChatRepository) ListConversationsByMember(ctx context.Context, userID string) ([]chat.Conversation, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM chat.conversation
		WHERE $1 = ANY(members)
		ORDER BY COALESCE(last_message_at, updated_at) DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]chat.Conversation, 0)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// MutateConversation locks the row with SELECT ... FOR UPDATE so concurrent
// mutations of the same conversation are sequenced by Postgres.
func (r *PgChatRepository) MutateConversation(ctx context.Context, conversationID string, fn repository.MutateFunc) (*chat.Conversation, chat.MutationOp, error) {
	if r == nil || r.pool == nil {
		return nil, chat.OpNone, errors.New("PgChatRepository: nil pool")
	}
	var (
		result *chat.Conversation
		op     chat.MutationOp
	)
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT `+conversationColumns+`
			FROM chat.conversation
			WHERE id = $1
			FOR UPDATE
		`, conversationID)
		c, err := scanConversation(row)
		if err != nil {
			return err
		}
		op, err = fn(c)
		if err != nil {
			return err
		}
		switch op {
		case chat.OpUpdate:
			_, err = tx.Exec(ctx, `
				UPDATE chat.conversation
				SET name = NULLIF($2, ''), members = $3, admins = $4, last_message_at = $5, updated_at = $6
				WHERE id = $1
			`, c.ID, c.Name, c.Members.Slice(), c.Admins.Slice(), c.LastMessageAt, c.UpdatedAt)
		case chat.OpDelete:
			// chat.message rows go with it through ON DELETE CASCADE.
			_, err = tx.Exec(ctx, `DELETE FROM chat.conversation WHERE id = $1`, c.ID)
		}
		if err != nil {
			return err
		}
		result = c
		return nil
	})
	if err != nil {
		return nil, chat.OpNone, err
	}
	return result, op, nil
}

func (r *PgChatRepository) SaveMessage(ctx context.Context, m *chat.Message) error {
	if r == nil || r.pool == nil {
		return errors.New("PgChatRepository: nil pool")
	}
	attachments, err := json.Marshal(copyAttachments(m.Attachments))
	if err != nil {
		return fmt.Errorf("PgChatRepository: encode attachments: %w", err)
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `
			UPDATE chat.conversation
			SET last_message_at = GREATEST(COALESCE(last_message_at, $2), $2), updated_at = GREATEST(updated_at, $2)
			WHERE id = $1 AND $3 = ANY(members)
		`, m.ConversationID, m.CreatedAt, m.SenderID)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM chat.conversation WHERE id = $1)`, m.ConversationID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return chat.ErrNotFound
			}
			return chat.ErrForbidden
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO chat.message (id, conversation_id, sender_id, content, attachments, seen_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, m.ID, m.ConversationID, m.SenderID, m.Content, attachments, m.SeenBy.Slice(), m.CreatedAt)
		if isUniqueViolation(err) {
			return chat.ErrConflict
		}
		return err
	})
}

func (r *PgChatRepository) MarkSeen(ctx context.Context, conversationID string, userID string) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, errors.New("PgChatRepository: nil pool")
	}
	ct, err := r.pool.Exec(ctx, `
		UPDATE chat.message
		SET seen_by = array_append(seen_by, $2::text)
		WHERE conversation_id = $1
		  AND sender_id <> $2
		  AND NOT ($2 = ANY(seen_by))
	`, conversationID, userID)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func (r *PgChatRepository) GetMessagesByConversation(ctx context.Context, conversationID string, limit int, offset int) ([]chat.Message, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	if limit <= 0 {
		limit = 30
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, conversation_id, sender_id, content, attachments, seen_by, created_at
		FROM chat.message
		WHERE conversation_id = $1
		ORDER BY created_at DESC, seq DESC
		LIMIT $2 OFFSET $3
	`, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var (
			msg         chat.Message
			attachments []byte
			seenBy      []string
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &attachments, &seenBy, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Attachments = []chat.Attachment{}
		if len(attachments) > 0 {
			if err := json.Unmarshal(attachments, &msg.Attachments); err != nil {
				return nil, fmt.Errorf("PgChatRepository: decode attachments: %w", err)
			}
		}
		msg.SeenBy = chat.NewIDSet(seenBy...)
		msg.CreatedAt = msg.CreatedAt.UTC()
		msgs = append(msgs, msg)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return msgs, nil
}

func scanConversation(row pgx.Row) (*chat.Conversation, error) {
	var (
		c             chat.Conversation
		kind          string
		name          *string
		members       []string
		admins        []string
		lastMessageAt *time.Time
	)
	err := row.Scan(&c.ID, &kind, &name, &members, &admins, &lastMessageAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, chat.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Kind = chat.Kind(kind)
	if name != nil {
		c.Name = *name
	}
	c.Members = chat.NewIDSet(members...)
	c.Admins = chat.NewIDSet(admins...)
	c.LastMessageAt = lastMessageAt
	return &c, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
