package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fentz26/aiorg/internal/models"
	"github.com/fentz26/aiorg/internal/store"
)

// --- Message Operations ---

// AppendMessage stores a new pending message.
func (s *Store) AppendMessage(ctx context.Context, m *models.Message) error {
	var content sql.NullString
	if len(m.Content) > 0 {
		content = sql.NullString{String: string(m.Content), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, sender, recipient, type, content, status, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.From, m.To, m.Type, content, string(m.Status), models.FormatTime(m.Timestamp),
	)
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("message %s: %w", m.ID, store.ErrAlreadyExists)
		}
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// PendingMessages returns unconsumed messages for a recipient, oldest first.
func (s *Store) PendingMessages(ctx context.Context, to string) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, recipient, type, content, status, timestamp FROM messages
		WHERE recipient = ? AND status = ? ORDER BY timestamp ASC, id ASC`,
		to, string(models.MessageStatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []*models.Message
	for rows.Next() {
		var m models.Message
		var content sql.NullString
		var status, ts string
		if err := rows.Scan(&m.ID, &m.From, &m.To, &m.Type, &content, &status, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if content.Valid && content.String != "" {
			m.Content = []byte(content.String)
		}
		m.Status = models.MessageStatus(status)
		if m.Timestamp, err = models.ParseTime(ts); err != nil {
			return nil, err
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// MarkConsumed flags a message as consumed.
func (s *Store) MarkConsumed(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE messages SET status = ? WHERE id = ?`, string(models.MessageStatusConsumed), id)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("message %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// --- PDR Operations ---

// WriteAudit stores a decision record.
func (s *Store) WriteAudit(ctx context.Context, e *models.AuditEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pdr (id, action, inputs_hash, outcome, task_id, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Action, e.InputsHash, e.Outcome, e.TaskID, e.Details, models.FormatTime(e.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("insert pdr: %w", err)
	}
	return nil
}

// ListAudit returns records for a task, or all records when taskID is empty.
func (s *Store) ListAudit(ctx context.Context, taskID string) ([]*models.AuditEntry, error) {
	query := `SELECT id, action, inputs_hash, outcome, task_id, details, timestamp FROM pdr`
	var args []interface{}
	if taskID != "" {
		query += ` WHERE task_id = ?`
		args = append(args, taskID)
	}
	query += ` ORDER BY timestamp ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pdr: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var tid, details sql.NullString
		var ts string
		if err := rows.Scan(&e.ID, &e.Action, &e.InputsHash, &e.Outcome, &tid, &details, &ts); err != nil {
			return nil, fmt.Errorf("scan pdr: %w", err)
		}
		e.TaskID = tid.String
		e.Details = details.String
		if e.Timestamp, err = models.ParseTime(ts); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
