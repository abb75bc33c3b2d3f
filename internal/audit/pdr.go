// Package audit provides PDR (Process Decision Record) writing for aiorg.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/fentz26/aiorg/internal/models"
	"github.com/fentz26/aiorg/internal/store"
)

// Lifecycle actions recorded by the engine.
const (
	ActionCreate   = "task.create"
	ActionClaim    = "task.claim"
	ActionComplete = "task.complete"
	ActionFail     = "task.fail"
)

// Outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeContended = "contended"
	OutcomeError     = "error"
)

// PDRWriter writes Process Decision Records for audit trails.
type PDRWriter struct {
	store store.AuditStore
	now   func() time.Time
}

// NewPDRWriter creates a new PDR writer.
func NewPDRWriter(s store.AuditStore) *PDRWriter {
	return &PDRWriter{store: s, now: time.Now}
}

// Record writes a PDR entry for a state-mutating action.
func (w *PDRWriter) Record(ctx context.Context, action string, inputs interface{}, outcome, taskID, details string) (*models.AuditEntry, error) {
	entry := &models.AuditEntry{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: hashInputs(inputs),
		Outcome:    outcome,
		TaskID:     taskID,
		Details:    details,
		Timestamp:  w.now().UTC(),
	}
	if err := w.store.WriteAudit(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// History returns the records for one task, oldest first.
func (w *PDRWriter) History(ctx context.Context, taskID string) ([]*models.AuditEntry, error) {
	return w.store.ListAudit(ctx, taskID)
}

// hashInputs creates a SHA256 hash of the inputs for reproducibility.
func hashInputs(inputs interface{}) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
