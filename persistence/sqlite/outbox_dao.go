package sqlite

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/relaypoint/relaypoint/model"
	"github.com/relaypoint/relaypoint/persistence"
)

var _ persistence.OutboxDao = new(sqliteOutboxDao)

type sqliteOutboxDao struct {
	db *sql.DB
}

func (dao *sqliteOutboxDao) insertTx(tx *sql.Tx, entry *model.OutboxEntry) error {
	payloadJson, err := json.Marshal(entry.Payload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(
		`INSERT INTO outbox (id, run_id, stage, event_type, payload, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.Id, entry.RunId, entry.Stage, string(entry.EventType),
		string(payloadJson), string(entry.Status), entry.CreatedAt.UnixMilli())
	return err
}

func (dao *sqliteOutboxDao) PollPending(batchSize int) ([]*model.OutboxEntry, error) {
	rows, err := dao.db.Query(
		`SELECT id, run_id, stage, event_type, payload, status, created_at
		 FROM outbox WHERE status = 'pending' ORDER BY created_at ASC LIMIT ?`, batchSize)
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	defer rows.Close()
	var entries []*model.OutboxEntry
	for rows.Next() {
		var entry model.OutboxEntry
		var eventType, status string
		var payloadJson sql.NullString
		var createdAt int64
		err := rows.Scan(&entry.Id, &entry.RunId, &entry.Stage, &eventType, &payloadJson, &status, &createdAt)
		if err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		entry.EventType = model.EventType(eventType)
		entry.Status = model.OutboxStatus(status)
		entry.CreatedAt = time.UnixMilli(createdAt)
		if payloadJson.Valid && len(payloadJson.String) != 0 {
			if err := json.Unmarshal([]byte(payloadJson.String), &entry.Payload); err != nil {
				return nil, err
			}
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

func (dao *sqliteOutboxDao) MarkProcessing(entries []*model.OutboxEntry) error {
	now := time.Now()
	return dao.setStatus(entries, model.OUTBOX_STATUS_PROCESSING, &now)
}

func (dao *sqliteOutboxDao) MarkPending(entries []*model.OutboxEntry) error {
	return dao.setStatus(entries, model.OUTBOX_STATUS_PENDING, nil)
}

func (dao *sqliteOutboxDao) setStatus(entries []*model.OutboxEntry, status model.OutboxStatus, claimedAt *time.Time) error {
	if len(entries) == 0 {
		return nil
	}
	args := make([]any, 0, len(entries)+2)
	args = append(args, string(status), millisOrNil(claimedAt))
	for _, entry := range entries {
		args = append(args, entry.Id)
	}
	_, err := dao.db.Exec(
		`UPDATE outbox SET status = ?, claimed_at = ? WHERE id IN (`+placeholders(len(entries))+`)`, args...)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	for _, entry := range entries {
		entry.Status = status
		entry.ClaimedAt = claimedAt
	}
	return nil
}

func (dao *sqliteOutboxDao) RecoverStale(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	res, err := dao.db.Exec(
		`UPDATE outbox SET status = 'pending', claimed_at = NULL
		 WHERE status = 'processing' AND (claimed_at IS NULL OR claimed_at <= ?)`, cutoff)
	if err != nil {
		return 0, persistence.StorageLayerError{Message: err.Error()}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, persistence.StorageLayerError{Message: err.Error()}
	}
	return int(n), nil
}

func (dao *sqliteOutboxDao) Delete(entries []*model.OutboxEntry) error {
	if len(entries) == 0 {
		return nil
	}
	args := make([]any, 0, len(entries))
	for _, entry := range entries {
		args = append(args, entry.Id)
	}
	_, err := dao.db.Exec(
		`DELETE FROM outbox WHERE id IN (`+placeholders(len(entries))+`)`, args...)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}
