package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/relaypoint/relaypoint/model"
	"github.com/relaypoint/relaypoint/persistence"
)

var _ persistence.RunDao = new(sqliteRunDao)

type sqliteRunDao struct {
	db *sql.DB
}

func (dao *sqliteRunDao) insertTx(tx *sql.Tx, run *model.Run) error {
	metadataJson, err := json.Marshal(run.TriggerMetadata)
	if err != nil {
		return err
	}
	_, err = tx.Exec(
		`INSERT INTO runs (id, relay_id, user_id, status, current_stage, trigger_metadata, error_message, started_at, completed_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Id, run.RelayId, run.UserId, string(run.Status), run.CurrentStage,
		string(metadataJson), nullableString(run.ErrorMessage),
		millisOrNil(run.StartedAt), millisOrNil(run.CompletedAt), run.CreatedAt.UnixMilli())
	return err
}

func (dao *sqliteRunDao) appendHistoryTx(tx *sql.Tx, runId string, entry model.ExecutionHistoryEntry) error {
	_, err := tx.Exec(
		`INSERT INTO run_history (run_id, action_order, action_name, status, output, error, executed_at, duration)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runId, entry.ActionOrder, entry.ActionName, string(entry.Status),
		nullableString(entry.Output), nullableString(entry.Error),
		entry.ExecutedAt.UnixMilli(), entry.Duration)
	return err
}

func (dao *sqliteRunDao) Get(id string) (*model.Run, error) {
	row := dao.db.QueryRow(
		`SELECT id, relay_id, user_id, status, current_stage, trigger_metadata, error_message, started_at, completed_at, created_at
		 FROM runs WHERE id = ?`, id)
	var run model.Run
	var status string
	var metadataJson sql.NullString
	var errorMessage sql.NullString
	var startedAt, completedAt sql.NullInt64
	var createdAt int64
	err := row.Scan(&run.Id, &run.RelayId, &run.UserId, &status, &run.CurrentStage,
		&metadataJson, &errorMessage, &startedAt, &completedAt, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NotFoundError{Kind: "run", Id: id}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	run.Status = model.RunStatus(status)
	run.ErrorMessage = errorMessage.String
	run.StartedAt = millisToTime(startedAt)
	run.CompletedAt = millisToTime(completedAt)
	run.CreatedAt = time.UnixMilli(createdAt)
	if metadataJson.Valid && len(metadataJson.String) != 0 {
		if err := json.Unmarshal([]byte(metadataJson.String), &run.TriggerMetadata); err != nil {
			return nil, err
		}
	}
	history, err := dao.history(id)
	if err != nil {
		return nil, err
	}
	run.ExecutionHistory = history
	return &run, nil
}

func (dao *sqliteRunDao) history(runId string) ([]model.ExecutionHistoryEntry, error) {
	rows, err := dao.db.Query(
		`SELECT action_order, action_name, status, output, error, executed_at, duration
		 FROM run_history WHERE run_id = ? ORDER BY seq`, runId)
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	defer rows.Close()
	var history []model.ExecutionHistoryEntry
	for rows.Next() {
		var entry model.ExecutionHistoryEntry
		var status string
		var output, errText sql.NullString
		var executedAt int64
		err := rows.Scan(&entry.ActionOrder, &entry.ActionName, &status, &output, &errText, &executedAt, &entry.Duration)
		if err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		entry.Status = model.ExecutionStatus(status)
		entry.Output = output.String
		entry.Error = errText.String
		entry.ExecutedAt = time.UnixMilli(executedAt)
		history = append(history, entry)
	}
	return history, rows.Err()
}

func (dao *sqliteRunDao) MarkStarted(id string, at time.Time) error {
	_, err := dao.db.Exec(
		`UPDATE runs SET status = ?, started_at = ?
		 WHERE id = ? AND status NOT IN ('success', 'failed', 'cancelled')`,
		string(model.RUN_STATUS_RUNNING), at.UnixMilli(), id)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (dao *sqliteRunDao) MarkTerminal(id string, status model.RunStatus, errorMessage string, at time.Time) error {
	_, err := dao.db.Exec(
		`UPDATE runs SET status = ?, completed_at = ?, error_message = COALESCE(?, error_message)
		 WHERE id = ? AND status NOT IN ('success', 'failed', 'cancelled')`,
		string(status), at.UnixMilli(), nullableString(errorMessage), id)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func nullableString(s string) any {
	if len(s) == 0 {
		return nil
	}
	return s
}
