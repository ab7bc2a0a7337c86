package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/relaypoint/relaypoint/config"
	"github.com/relaypoint/relaypoint/logger"
	"github.com/relaypoint/relaypoint/model"
	"github.com/relaypoint/relaypoint/persistence"
	"go.uber.org/zap"
)

var _ persistence.Storage = new(sqliteStorage)

type sqliteStorage struct {
	db     *sql.DB
	relays *sqliteRelayDao
	runs   *sqliteRunDao
	outbox *sqliteOutboxDao
}

func NewSqliteStorage(conf config.SqliteConfig) (*sqliteStorage, error) {
	// The pure-Go driver ignores mattn-style parameters; its own _pragma DSN
	// grammar applies these to every connection the pool opens.
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)",
		conf.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	s := &sqliteStorage{db: db}
	s.relays = &sqliteRelayDao{db: db}
	s.runs = &sqliteRunDao{db: db}
	s.outbox = &sqliteOutboxDao{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize sqlite schema: %w", err)
	}
	return s, nil
}

func (s *sqliteStorage) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS relays (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			active INTEGER NOT NULL DEFAULT 0,
			trigger_json TEXT NOT NULL,
			actions_json TEXT NOT NULL,
			run_count INTEGER NOT NULL DEFAULT 0,
			last_run_at INTEGER,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_relays_user ON relays(user_id)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			relay_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			status TEXT NOT NULL,
			current_stage INTEGER NOT NULL DEFAULT 0,
			trigger_metadata TEXT,
			error_message TEXT,
			started_at INTEGER,
			completed_at INTEGER,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_relay ON runs(relay_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
		`CREATE TABLE IF NOT EXISTS run_history (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			action_order INTEGER NOT NULL,
			action_name TEXT NOT NULL,
			status TEXT NOT NULL,
			output TEXT,
			error TEXT,
			executed_at INTEGER NOT NULL,
			duration INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_run_history_run ON run_history(run_id, seq)`,
		`CREATE TABLE IF NOT EXISTS outbox (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			stage INTEGER NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at INTEGER NOT NULL,
			claimed_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox(status, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStorage) Relays() persistence.RelayDao {
	return s.relays
}

func (s *sqliteStorage) Runs() persistence.RunDao {
	return s.runs
}

func (s *sqliteStorage) Outbox() persistence.OutboxDao {
	return s.outbox
}

func (s *sqliteStorage) Close() error {
	return s.db.Close()
}

func (s *sqliteStorage) CreateRunAndScheduleStart(run *model.Run, entry *model.OutboxEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	defer tx.Rollback()
	if err := s.runs.insertTx(tx, run); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if err := s.outbox.insertTx(tx, entry); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if err := tx.Commit(); err != nil {
		logger.Error("error creating run with start entry", zap.String("runId", run.Id), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (s *sqliteStorage) CompleteStage(runId string, entry model.ExecutionHistoryEntry, next *model.OutboxEntry, final *model.RunStatus) error {
	tx, err := s.db.Begin()
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	defer tx.Rollback()
	if err := s.runs.appendHistoryTx(tx, runId, entry); err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if next != nil {
		if _, err := tx.Exec(`UPDATE runs SET current_stage = ? WHERE id = ?`, next.Stage, runId); err != nil {
			return persistence.StorageLayerError{Message: err.Error()}
		}
		if err := s.outbox.insertTx(tx, next); err != nil {
			return persistence.StorageLayerError{Message: err.Error()}
		}
	}
	if final != nil {
		var errorMessage any
		if *final == model.RUN_STATUS_FAILED && len(entry.Error) != 0 {
			errorMessage = entry.Error
		}
		_, err := tx.Exec(
			`UPDATE runs SET status = ?, completed_at = ?, error_message = COALESCE(?, error_message)
			 WHERE id = ? AND status NOT IN ('success', 'failed', 'cancelled')`,
			string(*final), time.Now().UnixMilli(), errorMessage, runId)
		if err != nil {
			return persistence.StorageLayerError{Message: err.Error()}
		}
	}
	if err := tx.Commit(); err != nil {
		logger.Error("error completing stage", zap.String("runId", runId), zap.Int("stage", entry.ActionOrder), zap.Error(err))
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

// placeholders builds "?, ?, ?" for IN clauses.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func millisOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func millisToTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}
