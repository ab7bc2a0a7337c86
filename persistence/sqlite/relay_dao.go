package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/relaypoint/relaypoint/model"
	"github.com/relaypoint/relaypoint/persistence"
)

var _ persistence.RelayDao = new(sqliteRelayDao)

type sqliteRelayDao struct {
	db *sql.DB
}

func (dao *sqliteRelayDao) Save(relay *model.Relay) error {
	triggerJson, err := json.Marshal(relay.Trigger)
	if err != nil {
		return err
	}
	actionsJson, err := json.Marshal(relay.Actions)
	if err != nil {
		return err
	}
	_, err = dao.db.Exec(
		`INSERT INTO relays (id, user_id, name, description, active, trigger_json, actions_json, run_count, last_run_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			active = excluded.active,
			trigger_json = excluded.trigger_json,
			actions_json = excluded.actions_json`,
		relay.Id, relay.UserId, relay.Name, relay.Description, boolToInt(relay.Active),
		string(triggerJson), string(actionsJson), relay.RunCount, millisOrNil(relay.LastRunAt),
		relay.CreatedAt.UnixMilli())
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (dao *sqliteRelayDao) Get(id string) (*model.Relay, error) {
	row := dao.db.QueryRow(
		`SELECT id, user_id, name, description, active, trigger_json, actions_json, run_count, last_run_at, created_at
		 FROM relays WHERE id = ?`, id)
	relay, err := scanRelay(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NotFoundError{Kind: "relay", Id: id}
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return relay, nil
}

func (dao *sqliteRelayDao) List(userId string) ([]*model.Relay, error) {
	query := `SELECT id, user_id, name, description, active, trigger_json, actions_json, run_count, last_run_at, created_at
		 FROM relays`
	args := []any{}
	if len(userId) != 0 {
		query += ` WHERE user_id = ?`
		args = append(args, userId)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := dao.db.Query(query, args...)
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	defer rows.Close()
	var relays []*model.Relay
	for rows.Next() {
		relay, err := scanRelay(rows)
		if err != nil {
			return nil, persistence.StorageLayerError{Message: err.Error()}
		}
		relays = append(relays, relay)
	}
	return relays, rows.Err()
}

func (dao *sqliteRelayDao) RecordTrigger(id string, at time.Time) error {
	res, err := dao.db.Exec(
		`UPDATE relays SET run_count = run_count + 1, last_run_at = ? WHERE id = ?`,
		at.UnixMilli(), id)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	if affected == 0 {
		return persistence.NotFoundError{Kind: "relay", Id: id}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRelay(row rowScanner) (*model.Relay, error) {
	var relay model.Relay
	var description sql.NullString
	var active int
	var triggerJson, actionsJson string
	var lastRunAt sql.NullInt64
	var createdAt int64
	err := row.Scan(&relay.Id, &relay.UserId, &relay.Name, &description, &active,
		&triggerJson, &actionsJson, &relay.RunCount, &lastRunAt, &createdAt)
	if err != nil {
		return nil, err
	}
	relay.Description = description.String
	relay.Active = active != 0
	relay.LastRunAt = millisToTime(lastRunAt)
	relay.CreatedAt = time.UnixMilli(createdAt)
	if err := json.Unmarshal([]byte(triggerJson), &relay.Trigger); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(actionsJson), &relay.Actions); err != nil {
		return nil, err
	}
	return &relay, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
