// Package postgres provides a PostgreSQL-backed implementation of the
// engine stores, using lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/flowspring/flowengine"
)

// Store implements flowengine.Store on a PostgreSQL database.
type Store struct {
	db *sql.DB
}

var _ flowengine.Store = (*Store)(nil)

// Open connects to the database at dsn and initializes the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return New(db)
}

// New initializes the required schema in the given database.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			flow_id TEXT,
			status TEXT NOT NULL,
			current_node_id TEXT,
			context BYTEA,
			output BYTEA,
			error TEXT,
			created_at TIMESTAMPTZ,
			updated_at TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS node_executions (
			id TEXT PRIMARY KEY,
			execution_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			node_type TEXT NOT NULL,
			node_name TEXT,
			status TEXT NOT NULL,
			input BYTEA,
			output BYTEA,
			error TEXT,
			execution_data BYTEA,
			retry_count INTEGER NOT NULL DEFAULT 0,
			started_at TIMESTAMPTZ,
			finished_at TIMESTAMPTZ,
			seq BIGSERIAL
		);
		CREATE INDEX IF NOT EXISTS idx_node_executions_execution
			ON node_executions (execution_id, seq);
		CREATE TABLE IF NOT EXISTS callbacks (
			callback_key TEXT PRIMARY KEY,
			execution_id TEXT NOT NULL,
			node_execution_id TEXT,
			node_id TEXT,
			topic TEXT,
			status TEXT NOT NULL,
			created_at TIMESTAMPTZ,
			expires_at TIMESTAMPTZ
		);`,
	)
	return err
}

func (s *Store) SaveExecution(ctx context.Context, record *flowengine.ExecutionRecord) error {
	output, err := encodeJSON(record.Output)
	if err != nil {
		return err
	}
	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executions (id, flow_id, status, current_node_id, context, output, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			current_node_id = EXCLUDED.current_node_id,
			context = EXCLUDED.context,
			output = EXCLUDED.output,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at`,
		record.ID,
		record.FlowID,
		string(record.Status),
		record.CurrentNodeID,
		[]byte(record.Context),
		output,
		record.Error,
		now,
		now,
	)
	return err
}

func (s *Store) LoadExecution(ctx context.Context, executionID string) (*flowengine.ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, flow_id, status, current_node_id, context, output, error, created_at, updated_at
		FROM executions WHERE id = $1`, executionID)

	var record flowengine.ExecutionRecord
	var status string
	var contextBlob, outputBlob []byte
	var createdAt, updatedAt sql.NullTime
	err := row.Scan(&record.ID, &record.FlowID, &status, &record.CurrentNodeID,
		&contextBlob, &outputBlob, &record.Error, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, flowengine.ErrExecutionNotFound
	}
	if err != nil {
		return nil, err
	}
	record.Status = flowengine.ExecutionStatus(status)
	record.Context = contextBlob
	if record.Output, err = decodeJSON(outputBlob); err != nil {
		return nil, err
	}
	record.CreatedAt = createdAt.Time
	record.UpdatedAt = updatedAt.Time
	return &record, nil
}

func (s *Store) InsertNodeExecution(ctx context.Context, record *flowengine.NodeExecutionRecord) error {
	input, err := encodeJSON(record.Input)
	if err != nil {
		return err
	}
	output, err := encodeJSON(record.Output)
	if err != nil {
		return err
	}
	executionData, err := encodeJSON(record.ExecutionData)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO node_executions
			(id, execution_id, node_id, node_type, node_name, status, input, output, error, execution_data, retry_count, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		record.ID,
		record.ExecutionID,
		record.NodeID,
		string(record.NodeType),
		record.NodeName,
		string(record.Status),
		input,
		output,
		record.Error,
		executionData,
		record.RetryCount,
		record.StartedAt,
	)
	return err
}

func (s *Store) UpdateNodeExecution(ctx context.Context, id string, status flowengine.NodeExecutionStatus, update flowengine.NodeExecutionUpdate) error {
	output, err := encodeJSON(update.Output)
	if err != nil {
		return err
	}
	executionData, err := encodeJSON(update.ExecutionData)
	if err != nil {
		return err
	}
	var finishedAt sql.NullTime
	switch status {
	case flowengine.NodeExecutionStatusCompleted,
		flowengine.NodeExecutionStatusFailed,
		flowengine.NodeExecutionStatusSkipped:
		finishedAt = sql.NullTime{Time: time.Now(), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE node_executions SET
			status = $1,
			output = COALESCE($2, output),
			error = CASE WHEN $3 != '' THEN $3 ELSE error END,
			execution_data = COALESCE($4, execution_data),
			finished_at = COALESCE($5, finished_at)
		WHERE id = $6`,
		string(status),
		output,
		update.Error,
		executionData,
		finishedAt,
		id,
	)
	return err
}

func (s *Store) ListNodeExecutions(ctx context.Context, executionID string) ([]*flowengine.NodeExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, execution_id, node_id, node_type, node_name, status, input, output, error, execution_data, retry_count, started_at, finished_at
		FROM node_executions WHERE execution_id = $1 ORDER BY seq`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*flowengine.NodeExecutionRecord
	for rows.Next() {
		var record flowengine.NodeExecutionRecord
		var nodeType, status string
		var input, output, executionData []byte
		var startedAt, finishedAt sql.NullTime
		if err := rows.Scan(&record.ID, &record.ExecutionID, &record.NodeID, &nodeType, &record.NodeName,
			&status, &input, &output, &record.Error, &executionData, &record.RetryCount,
			&startedAt, &finishedAt); err != nil {
			return nil, err
		}
		record.NodeType = flowengine.NodeType(nodeType)
		record.Status = flowengine.NodeExecutionStatus(status)
		if record.Input, err = decodeJSON(input); err != nil {
			return nil, err
		}
		if record.Output, err = decodeJSON(output); err != nil {
			return nil, err
		}
		if executionData != nil {
			data, err := decodeJSON(executionData)
			if err != nil {
				return nil, err
			}
			record.ExecutionData, _ = data.(map[string]any)
		}
		record.StartedAt = startedAt.Time
		record.FinishedAt = finishedAt.Time
		records = append(records, &record)
	}
	return records, rows.Err()
}

func (s *Store) InsertCallback(ctx context.Context, record *flowengine.AsyncCallbackRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO callbacks (callback_key, execution_id, node_execution_id, node_id, topic, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.CallbackKey,
		record.ExecutionID,
		record.NodeExecutionID,
		record.NodeID,
		record.Topic,
		string(record.Status),
		record.CreatedAt,
		record.ExpiresAt,
	)
	return err
}

func (s *Store) FindCallback(ctx context.Context, callbackKey string) (*flowengine.AsyncCallbackRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT callback_key, execution_id, node_execution_id, node_id, topic, status, created_at, expires_at
		FROM callbacks WHERE callback_key = $1`, callbackKey)

	var record flowengine.AsyncCallbackRecord
	var status string
	var createdAt, expiresAt sql.NullTime
	err := row.Scan(&record.CallbackKey, &record.ExecutionID, &record.NodeExecutionID,
		&record.NodeID, &record.Topic, &status, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	record.Status = flowengine.CallbackStatus(status)
	record.CreatedAt = createdAt.Time
	record.ExpiresAt = expiresAt.Time
	return &record, nil
}

func (s *Store) UpdateCallbackStatus(ctx context.Context, callbackKey string, status flowengine.CallbackStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE callbacks SET status = $1 WHERE callback_key = $2`,
		string(status), callbackKey)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return flowengine.ErrCallbackNotFound
	}
	return nil
}

func (s *Store) DeleteExpiredCallbacks(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM callbacks WHERE status = $1 AND expires_at < $2`,
		string(flowengine.CallbackStatusWaiting), now)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func encodeJSON(value any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	return data, nil
}

func decodeJSON(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return value, nil
}
