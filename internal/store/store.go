// File: internal/store/store.go
// Description: SQLite audit store for session history. Every recorded turn is
// written as one row carrying the raw model response and the JSON-encoded
// actions and results, so a finished run can be replayed or inspected
// offline. The store is a TurnSink: write failures are the loop's to log,
// never to act on.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // CGO-free SQLite

	"github.com/xkilldash9x/marionette-cli/api/schemas"
)

// Store persists turns to a local SQLite database.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ schemas.TurnSink = (*Store)(nil)

// Open creates or opens the audit database at path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	// WAL + busy timeout to avoid "database is locked". The driver takes
	// pragmas in _pragma=name(value) form.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, logger: logger.Named("store")}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS sessions(
	  id         TEXT PRIMARY KEY,
	  objective  TEXT NOT NULL,
	  started_at TEXT NOT NULL,
	  outcome    TEXT NOT NULL DEFAULT 'RUNNING',
	  failure    TEXT,
	  reason     TEXT
	);
	CREATE TABLE IF NOT EXISTS turns(
	  session_id     TEXT    NOT NULL,
	  turn_index     INTEGER NOT NULL,
	  started_at     TEXT    NOT NULL,
	  observation_id TEXT,
	  grid_width     INTEGER,
	  grid_height    INTEGER,
	  screen_width   INTEGER,
	  screen_height  INTEGER,
	  raw_response   TEXT    NOT NULL,
	  actions_json   TEXT    NOT NULL CHECK (json_valid(actions_json)),
	  results_json   TEXT    NOT NULL CHECK (json_valid(results_json)),
	  done           INTEGER NOT NULL DEFAULT 0,
	  summary        TEXT,
	  PRIMARY KEY (session_id, turn_index)
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to create audit tables: %w", err)
	}
	return nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginSession registers a session before its first turn.
func (s *Store) BeginSession(ctx context.Context, id, objective string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions(id, objective, started_at) VALUES(?,?,?)`,
		id, objective, startedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// FinishSession records the terminal verdict of a session.
func (s *Store) FinishSession(ctx context.Context, id string, outcome schemas.Outcome, failure schemas.FailureKind, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET outcome = ?, failure = ?, reason = ? WHERE id = ?`,
		string(outcome), string(failure), reason, id)
	if err != nil {
		return fmt.Errorf("failed to update session outcome: %w", err)
	}
	return nil
}

// RecordTurn implements schemas.TurnSink.
func (s *Store) RecordTurn(ctx context.Context, sessionID string, turn schemas.Turn) error {
	actionsJSON, err := json.Marshal(turn.Actions)
	if err != nil {
		return fmt.Errorf("failed to marshal actions: %w", err)
	}
	resultsJSON, err := json.Marshal(turn.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	var obsID interface{}
	var gridW, gridH, screenW, screenH interface{}
	if turn.Observation != nil {
		obsID = turn.Observation.ID
		gridW = turn.Observation.Grid.Width
		gridH = turn.Observation.Grid.Height
		screenW = turn.Observation.Screen.Width
		screenH = turn.Observation.Screen.Height
	}

	done := 0
	if turn.Done {
		done = 1
	}

	_, err = s.db.ExecContext(ctx, `
	INSERT INTO turns(
	  session_id, turn_index, started_at, observation_id,
	  grid_width, grid_height, screen_width, screen_height,
	  raw_response, actions_json, results_json, done, summary
	) VALUES(?,?,?,?,?,?,?,?,?,json(?),json(?),?,?)`,
		sessionID, turn.Index, turn.StartedAt.UTC().Format(time.RFC3339Nano), obsID,
		gridW, gridH, screenW, screenH,
		turn.RawResponse, string(actionsJSON), string(resultsJSON), done, turn.Summary)
	if err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}

	s.logger.Debug("Turn persisted.",
		zap.String("session_id", sessionID),
		zap.Int("turn", turn.Index))
	return nil
}

// SessionTurns loads the recorded turns of a session in order, for replay and
// inspection. Observations come back as metadata only; frames are not stored.
func (s *Store) SessionTurns(ctx context.Context, sessionID string) ([]schemas.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT turn_index, started_at, observation_id,
	       grid_width, grid_height, screen_width, screen_height,
	       raw_response, actions_json, results_json, done, summary
	FROM turns WHERE session_id = ? ORDER BY turn_index`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	var turns []schemas.Turn
	for rows.Next() {
		var (
			turn                           schemas.Turn
			startedAt                      string
			obsID                          sql.NullString
			gridW, gridH, screenW, screenH sql.NullInt64
			actionsJSON, resultsJSON       string
			done                           int
			summary                        sql.NullString
		)
		if err := rows.Scan(&turn.Index, &startedAt, &obsID,
			&gridW, &gridH, &screenW, &screenH,
			&turn.RawResponse, &actionsJSON, &resultsJSON, &done, &summary); err != nil {
			return nil, fmt.Errorf("failed to scan turn row: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
			turn.StartedAt = ts
		}
		if obsID.Valid {
			turn.Observation = &schemas.Observation{
				ID:     obsID.String,
				Grid:   schemas.Size{Width: int(gridW.Int64), Height: int(gridH.Int64)},
				Screen: schemas.Size{Width: int(screenW.Int64), Height: int(screenH.Int64)},
			}
		}
		if err := json.Unmarshal([]byte(actionsJSON), &turn.Actions); err != nil {
			return nil, fmt.Errorf("failed to decode actions for turn %d: %w", turn.Index, err)
		}
		if err := json.Unmarshal([]byte(resultsJSON), &turn.Results); err != nil {
			return nil, fmt.Errorf("failed to decode results for turn %d: %w", turn.Index, err)
		}
		turn.Done = done != 0
		turn.Summary = summary.String
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}
