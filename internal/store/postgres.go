package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/globalpass/standby-cli/internal/db"
	"github.com/globalpass/standby-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	criteria     JSONB NOT NULL,
	route        TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending',
	error        TEXT NOT NULL DEFAULT '',
	results      JSONB,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS bot_responses (
	run_id         TEXT NOT NULL REFERENCES runs(id),
	bot            TEXT NOT NULL,
	state          TEXT NOT NULL,
	percent        INTEGER NOT NULL DEFAULT 0,
	caption        TEXT NOT NULL DEFAULT '',
	failure_reason TEXT NOT NULL DEFAULT '',
	records        JSONB,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (run_id, bot)
);

CREATE TABLE IF NOT EXISTS ranked_flights (
	run_id         TEXT NOT NULL REFERENCES runs(id),
	rank           INTEGER NOT NULL,
	score          DOUBLE PRECISION NOT NULL,
	flight_number  TEXT NOT NULL,
	origin         TEXT NOT NULL,
	destination    TEXT NOT NULL,
	departure_date TEXT NOT NULL,
	departure_time TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_route ON runs(route);
CREATE INDEX IF NOT EXISTS idx_bot_responses_run_id ON bot_responses(run_id);
CREATE INDEX IF NOT EXISTS idx_ranked_flights_run_id ON ranked_flights(run_id);
`

// botResponseUpsert is built once; the conflict key makes re-finalize
// writes idempotent.
var botResponseUpsert = db.UpsertSQL(
	"bot_responses",
	[]string{"run_id", "bot", "state", "percent", "caption", "failure_reason", "records", "updated_at"},
	[]string{"run_id", "bot"},
)

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run model.Run) error {
	criteriaJSON, err := json.Marshal(run.Criteria)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal criteria")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, criteria, route, status, created_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, criteriaJSON, run.Criteria.Route(), string(run.Status), run.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert run")
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus, errMsg string, completedAt *time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, completed_at = $3 WHERE id = $4`,
		string(status), errMsg, completedAt, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrRunNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) SaveBotResponses(ctx context.Context, runID string, bots map[string]*model.BotTaskState, results []model.ConsolidatedFlight) error {
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal results")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET results = $1 WHERE id = $2`,
		resultsJSON, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run results %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrRunNotFound, "run %s", runID)
	}

	now := time.Now().UTC()
	for _, task := range bots {
		recordsJSON, err := json.Marshal(task.Records)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal records for %s", task.Bot)
		}
		_, err = s.pool.Exec(ctx, botResponseUpsert,
			runID, task.Bot, string(task.State), task.Percent, task.Caption,
			task.FailureReason, recordsJSON, now,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: upsert bot response %s/%s", runID, task.Bot)
		}
	}

	return s.replaceRankedFlights(ctx, runID, results)
}

// rankedFlightColumns is the flat per-candidate table behind SQL
// analytics; the JSONB results column stays the canonical record.
var rankedFlightColumns = []string{
	"run_id", "rank", "score", "flight_number",
	"origin", "destination", "departure_date", "departure_time",
}

func (s *PostgresStore) replaceRankedFlights(ctx context.Context, runID string, results []model.ConsolidatedFlight) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM ranked_flights WHERE run_id = $1`, runID); err != nil {
		return eris.Wrapf(err, "postgres: clear ranked flights %s", runID)
	}

	rows := make([][]any, 0, len(results))
	for _, f := range results {
		rows = append(rows, []any{
			runID, f.Rank, f.Score, f.Key.FlightNumber,
			f.Key.Origin, f.Key.Destination, f.Key.DepartureDate, f.Key.DepartureTime,
		})
	}
	if _, err := db.CopyFrom(ctx, s.pool, "ranked_flights", rankedFlightColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: copy ranked flights %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var criteriaJSON []byte
	var resultsJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, criteria, status, error, results, created_at, completed_at FROM runs WHERE id = $1`,
		runID,
	).Scan(&r.ID, &criteriaJSON, &r.Status, &r.Error, &resultsJSON, &r.CreatedAt, &r.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(model.ErrRunNotFound, "run %s", runID)
		}
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if err := json.Unmarshal(criteriaJSON, &r.Criteria); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal criteria")
	}
	if len(resultsJSON) > 0 {
		if err := json.Unmarshal(resultsJSON, &r.Results); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal results")
		}
	}

	rows, err := s.pool.Query(ctx,
		`SELECT bot, state, percent, caption, failure_reason, records FROM bot_responses WHERE run_id = $1`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get bot responses %s", runID)
	}
	defer rows.Close()

	r.Bots = make(map[string]*model.BotTaskState)
	for rows.Next() {
		var task model.BotTaskState
		var recordsJSON []byte
		if err := rows.Scan(&task.Bot, &task.State, &task.Percent, &task.Caption, &task.FailureReason, &recordsJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan bot response")
		}
		if len(recordsJSON) > 0 {
			if err := json.Unmarshal(recordsJSON, &task.Records); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal records")
			}
		}
		r.Bots[task.Bot] = &task
	}
	return &r, eris.Wrap(rows.Err(), "postgres: bot responses iterate")
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, criteria, status, error, results, created_at, completed_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Route != "" {
		query += fmt.Sprintf(` AND route = $%d`, argIdx)
		args = append(args, filter.Route)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var criteriaJSON, resultsJSON []byte

		if err := rows.Scan(&r.ID, &criteriaJSON, &r.Status, &r.Error, &resultsJSON, &r.CreatedAt, &r.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if err := json.Unmarshal(criteriaJSON, &r.Criteria); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal criteria")
		}
		if len(resultsJSON) > 0 {
			if err := json.Unmarshal(resultsJSON, &r.Results); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal results")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[model.RunStatus]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM runs GROUP BY status`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count by status")
	}
	defer rows.Close()

	counts := make(map[model.RunStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan count")
		}
		counts[model.RunStatus(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count iterate")
}
