package store

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/priyankabp/stock-smart-kitchen/internal/kitchen"
)

const observationsTable = "observations"

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS observations (
		id            UUID PRIMARY KEY,
		location      TEXT NOT NULL,
		category      TEXT NOT NULL,
		observed_at   TIMESTAMPTZ NOT NULL,
		quantity      DOUBLE PRECISION NOT NULL CHECK (quantity >= 0),
		source        TEXT NOT NULL,
		revenue       DOUBLE PRECISION,
		temperature   DOUBLE PRECISION,
		humidity      DOUBLE PRECISION,
		wind_speed    DOUBLE PRECISION,
		visitor_count INTEGER,
		condition     TEXT,
		received_at   TIMESTAMPTZ NOT NULL
	)`,
	`ALTER TABLE observations ADD COLUMN IF NOT EXISTS cost DOUBLE PRECISION`,
	`CREATE INDEX IF NOT EXISTS observations_stream_time_idx
		ON observations (location, category, observed_at)`,
}

var observationColumns = []string{
	"id", "location", "category", "observed_at", "quantity", "source",
	"revenue", "temperature", "humidity", "wind_speed", "visitor_count", "condition",
	"received_at", "cost",
}

// OpenPostgres opens a pgx-backed *sql.DB and checks connectivity.
func OpenPostgres(ctx context.Context, url string) (*sql.DB, error) {
	if url == "" {
		return nil, fmt.Errorf("database url is empty")
	}

	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// PostgresStore keeps observations in an append-only Postgres table.
type PostgresStore struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Migrate creates the observations table and its stream index.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate observations: %w", err)
		}
	}
	return nil
}

// Append inserts obs. Re-appending the same ID is a no-op.
func (s *PostgresStore) Append(ctx context.Context, obs kitchen.Observation) error {
	query, args, err := s.sb.
		Insert(observationsTable).
		Columns(observationColumns...).
		Values(
			obs.ID,
			obs.Location,
			obs.Category,
			obs.Timestamp.UTC(),
			obs.Quantity,
			string(obs.Source),
			obs.Revenue,
			obs.Temperature,
			obs.Humidity,
			obs.WindSpeed,
			obs.VisitorCount,
			nullString(obs.Condition),
			obs.ReceivedAt.UTC(),
			obs.Cost,
		).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert observation: %w", err)
	}
	return nil
}

// Query streams the rows of key inside r as they are read from the cursor.
func (s *PostgresStore) Query(ctx context.Context, key kitchen.StreamKey, r kitchen.TimeRange) iter.Seq2[kitchen.Observation, error] {
	return func(yield func(kitchen.Observation, error) bool) {
		if r.Empty() {
			return
		}

		query, args, err := s.sb.
			Select(observationColumns...).
			From(observationsTable).
			Where(sq.Eq{"location": key.Location, "category": key.Category}).
			Where(sq.GtOrEq{"observed_at": r.Start.UTC()}).
			Where(sq.Lt{"observed_at": r.End.UTC()}).
			OrderBy("observed_at ASC", "received_at ASC", "id ASC").
			ToSql()
		if err != nil {
			yield(kitchen.Observation{}, fmt.Errorf("build select: %w", err))
			return
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			yield(kitchen.Observation{}, fmt.Errorf("query observations: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			obs, err := scanObservation(rows)
			if err != nil {
				yield(kitchen.Observation{}, fmt.Errorf("scan observation: %w", err))
				return
			}
			if !yield(obs, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(kitchen.Observation{}, fmt.Errorf("iterate observations: %w", err))
		}
	}
}

// Prune deletes observations older than before.
func (s *PostgresStore) Prune(ctx context.Context, before time.Time) (int, error) {
	query, args, err := s.sb.
		Delete(observationsTable).
		Where(sq.Lt{"observed_at": before.UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("prune observations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func scanObservation(rows *sql.Rows) (kitchen.Observation, error) {
	var (
		obs       kitchen.Observation
		source    string
		revenue   sql.NullFloat64
		temp      sql.NullFloat64
		humidity  sql.NullFloat64
		wind      sql.NullFloat64
		visitors  sql.NullInt64
		condition sql.NullString
		cost      sql.NullFloat64
	)

	err := rows.Scan(
		&obs.ID,
		&obs.Location,
		&obs.Category,
		&obs.Timestamp,
		&obs.Quantity,
		&source,
		&revenue,
		&temp,
		&humidity,
		&wind,
		&visitors,
		&condition,
		&obs.ReceivedAt,
		&cost,
	)
	if err != nil {
		return kitchen.Observation{}, err
	}

	obs.Timestamp = obs.Timestamp.UTC()
	obs.ReceivedAt = obs.ReceivedAt.UTC()
	obs.Source = kitchen.Source(source)
	obs.Revenue = floatPtr(revenue)
	obs.Cost = floatPtr(cost)
	obs.Temperature = floatPtr(temp)
	obs.Humidity = floatPtr(humidity)
	obs.WindSpeed = floatPtr(wind)
	if visitors.Valid {
		v := int(visitors.Int64)
		obs.VisitorCount = &v
	}
	obs.Condition = condition.String

	return obs, nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
