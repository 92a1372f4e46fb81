package repository

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"kiwigeek/internal/model"
)

const (
	turnLogTable  = "turn_log"
	feedbackTable = "option_feedback"

	defaultTurnLimit = 50
	maxTurnLimit     = 500
)

var turnColumns = []string{
	"id", "session_id", "turn", "user_text", "budget", "state", "attempts",
	"filtered_count", "quote", "warnings", "response_time_ms", "created_at",
}

// psql builds PostgreSQL statements with $n placeholders
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresRepository handles database operations
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(dsn string, maxConn, maxIdleConn int) (*PostgresRepository, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxConn)
	db.SetMaxIdleConns(maxIdleConn)
	db.SetConnMaxLifetime(5 * time.Minute) // Shorter lifetime to avoid stale connections
	db.SetConnMaxIdleTime(2 * time.Minute) // Close idle connections sooner

	return &PostgresRepository{db: db}, nil
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// Ping checks that the database is reachable
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// LogTurn stores one finished user turn
func (r *PostgresRepository) LogTurn(ctx context.Context, rec *model.TurnRecord) error {
	query, args, err := insertTurnQuery(rec).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build turn insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to log turn: %w", err)
	}
	return nil
}

// ListTurns returns the most recent turns of a session, oldest first
func (r *PostgresRepository) ListTurns(ctx context.Context, sessionID string, limit int) ([]model.TurnRecord, error) {
	query, args, err := listTurnsQuery(sessionID, limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build turn query: %w", err)
	}

	turns := []model.TurnRecord{}
	if err := r.db.SelectContext(ctx, &turns, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}

	// newest first from the database
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// LogFeedback logs what the customer did with a proposed option
func (r *PostgresRepository) LogFeedback(ctx context.Context, req *model.FeedbackRequest) error {
	query, args, err := insertFeedbackQuery(req).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build feedback insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to log feedback: %w", err)
	}
	return nil
}

func insertTurnQuery(rec *model.TurnRecord) sq.InsertBuilder {
	return psql.Insert(turnLogTable).
		Columns("session_id", "turn", "user_text", "budget", "state", "attempts",
			"filtered_count", "quote", "warnings", "response_time_ms").
		Values(rec.SessionID, rec.Turn, rec.UserText, rec.Budget, rec.State, rec.Attempts,
			rec.FilteredCount, rec.Quote, rec.Warnings, rec.ResponseTimeMs)
}

func listTurnsQuery(sessionID string, limit int) sq.SelectBuilder {
	if limit <= 0 {
		limit = defaultTurnLimit
	}
	if limit > maxTurnLimit {
		limit = maxTurnLimit
	}

	return psql.Select(turnColumns...).
		From(turnLogTable).
		Where(sq.Eq{"session_id": sessionID}).
		OrderBy("created_at DESC", "turn DESC").
		Limit(uint64(limit))
}

func insertFeedbackQuery(req *model.FeedbackRequest) sq.InsertBuilder {
	return psql.Insert(feedbackTable).
		Columns("session_id", "turn", "option_title", "action").
		Values(req.SessionID, req.Turn, req.OptionTitle, req.Action)
}
