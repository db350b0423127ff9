package db

import (
	"context"
	"fmt"

	"advocate_dashboard/internal/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	decisionsTable    = "review_decisions"
	defaultHistoryCap = 50
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Database инкапсулирует пул соединений к PostgreSQL с журналом модерации.
type Database struct {
	Pool *pgxpool.Pool
}

// NewDB создаёт новый пул соединений по connString и возвращает Database.
func NewDB(ctx context.Context, connString string) (*Database, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	return &Database{Pool: pool}, nil
}

// Close закрывает пул соединений.
func (db *Database) Close() {
	db.Pool.Close()
}

// Ping проверяет доступность базы.
func (db *Database) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// EnsureSchema создаёт таблицу журнала, если её нет.
func (db *Database) EnsureSchema(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS review_decisions (
            id SERIAL PRIMARY KEY,
            article_id TEXT NOT NULL,
            title TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL,
            decided_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS review_decisions_article_idx
            ON review_decisions (article_id, decided_at DESC);
    `)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// SaveDecision добавляет запись в журнал. Журнал только дополняется,
// данные статей по-прежнему живут в удалённой таблице.
func (db *Database) SaveDecision(ctx context.Context, d models.ReviewDecision) error {
	query, args, err := psql.Insert(decisionsTable).
		Columns("article_id", "title", "status", "decided_at").
		Values(d.ArticleID, d.Title, string(d.Status), d.DecidedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := db.Pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("save decision: %w", err)
	}
	return nil
}

// History возвращает последние решения по статье, новые первыми.
// Пустой articleID означает все статьи.
func (db *Database) History(ctx context.Context, articleID string, limit int) ([]models.ReviewDecision, error) {
	if limit < 1 || limit > defaultHistoryCap {
		limit = defaultHistoryCap
	}

	q := psql.Select("article_id", "title", "status", "decided_at").
		From(decisionsTable).
		OrderBy("decided_at DESC", "id DESC").
		Limit(uint64(limit))
	if articleID != "" {
		q = q.Where(sq.Eq{"article_id": articleID})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	decisions := []models.ReviewDecision{}
	for rows.Next() {
		var (
			d      models.ReviewDecision
			status string
		)
		if err := rows.Scan(&d.ArticleID, &d.Title, &status, &d.DecidedAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.Status = models.ParseStatus(status)
		decisions = append(decisions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return decisions, nil
}
