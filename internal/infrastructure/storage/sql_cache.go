package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	sq "github.com/Masterminds/squirrel"

	"TechTreeCost/internal/domain"
	"TechTreeCost/internal/ports"
)

// DefaultKeyPrefix namespaces cache keys; bump it to invalidate every entry.
const DefaultKeyPrefix = "wt_cost_v1:"

const costsTable = "unit_costs"

// SQLCache persists unit costs keyed by prefix + unit id. Entries never expire.
type SQLCache struct {
	db     *sql.DB
	prefix string
	sb     sq.StatementBuilderType
}

var _ ports.CostCache = (*SQLCache)(nil)

// NewSQLCache wires an opened database; placeholder must match its driver.
func NewSQLCache(db *sql.DB, placeholder sq.PlaceholderFormat, prefix string) *SQLCache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if placeholder == nil {
		placeholder = sq.Question
	}
	return &SQLCache{
		db:     db,
		prefix: prefix,
		sb:     sq.StatementBuilder.PlaceholderFormat(placeholder),
	}
}

// Key returns the storage key of a unit.
func (c *SQLCache) Key(unitID string) string {
	return c.prefix + unitID
}

// Get returns the cached record, or false when the unit was never stored.
func (c *SQLCache) Get(ctx context.Context, unitID string) (domain.CostRecord, bool, error) {
	if c.db == nil {
		return domain.CostRecord{}, false, nil
	}

	query, args, err := c.sb.
		Select("research_points", "purchase_cost", "fetched_at").
		From(costsTable).
		Where(sq.Eq{"cache_key": c.Key(unitID)}).
		ToSql()
	if err != nil {
		return domain.CostRecord{}, false, fmt.Errorf("build select: %w", err)
	}

	var (
		rec       domain.CostRecord
		fetchedAt int64
	)
	err = c.db.QueryRowContext(ctx, query, args...).Scan(&rec.ResearchPoints, &rec.PurchaseCost, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CostRecord{}, false, nil
	}
	if err != nil {
		return domain.CostRecord{}, false, fmt.Errorf("select cost %s: %w", unitID, err)
	}

	rec.FetchedAt = time.UnixMilli(fetchedAt).UTC()
	return rec, true, nil
}

// Set upserts the record, replacing any previous one wholesale.
func (c *SQLCache) Set(ctx context.Context, unitID string, rec domain.CostRecord) error {
	if c.db == nil {
		return nil
	}

	query, args, err := c.sb.
		Insert(costsTable).
		Columns("cache_key", "research_points", "purchase_cost", "fetched_at").
		Values(c.Key(unitID), rec.ResearchPoints, rec.PurchaseCost, rec.FetchedAt.UnixMilli()).
		Suffix(`ON CONFLICT (cache_key) DO UPDATE
              SET research_points = EXCLUDED.research_points,
                  purchase_cost = EXCLUDED.purchase_cost,
                  fetched_at = EXCLUDED.fetched_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	if _, err := c.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert cost %s: %w", unitID, err)
	}

	return nil
}

// Keys lists the unit ids currently cached, in key order. The prefix is
// compared literally; LIKE would treat its underscores as wildcards.
func (c *SQLCache) Keys(ctx context.Context) ([]string, error) {
	if c.db == nil {
		return nil, nil
	}

	query, args, err := c.sb.
		Select("cache_key").
		From(costsTable).
		Where(sq.Expr("substr(cache_key, 1, ?) = ?", utf8.RuneCountInString(c.prefix), c.prefix)).
		OrderBy("cache_key").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build keys: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", err)
	}

	var ids []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan key: %w", err)
		}
		ids = append(ids, key[len(c.prefix):])
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return ids, nil
}
