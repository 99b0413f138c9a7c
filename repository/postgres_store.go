package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pennytrack/apperrors"
	"pennytrack/logger"
	"pennytrack/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var trackedColumns = []string{"sku", "store_id", "name", "last_price", "last_updated"}

// PostgresStore keeps tracked items and history in Postgres
type PostgresStore struct {
	db  *sql.DB
	log *logger.Logger
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an open connection; see database.CreateTables
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, log: logger.ForStore()}
}

func insertTrackedQuery(items []models.TrackedItem) (string, []interface{}, error) {
	q := psql.Insert("tracked_items").Columns("sku", "store_id", "name")
	for _, it := range items {
		q = q.Values(it.SKU, it.StoreID, it.Name)
	}
	return q.Suffix("ON CONFLICT (sku) DO NOTHING").ToSql()
}

func (s *PostgresStore) UpsertCandidates(ctx context.Context, candidates []models.ClearanceCandidate) (int, error) {
	items := candidatesToItems(candidates)
	if len(items) == 0 {
		return 0, nil
	}

	query, args, err := insertTrackedQuery(items)
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apperrors.NewStoreIO("upsert_candidates", "tracked_items", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperrors.NewStoreIO("upsert_candidates", "tracked_items", err)
	}
	s.log.Info().Int64("inserted", n).Int("offered", len(items)).Msg("Candidates saved")
	return int(n), nil
}

func (s *PostgresStore) ListTracked(ctx context.Context) ([]models.TrackedItem, error) {
	query, args, err := psql.Select(trackedColumns...).From("tracked_items").OrderBy("created_at", "sku").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStoreIO("list_tracked", "tracked_items", err)
	}
	defer rows.Close()

	var items []models.TrackedItem
	for rows.Next() {
		item, err := scanTracked(rows)
		if err != nil {
			return nil, apperrors.NewStoreIO("list_tracked", "tracked_items", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreIO("list_tracked", "tracked_items", err)
	}
	return items, nil
}

func (s *PostgresStore) GetTracked(ctx context.Context, sku string) (*models.TrackedItem, error) {
	query, args, err := psql.Select(trackedColumns...).From("tracked_items").Where(sq.Eq{"sku": sku}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	item, err := scanTracked(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("get_tracked", sku, "sku is not tracked")
	}
	if err != nil {
		return nil, apperrors.NewStoreIO("get_tracked", sku, err)
	}
	return item, nil
}

func (s *PostgresStore) AddTracked(ctx context.Context, item models.TrackedItem) (bool, error) {
	query, args, err := insertTrackedQuery([]models.TrackedItem{item})
	if err != nil {
		return false, fmt.Errorf("build insert: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, apperrors.NewStoreIO("add_tracked", item.SKU, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.NewStoreIO("add_tracked", item.SKU, err)
	}
	return n == 1, nil
}

func (s *PostgresStore) RemoveTracked(ctx context.Context, sku string) error {
	query, args, err := psql.Delete("tracked_items").Where(sq.Eq{"sku": sku}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apperrors.NewStoreIO("remove_tracked", sku, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewNotFound("remove_tracked", sku, "sku is not tracked")
	}
	return nil
}

// ApplyFetchResult updates the item and appends history in one transaction
func (s *PostgresStore) ApplyFetchResult(ctx context.Context, sku string, price decimal.Decimal, at time.Time) error {
	update, updateArgs, err := psql.Update("tracked_items").
		Set("last_price", price).
		Set("last_updated", at).
		Where(sq.Eq{"sku": sku}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	insert, insertArgs, err := psql.Insert("price_history").
		Columns("sku", "price", "observed_at").
		Values(sku, price, at).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStoreIO("apply_fetch_result", sku, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, update, updateArgs...)
	if err != nil {
		return apperrors.NewStoreIO("apply_fetch_result", sku, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewNotFound("apply_fetch_result", sku, "sku is not tracked")
	}
	if _, err := tx.ExecContext(ctx, insert, insertArgs...); err != nil {
		return apperrors.NewStoreIO("apply_fetch_result", sku, err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.NewStoreIO("apply_fetch_result", sku, err)
	}
	return nil
}

func (s *PostgresStore) History(ctx context.Context, sku string) ([]models.PriceObservation, error) {
	query, args, err := psql.Select("sku", "price", "observed_at").
		From("price_history").
		Where(sq.Eq{"sku": sku}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStoreIO("history", sku, err)
	}
	defer rows.Close()

	var out []models.PriceObservation
	for rows.Next() {
		var obs models.PriceObservation
		if err := rows.Scan(&obs.SKU, &obs.Price, &obs.Timestamp); err != nil {
			return nil, apperrors.NewStoreIO("history", sku, err)
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreIO("history", sku, err)
	}
	return out, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTracked(row rowScanner) (*models.TrackedItem, error) {
	var item models.TrackedItem
	var updated sql.NullTime
	if err := row.Scan(&item.SKU, &item.StoreID, &item.Name, &item.LastPrice, &updated); err != nil {
		return nil, err
	}
	if updated.Valid {
		ts := updated.Time
		item.LastUpdated = &ts
	}
	return &item, nil
}
