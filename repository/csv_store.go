package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"pennytrack/apperrors"
	"pennytrack/logger"
	"pennytrack/models"

	"github.com/shopspring/decimal"
)

var (
	trackedHeader = []string{"sku", "store_id", "name", "last_price", "last_updated"}
	historyHeader = []string{"sku", "price", "timestamp"}
)

// CSVStore keeps tracked items and history in two flat files. The tracked
// file is rewritten atomically on every change; history is append-only.
// It is safe for concurrent use within one process.
type CSVStore struct {
	mu          sync.Mutex
	trackedPath string
	historyPath string
	log         *logger.Logger
}

var _ Store = (*CSVStore)(nil)

// NewCSVStore creates parent directories; missing files read as empty
func NewCSVStore(trackedPath, historyPath string) (*CSVStore, error) {
	for _, p := range []string{trackedPath, historyPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return nil, apperrors.NewStoreIO("create_dir", p, err)
		}
	}
	return &CSVStore{
		trackedPath: trackedPath,
		historyPath: historyPath,
		log:         logger.ForStore(),
	}, nil
}

func (s *CSVStore) UpsertCandidates(ctx context.Context, candidates []models.ClearanceCandidate) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.readTracked()
	if err != nil {
		return 0, err
	}
	existing := make(map[string]bool, len(items))
	for _, it := range items {
		existing[it.SKU] = true
	}

	inserted := 0
	for _, it := range candidatesToItems(candidates) {
		if existing[it.SKU] {
			continue
		}
		items = append(items, it)
		inserted++
	}
	if inserted == 0 {
		return 0, nil
	}
	if err := s.writeTracked(items); err != nil {
		return 0, err
	}
	s.log.Info().Int("inserted", inserted).Int("total", len(items)).Msg("Candidates saved")
	return inserted, nil
}

func (s *CSVStore) ListTracked(ctx context.Context) ([]models.TrackedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readTracked()
}

func (s *CSVStore) GetTracked(ctx context.Context, sku string) (*models.TrackedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.readTracked()
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].SKU == sku {
			return &items[i], nil
		}
	}
	return nil, apperrors.NewNotFound("get_tracked", sku, "sku is not tracked")
}

func (s *CSVStore) AddTracked(ctx context.Context, item models.TrackedItem) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.readTracked()
	if err != nil {
		return false, err
	}
	for _, it := range items {
		if it.SKU == item.SKU {
			return false, nil
		}
	}
	return true, s.writeTracked(append(items, item))
}

func (s *CSVStore) RemoveTracked(ctx context.Context, sku string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.readTracked()
	if err != nil {
		return err
	}
	kept := items[:0]
	for _, it := range items {
		if it.SKU != sku {
			kept = append(kept, it)
		}
	}
	if len(kept) == len(items) {
		return apperrors.NewNotFound("remove_tracked", sku, "sku is not tracked")
	}
	return s.writeTracked(kept)
}

func (s *CSVStore) ApplyFetchResult(ctx context.Context, sku string, price decimal.Decimal, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.readTracked()
	if err != nil {
		return err
	}
	at = at.Local().Truncate(time.Second)

	found := false
	for i := range items {
		if items[i].SKU == sku {
			items[i].LastPrice = decimal.NewNullDecimal(price)
			ts := at
			items[i].LastUpdated = &ts
			found = true
			break
		}
	}
	if !found {
		return apperrors.NewNotFound("apply_fetch_result", sku, "sku is not tracked")
	}

	// History first, so a failed append never leaves last_price ahead of it
	if err := s.appendHistory(models.PriceObservation{SKU: sku, Price: price, Timestamp: at}); err != nil {
		return err
	}
	return s.writeTracked(items)
}

func (s *CSVStore) History(ctx context.Context, sku string) ([]models.PriceObservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := readRows(s.historyPath)
	if err != nil {
		return nil, apperrors.NewStoreIO("read_history", s.historyPath, err)
	}

	var out []models.PriceObservation
	for _, row := range rows {
		if row["sku"] != sku {
			continue
		}
		price, err := decimal.NewFromString(row["price"])
		if err != nil {
			s.log.Warn().Str("sku", sku).Str("price", row["price"]).Msg("Skipping unreadable history row")
			continue
		}
		ts, err := parseTimestamp(row["timestamp"])
		if err != nil || ts == nil {
			s.log.Warn().Str("sku", sku).Str("timestamp", row["timestamp"]).Msg("Skipping unreadable history row")
			continue
		}
		out = append(out, models.PriceObservation{SKU: sku, Price: price, Timestamp: *ts})
	}
	return out, nil
}

func (s *CSVStore) Close() error {
	return nil
}

func (s *CSVStore) readTracked() ([]models.TrackedItem, error) {
	rows, err := readRows(s.trackedPath)
	if err != nil {
		return nil, apperrors.NewStoreIO("read_tracked", s.trackedPath, err)
	}

	items := make([]models.TrackedItem, 0, len(rows))
	for _, row := range rows {
		sku := strings.TrimSpace(row["sku"])
		if sku == "" {
			continue
		}
		item := models.TrackedItem{SKU: sku, StoreID: row["store_id"], Name: row["name"]}
		if p := strings.TrimSpace(row["last_price"]); p != "" {
			if price, err := decimal.NewFromString(p); err == nil {
				item.LastPrice = decimal.NewNullDecimal(price)
			}
		}
		if ts, err := parseTimestamp(row["last_updated"]); err == nil {
			item.LastUpdated = ts
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *CSVStore) writeTracked(items []models.TrackedItem) error {
	records := make([][]string, 0, len(items)+1)
	records = append(records, trackedHeader)
	for _, it := range items {
		price := ""
		if it.LastPrice.Valid {
			price = it.LastPrice.Decimal.StringFixed(2)
		}
		updated := ""
		if it.LastUpdated != nil {
			updated = it.LastUpdated.Local().Format(models.TimestampLayout)
		}
		records = append(records, []string{it.SKU, it.StoreID, it.Name, price, updated})
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.trackedPath), ".tracked-*.csv")
	if err != nil {
		return apperrors.NewStoreIO("write_tracked", s.trackedPath, err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0644); err != nil {
		s.log.Debug().Err(err).Msg("chmod temp file")
	}

	w := csv.NewWriter(tmp)
	if err := w.WriteAll(records); err != nil {
		_ = tmp.Close()
		return apperrors.NewStoreIO("write_tracked", s.trackedPath, err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.NewStoreIO("write_tracked", s.trackedPath, err)
	}
	if err := os.Rename(tmp.Name(), s.trackedPath); err != nil {
		return apperrors.NewStoreIO("write_tracked", s.trackedPath, err)
	}
	return nil
}

func (s *CSVStore) appendHistory(obs models.PriceObservation) error {
	f, err := os.OpenFile(s.historyPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return apperrors.NewStoreIO("append_history", s.historyPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return apperrors.NewStoreIO("append_history", s.historyPath, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(historyHeader); err != nil {
			return apperrors.NewStoreIO("append_history", s.historyPath, err)
		}
	}
	if err := w.Write([]string{obs.SKU, obs.Price.StringFixed(2), obs.Timestamp.Format(models.TimestampLayout)}); err != nil {
		return apperrors.NewStoreIO("append_history", s.historyPath, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return apperrors.NewStoreIO("append_history", s.historyPath, err)
	}
	return nil
}

// readRows maps each record to its header; a missing file has no rows and
// missing columns read as ""
func readRows(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var rows []map[string]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// parseTimestamp accepts the flat-file layout and RFC 3339; blank is nil
func parseTimestamp(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if ts, err := time.ParseInLocation(models.TimestampLayout, s, time.Local); err == nil {
		return &ts, nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}
