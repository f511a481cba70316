package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/mtanda/cloud-instance-metrics/internal/model"
)

func (s *Store) init(ctx context.Context, tx *sql.Tx, t time.Time) error {
	suffix := getTableSuffix(t)
	_, found := s.initialized.Get(suffix)
	if found {
		return nil
	}

	data := struct {
		DatapointsCurSuffix string
	}{
		DatapointsCurSuffix: suffix,
	}
	tmpl, err := template.New("").Parse(createTableStmt)
	if err != nil {
		return err
	}
	var sb strings.Builder
	if err = tmpl.Execute(&sb, data); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, sb.String())
	if err != nil {
		return err
	}

	s.initialized.Add(suffix, struct{}{})

	return nil
}

func withTx(ctx context.Context, db *sql.DB, f func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	err = f(tx)
	if err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return rollbackErr
		}
		return err
	}

	return tx.Commit()
}

// RecordSeries upserts every datapoint of series, one transaction per
// partition the datapoints fall into.
func (s *Store) RecordSeries(ctx context.Context, region string, series model.Series) error {
	dims, err := json.Marshal(map[string]string{
		series.Descriptor.DimensionKey: series.Descriptor.DimensionValue,
	})
	if err != nil {
		return err
	}

	partitions := make(map[string][]model.Datapoint)
	starts := make(map[string]time.Time)
	for _, dp := range series.Datapoints {
		suffix := getTableSuffix(dp.Timestamp)
		partitions[suffix] = append(partitions[suffix], dp)
		starts[suffix] = dp.Timestamp
	}

	for suffix, dps := range partitions {
		db, err := s.getDB(starts[suffix])
		if err != nil {
			return err
		}
		err = withTx(ctx, db, func(tx *sql.Tx) error {
			if err := s.init(ctx, tx, starts[suffix]); err != nil {
				return err
			}
			return recordToPartition(ctx, tx, suffix, region, string(dims), series, dps)
		})
		if err != nil {
			return fmt.Errorf("failed to record %s/%s: %w", series.Descriptor.Namespace, series.Descriptor.MetricName, err)
		}
	}

	return nil
}

func recordToPartition(ctx context.Context, tx *sql.Tx, suffix string, region string, dims string, series model.Series, dps []model.Datapoint) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO datapoints`+suffix+` (
			namespace,
			metric_name,
			region,
			dimensions,
			statistic,
			timestamp,
			value,
			updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (namespace, metric_name, region, dimensions, statistic, timestamp)
		DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Unix()
	for _, dp := range dps {
		_, err := stmt.ExecContext(ctx,
			series.Descriptor.Namespace,
			series.Descriptor.MetricName,
			region,
			dims,
			string(series.Statistic),
			dp.Timestamp.Unix(),
			dp.Value,
			now,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) WalCheckpoint(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	checkpointPRAGMA := `PRAGMA wal_checkpoint(TRUNCATE)`
	var ok, pages, moved int
	for _, db := range s.dbCache {
		if err := db.QueryRowContext(ctx, checkpointPRAGMA).Scan(&ok, &pages, &moved); err != nil {
			return err
		}
	}
	slog.Debug("WAL checkpoint", "ok", ok, "pages", pages, "moved", moved)
	return nil
}

func setAutoCheckpoint(db *sql.DB, n int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA wal_autocheckpoint=%d", n))
	return err
}
