package export

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	_ "modernc.org/sqlite"

	logx "pushd/pkg/logx"
)

//go:embed migrations.sql
var sqliteSchema string

// sqliteExporter stores every publish as a row in publishes plus one row per
// sample. Rows older than the retention window are pruned after each publish.
type sqliteExporter struct {
	name      string
	src       prometheus.Gatherer
	log       logx.Logger
	retention time.Duration

	mu sync.Mutex
	db *sql.DB
}

func openSQLite(cfg Config, src prometheus.Gatherer, log logx.Logger) (Exporter, error) {
	path := strings.TrimSpace(cfg.SQLite.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.SQLite.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.SQLite.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}

	log.Debug("sqlite exporter opened", logx.String("path", path), logx.Duration("retention", cfg.SQLite.Retention))
	return &sqliteExporter{
		name:      cfg.Name,
		src:       src,
		log:       log,
		retention: cfg.SQLite.Retention,
		db:        db,
	}, nil
}

func (e *sqliteExporter) Name() string { return e.name }

func (e *sqliteExporter) Publish(ctx context.Context) error {
	b, err := gather(ctx, e.src, e.name)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db == nil {
		return ErrClosed
	}
	if err := e.insert(ctx, b); err != nil {
		return err
	}
	if e.retention > 0 {
		if n, err := e.prune(ctx, b.At.Add(-e.retention)); err != nil {
			e.log.Debug("sqlite prune failed", logx.Err(err))
		} else if n > 0 {
			e.log.Debug("sqlite pruned publishes", logx.Int64("rows", n))
		}
	}
	return nil
}

func (e *sqliteExporter) insert(ctx context.Context, b Batch) (err error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO publishes(source, at, samples) VALUES(?,?,?)`,
		b.Source, b.At.UnixMilli(), len(b.Samples),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO samples(publish_id, name, type, labels, value) VALUES(?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, s := range b.Samples {
		if _, err = stmt.ExecContext(ctx, id, s.Name, s.Type, labelString(s.Labels), s.Value); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// prune deletes publishes recorded before cutoff and returns how many went.
func (e *sqliteExporter) prune(ctx context.Context, cutoff time.Time) (int64, error) {
	ms := cutoff.UnixMilli()
	if _, err := e.db.ExecContext(ctx,
		`DELETE FROM samples WHERE publish_id IN (SELECT id FROM publishes WHERE at < ?)`, ms); err != nil {
		return 0, err
	}
	res, err := e.db.ExecContext(ctx, `DELETE FROM publishes WHERE at < ?`, ms)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (e *sqliteExporter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	return err
}
