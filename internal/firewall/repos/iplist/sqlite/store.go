package sqlite

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/haukened/ipguard/internal/firewall/domain"
	"github.com/haukened/ipguard/internal/firewall/repos/iplist"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	list     TEXT NOT NULL,
	pattern  TEXT NOT NULL,
	added_at DATETIME NOT NULL,
	note     TEXT NOT NULL DEFAULT '',
	source   TEXT NOT NULL DEFAULT '',
	UNIQUE (list, pattern)
);
`

// sqliteStore implements iplist.Store on a single SQLite file.
type sqliteStore struct {
	db *sql.DB
}

// New opens (or creates) the database at path and bootstraps the schema.
func New(path string) (iplist.Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=1000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	// SQLite serializes writers; one connection avoids SQLITE_BUSY churn
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) LoadEntries(ctx context.Context, list domain.ListKind) ([]domain.Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pattern, added_at, note, source FROM entries WHERE list = ? ORDER BY id`, list.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Entry
	for rows.Next() {
		e, err := scanEntry(rows, list)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner, list domain.ListKind) (domain.Entry, error) {
	var (
		raw     string
		addedAt time.Time
		e       domain.Entry
	)
	if err := row.Scan(&raw, &addedAt, &e.Note, &e.Source); err != nil {
		return domain.Entry{}, err
	}
	p, err := domain.ParsePattern(raw)
	if err != nil {
		return domain.Entry{}, err
	}
	e.Pattern = p
	e.List = list
	e.AddedAt = addedAt.UTC()
	return e, nil
}

func (s *sqliteStore) SaveEntry(ctx context.Context, e domain.Entry) (domain.Entry, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Entry{}, false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO entries (list, pattern, added_at, note, source) VALUES (?, ?, ?, ?, ?)`,
		e.List.String(), e.Pattern.String(), e.AddedAt.UTC(), e.Note, e.Source)
	if err != nil {
		return domain.Entry{}, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Entry{}, false, err
	}
	if n == 1 {
		return e, true, tx.Commit()
	}

	row := tx.QueryRowContext(ctx,
		`SELECT pattern, added_at, note, source FROM entries WHERE list = ? AND pattern = ?`,
		e.List.String(), e.Pattern.String())
	existing, err := scanEntry(row, e.List)
	if err != nil {
		return domain.Entry{}, false, err
	}
	return existing, false, tx.Commit()
}

func (s *sqliteStore) DeleteEntry(ctx context.Context, p domain.Pattern, list domain.ListKind) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM entries WHERE list = ? AND pattern = ?`, list.String(), p.String())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) ClearList(ctx context.Context, list domain.ListKind) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE list = ?`, list.String())
	return err
}

var _ iplist.Store = (*sqliteStore)(nil)
