package cellule

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

const (
	tableMembers    = "members"
	tableAttendance = "attendance"
	tablePrayers    = "prayers"
)

var dialect = goqu.Dialect("sqlite3")

// Database owns the connection pool to the cell's SQLite file. Every
// operation acquires its own connection and releases it before returning.
type Database struct {
	db  *sql.DB
	log *logrus.Logger
}

// NewDatabase opens (or creates) the SQLite database at dbPath and makes sure
// the three tables exist.
func NewDatabase(dbPath string, log *logrus.Logger) (*Database, error) {
	// Ensure directory exists so first-run succeeds.
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	database := newDatabase(db, log)
	if err := database.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	database.log.WithField("path", dbPath).Info("database ready")
	return database, nil
}

func newDatabase(db *sql.DB, log *logrus.Logger) *Database {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	return &Database{db: db, log: log}
}

// Close closes the pool.
func (d *Database) Close() error { return d.db.Close() }

// ---------------------------------------------------------------------------
// Schema
// ---------------------------------------------------------------------------

// Dates are kept as TEXT so the driver hands back the ISO string untouched.
// attendance.member_id has no REFERENCES clause; a record may outlive the
// member it points at.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS members (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL,
        phone TEXT,
        email TEXT,
        role TEXT,
        joined TEXT
    );`,
	`CREATE TABLE IF NOT EXISTS attendance (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        member_id INTEGER,
        attend_date TEXT,
        present INTEGER NOT NULL CHECK (present IN (0, 1)),
        note TEXT
    );`,
	`CREATE TABLE IF NOT EXISTS prayers (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        requester TEXT,
        content TEXT NOT NULL,
        created TEXT,
        status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'answered'))
    );`,
}

// EnsureSchema creates any missing table. Existing tables are never altered.
func (d *Database) EnsureSchema(ctx context.Context) error {
	return d.withConn(ctx, func(conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for _, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create schema: %w", err)
			}
		}
		return tx.Commit()
	})
}

// Reset drops every table and recreates the schema in a single transaction.
// Callers are expected to have checked the operator's confirmation first.
func (d *Database) Reset(ctx context.Context) error {
	err := d.withConn(ctx, func(conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for _, table := range []string{tableAttendance, tablePrayers, tableMembers} {
			if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
				return fmt.Errorf("drop %s: %w", table, err)
			}
		}
		for _, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create schema: %w", err)
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return err
	}
	d.log.Warn("database reset: all members, attendance and prayers removed")
	return nil
}

// ---------------------------------------------------------------------------
// Primitives
// ---------------------------------------------------------------------------

// withConn hands fn a dedicated connection and always returns it to the pool.
func (d *Database) withConn(ctx context.Context, fn func(*sql.Conn) error) error {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()
	return fn(conn)
}

// Read runs a parameterized read-only query and returns the result as a Table.
func (d *Database) Read(ctx context.Context, query string, args ...any) (*Table, error) {
	d.log.WithField("sql", query).Debug("read")
	var table *Table
	err := d.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		table, err = scanTable(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return table, nil
}

// Write runs a parameterized mutation in autocommit mode and reports the
// number of affected rows.
func (d *Database) Write(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := d.exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d *Database) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	d.log.WithField("sql", query).Debug("write")
	var res sql.Result
	err := d.withConn(ctx, func(conn *sql.Conn) error {
		var err error
		res, err = conn.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	return res, nil
}

func (d *Database) insert(ctx context.Context, ds *goqu.InsertDataset) (int64, error) {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}
	res, err := d.exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// readDataset renders ds with bound parameters and returns it as a Table.
func (d *Database) readDataset(ctx context.Context, ds *goqu.SelectDataset) (*Table, error) {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return d.Read(ctx, query, args...)
}

// scanDataset renders ds and feeds every row to scan.
func (d *Database) scanDataset(ctx context.Context, ds *goqu.SelectDataset, scan func(*sql.Rows) error) error {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	d.log.WithField("sql", query).Debug("read")
	err = d.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			if err := scan(rows); err != nil {
				return err
			}
		}
		return rows.Err()
	})
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// CRUD helpers
// ---------------------------------------------------------------------------

func (d *Database) AddMember(ctx context.Context, name, phone, email string, role Role, joined string) (int64, error) {
	return d.insert(ctx, dialect.Insert(tableMembers).Rows(goqu.Record{
		"name":   name,
		"phone":  nullable(phone),
		"email":  nullable(email),
		"role":   string(role),
		"joined": joined,
	}))
}

// AddAttendance stores a record as given; memberID is not checked.
func (d *Database) AddAttendance(ctx context.Context, memberID int64, attendDate string, present bool, note string) (int64, error) {
	flag := 0
	if present {
		flag = 1
	}
	return d.insert(ctx, dialect.Insert(tableAttendance).Rows(goqu.Record{
		"member_id":   memberID,
		"attend_date": attendDate,
		"present":     flag,
		"note":        nullable(note),
	}))
}

func (d *Database) AddPrayer(ctx context.Context, requester, content, created string, status PrayerStatus) (int64, error) {
	return d.insert(ctx, dialect.Insert(tablePrayers).Rows(goqu.Record{
		"requester": requester,
		"content":   content,
		"created":   created,
		"status":    string(status),
	}))
}

// UpdatePrayerStatus sets the status column for id. An unknown id affects
// zero rows and is not an error.
func (d *Database) UpdatePrayerStatus(ctx context.Context, id int64, status PrayerStatus) (int64, error) {
	query, args, err := dialect.Update(tablePrayers).
		Set(goqu.Record{"status": string(status)}).
		Where(goqu.C("id").Eq(id)).
		Prepared(true).
		ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}
	return d.Write(ctx, query, args...)
}

// GetMember fetches a single member, returning sql.ErrNoRows when absent.
func (d *Database) GetMember(ctx context.Context, id int64) (*Member, error) {
	var found *Member
	err := d.scanDataset(ctx, membersDataset().Where(goqu.C("id").Eq(id)), func(rows *sql.Rows) error {
		m, err := scanMember(rows)
		found = m
		return err
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, sql.ErrNoRows
	}
	return found, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
