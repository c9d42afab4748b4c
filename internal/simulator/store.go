package simulator

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"modernc.org/sqlite"
)

var registerOnce sync.Once

// registerFunctions installs the gateway's SQL helpers. Decryption is a
// passthrough: the simulator stores plaintext.
func registerFunctions() {
	registerOnce.Do(func() {
		sqlite.MustRegisterDeterministicScalarFunction("kakao_decrypt", -1,
			func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
				if len(args) == 0 {
					return nil, nil
				}
				return args[0], nil
			})
	})
}

// Store is the simulator's query backend. It mirrors the gateway's schema
// layout: chat logs in db1, member tables in db2 and the user table in user.
type Store struct {
	db *sql.DB
}

// OpenStore opens the store. With an empty dbPath every schema is in memory;
// otherwise the main database lives at dbPath and the db1, db2 and user
// schemas in sibling files (dbPath.db1, dbPath.db2, dbPath.user).
func OpenStore(dbPath string) (*Store, error) {
	registerFunctions()

	dsn := ":memory:"
	files := map[string]string{"db1": ":memory:", "db2": ":memory:", "user": ":memory:"}
	if dbPath != "" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
		}
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		for name := range files {
			files[name] = dbPath + "." + name
		}
	}

	// sql.Open does not connect; it only resolves the registered driver,
	// which carries the kakao_decrypt function.
	registered, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	drv := registered.Driver()
	registered.Close()

	db := sql.OpenDB(&schemaConnector{
		driver: drv,
		dsn:    dsn,
		attachments: []attachment{
			{name: "db1", file: files["db1"]},
			{name: "db2", file: files["db2"]},
			{name: "user", file: files["user"]},
		},
		walAttachments: dbPath != "",
	})

	// One connection: in-memory schemas are private to their connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database setup failed: %w", err)
	}
	return &Store{db: db}, nil
}

type attachment struct {
	name string
	file string
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS db1.chat_logs (
		_id        INTEGER PRIMARY KEY AUTOINCREMENT,
		id         INTEGER NOT NULL UNIQUE,
		chat_id    INTEGER NOT NULL,
		user_id    INTEGER NOT NULL,
		type       INTEGER NOT NULL DEFAULT 1,
		message    TEXT,
		attachment TEXT,
		created_at INTEGER NOT NULL,
		v          TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS db2.friends (
		id   INTEGER PRIMARY KEY,
		name TEXT,
		enc  INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS db2.open_chat_member (
		user_id  INTEGER PRIMARY KEY,
		nickname TEXT,
		enc      INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS "user".user (
		id       INTEGER PRIMARY KEY,
		nickname TEXT
	)`,
}

// schemaConnector attaches the gateway schemas and migrates them on every
// new connection. Attachments belong to a connection, so a replaced
// connection would otherwise lose them.
type schemaConnector struct {
	driver         driver.Driver
	dsn            string
	attachments    []attachment
	walAttachments bool
}

func (c *schemaConnector) Connect(ctx context.Context) (driver.Conn, error) {
	conn, err := c.driver.Open(c.dsn)
	if err != nil {
		return nil, err
	}
	execer, ok := conn.(driver.ExecerContext)
	if !ok {
		conn.Close()
		return nil, errors.New("sqlite connection does not support ExecContext")
	}

	exec := func(stmt string, args ...driver.NamedValue) error {
		if _, err := execer.ExecContext(ctx, stmt, args); err != nil {
			return fmt.Errorf("%s: %w", firstLine(stmt), err)
		}
		return nil
	}

	for _, a := range c.attachments {
		if err := exec(`ATTACH DATABASE ? AS "`+a.name+`"`, driver.NamedValue{Ordinal: 1, Value: a.file}); err != nil {
			conn.Close()
			return nil, err
		}
		if c.walAttachments {
			if err := exec(`PRAGMA "` + a.name + `".journal_mode = WAL`); err != nil {
				conn.Close()
				return nil, err
			}
		}
	}
	for _, stmt := range schema {
		if err := exec(stmt); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

func (c *schemaConnector) Driver() driver.Driver { return c.driver }

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

// ChatLogRow is one row of db1.chat_logs.
type ChatLogRow struct {
	LogID      int64
	ChatID     int64
	UserID     int64
	Type       int
	Message    string
	Attachment string
	CreatedAt  int64
	Enc        int
}

// InsertChatLog stores a chat log. Nickname lookups go through AddFriend,
// AddOpenMember and AddUser.
func (s *Store) InsertChatLog(ctx context.Context, row ChatLogRow) error {
	v, err := json.Marshal(map[string]any{"enc": row.Enc})
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO db1.chat_logs (id, chat_id, user_id, type, message, attachment, created_at, v)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.LogID, row.ChatID, row.UserID, row.Type, row.Message, row.Attachment, row.CreatedAt, string(v))
	if err != nil {
		return fmt.Errorf("insert chat log %d: %w", row.LogID, err)
	}
	return nil
}

func (s *Store) AddFriend(ctx context.Context, id int64, name string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO db2.friends (id, name) VALUES (?, ?)`, id, name)
	return err
}

func (s *Store) AddOpenMember(ctx context.Context, userID int64, nickname string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO db2.open_chat_member (user_id, nickname) VALUES (?, ?)`, userID, nickname)
	return err
}

func (s *Store) AddUser(ctx context.Context, id int64, nickname string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO "user".user (id, nickname) VALUES (?, ?)`, id, nickname)
	return err
}

// Query runs query with binds and returns the rows as JSON objects keyed
// by column name.
func (s *Store) Query(ctx context.Context, query string, binds []any) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, query, binds...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := []map[string]any{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
