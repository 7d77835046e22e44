package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/marketchat/internal/core"
	"github.com/vovakirdan/marketchat/internal/store"
)

const (
	keyToken           = "auth_token"
	keyCurrentUser     = "current_user"
	keyLastCreatedRoom = "last_created_room"
)

// Schema creates the key/value table the client state lives in.
const Schema = `
CREATE TABLE IF NOT EXISTS client_state (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db     *sql.DB
	sealer *sealer
}

var _ store.Store = (*SQLiteStore)(nil)

// New opens (or creates) the state database at dbPath and applies the schema.
// A non-empty secret encrypts the auth token at rest.
func New(dbPath, secret string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, secret, func(db *sql.DB) error {
		_, err := db.Exec(Schema)
		return err
	})
}

// NewWithSetup opens the database and runs setup instead of the default schema.
// Useful for tests that need a custom layout.
func NewWithSetup(dbPath, secret string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db, sealer: newSealer(secret)}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== AuthStore implementation ====

// Token returns the stored bearer token, or "" when signed out.
func (s *SQLiteStore) Token(ctx context.Context) (string, error) {
	raw, ok, err := s.get(ctx, keyToken)
	if err != nil || !ok {
		return "", err
	}
	token, err := s.sealer.open(raw)
	if err != nil {
		return "", fmt.Errorf("decrypt token: %w", err)
	}
	return token, nil
}

// SetToken stores token, encrypted when a secret is configured.
func (s *SQLiteStore) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return s.delete(ctx, keyToken)
	}
	sealed, err := s.sealer.seal(token)
	if err != nil {
		return fmt.Errorf("encrypt token: %w", err)
	}
	return s.put(ctx, keyToken, sealed)
}

// CurrentUser returns the cached account, or nil when none is cached.
func (s *SQLiteStore) CurrentUser(ctx context.Context) (*core.User, error) {
	raw, ok, err := s.get(ctx, keyCurrentUser)
	if err != nil || !ok {
		return nil, err
	}
	var u cachedUser
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("decode cached user: %w", err)
	}
	return &core.User{ID: u.ID, Username: u.Username, ProfileImage: u.ProfileImage}, nil
}

// SetCurrentUser caches the signed-in account.
func (s *SQLiteStore) SetCurrentUser(ctx context.Context, u core.User) error {
	data, err := json.Marshal(cachedUser{ID: u.ID, Username: u.Username, ProfileImage: u.ProfileImage})
	if err != nil {
		return fmt.Errorf("encode cached user: %w", err)
	}
	return s.put(ctx, keyCurrentUser, string(data))
}

// ClearAuth drops the token and the cached account.
func (s *SQLiteStore) ClearAuth(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM client_state WHERE key IN (?, ?)`, keyToken, keyCurrentUser)
	if err != nil {
		return fmt.Errorf("clear auth: %w", err)
	}
	return nil
}

// ==== RoomMarker implementation ====

// SetLastCreatedRoom remembers roomID until the next TakeLastCreatedRoom.
func (s *SQLiteStore) SetLastCreatedRoom(ctx context.Context, roomID string) error {
	return s.put(ctx, keyLastCreatedRoom, roomID)
}

// TakeLastCreatedRoom returns and forgets the remembered room id.
func (s *SQLiteStore) TakeLastCreatedRoom(ctx context.Context) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var roomID string
	err = tx.QueryRowContext(ctx, `SELECT value FROM client_state WHERE key = ?`, keyLastCreatedRoom).Scan(&roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query last created room: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM client_state WHERE key = ?`, keyLastCreatedRoom); err != nil {
		return "", fmt.Errorf("delete last created room: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return roomID, nil
}

type cachedUser struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	ProfileImage string `json:"profile_image,omitempty"`
}

func (s *SQLiteStore) get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM client_state WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("query %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) put(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO client_state (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM client_state WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
