package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/chrissnell/segfit/pkg/migrate"
	"github.com/chrissnell/segfit/pkg/segment"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore is a ProjectStore backed by a SQLite database. Channel states
// are stored as zstd-compressed msgpack blobs using the same field names as
// the JSON form.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
	now    func() time.Time
}

// Open opens or creates the project database at path
func Open(path string, logger *zap.SugaredLogger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// SQLite serializes writers; one connection avoids "database is locked"
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	migrator := migrate.NewMigrator(db, migrate.NewFSProvider(migrations, "migrations", "schema_migrations"), logger)
	if err := migrator.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate project schema: %w", err)
	}

	logger.Infof("project store opened at %s", path)
	return &SQLiteStore{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Save stores states as a new project and returns its id
func (s *SQLiteStore) Save(ctx context.Context, name string, states []*segment.ChannelState) (string, error) {
	id := uuid.New().String()
	stamp := s.now().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO projects (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, name, stamp, stamp)
	if err != nil {
		return "", fmt.Errorf("failed to insert project: %w", err)
	}
	if err := s.insertChannels(ctx, tx, id, states); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit project: %w", err)
	}

	s.logger.Infof("saved project %s (%s) with %d channels", name, id, len(states))
	return id, nil
}

// Update replaces the channel states of an existing project
func (s *SQLiteStore) Update(ctx context.Context, id string, states []*segment.ChannelState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE projects SET updated_at = ? WHERE id = ?`,
		s.now().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to check update: %w", err)
	} else if n == 0 {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM channels WHERE project_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear channels: %w", err)
	}
	if err := s.insertChannels(ctx, tx, id, states); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit project: %w", err)
	}

	s.logger.Debugf("updated project %s with %d channels", id, len(states))
	return nil
}

func (s *SQLiteStore) insertChannels(ctx context.Context, tx *sql.Tx, id string, states []*segment.ChannelState) error {
	for i, state := range states {
		blob, err := encodeState(state)
		if err != nil {
			return fmt.Errorf("failed to encode channel %s: %w", state.Name, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO channels (project_id, position, name, state, encoding, checksum) VALUES (?, ?, ?, ?, ?, ?)`,
			id, i, state.Name, blob.data, blob.encoding, blob.checksum)
		if err != nil {
			return fmt.Errorf("failed to insert channel %s: %w", state.Name, err)
		}
	}
	return nil
}

// Load returns a project with its channel states
func (s *SQLiteStore) Load(ctx context.Context, id string) (*Project, error) {
	var p Project
	var created, updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query project: %w", err)
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("bad created_at for project %s: %w", id, err)
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, fmt.Errorf("bad updated_at for project %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, state, encoding, checksum FROM channels WHERE project_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var blob stateBlob
		if err := rows.Scan(&name, &blob.data, &blob.encoding, &blob.checksum); err != nil {
			return nil, fmt.Errorf("failed to scan channel row: %w", err)
		}
		state, err := decodeState(blob)
		if err != nil {
			return nil, fmt.Errorf("failed to decode channel %s: %w", name, err)
		}
		p.Channels = append(p.Channels, state)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read channels: %w", err)
	}

	p.ChannelCount = len(p.Channels)
	return &p, nil
}

// List returns every stored project, most recently updated first
func (s *SQLiteStore) List(ctx context.Context) ([]ProjectInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.created_at, p.updated_at, COUNT(c.position)
		FROM projects p
		LEFT JOIN channels c ON c.project_id = p.id
		GROUP BY p.id
		ORDER BY p.updated_at DESC, p.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	projects := []ProjectInfo{}
	for rows.Next() {
		var info ProjectInfo
		var created, updated string
		if err := rows.Scan(&info.ID, &info.Name, &created, &updated, &info.ChannelCount); err != nil {
			return nil, fmt.Errorf("failed to scan project row: %w", err)
		}
		info.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		info.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		projects = append(projects, info)
	}
	return projects, rows.Err()
}

// Delete removes a project and its channels
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM channels WHERE project_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete channels: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	return tx.Commit()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
