package config

import (
	"database/sql"
	"embed"
	"fmt"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/chrissnell/segfit/pkg/migrate"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteProvider implements ConfigProvider for SQLite database configuration.
// Settings live in a key/value table keyed by dotted names such as
// "fit.constraint_weight".
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider creates a new SQLite configuration provider
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	migrator := migrate.NewMigrator(db, migrate.NewFSProvider(migrations, "migrations", "config_migrations"), nil)
	if err := migrator.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate settings schema: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// setting binds one settings key to a ConfigData field
type setting struct {
	key string
	get func(c *ConfigData) (string, bool)
	set func(c *ConfigData, v string) error
}

func floatSetting(key string, field func(c *ConfigData) *float64) setting {
	return setting{
		key: key,
		get: func(c *ConfigData) (string, bool) {
			v := *field(c)
			return strconv.FormatFloat(v, 'g', -1, 64), v != 0
		},
		set: func(c *ConfigData, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			*field(c) = f
			return nil
		},
	}
}

func intSetting(key string, field func(c *ConfigData) *int) setting {
	return setting{
		key: key,
		get: func(c *ConfigData) (string, bool) {
			v := *field(c)
			return strconv.Itoa(v), v != 0
		},
		set: func(c *ConfigData, v string) error {
			i, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*field(c) = i
			return nil
		},
	}
}

func stringSetting(key string, field func(c *ConfigData) *string) setting {
	return setting{
		key: key,
		get: func(c *ConfigData) (string, bool) {
			v := *field(c)
			return v, v != ""
		},
		set: func(c *ConfigData, v string) error {
			*field(c) = v
			return nil
		},
	}
}

func boolPtrSetting(key string, field func(c *ConfigData) **bool) setting {
	return setting{
		key: key,
		get: func(c *ConfigData) (string, bool) {
			p := *field(c)
			if p == nil {
				return "", false
			}
			return strconv.FormatBool(*p), true
		},
		set: func(c *ConfigData, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			*field(c) = &b
			return nil
		},
	}
}

var settings = []setting{
	floatSetting("fit.constraint_weight", func(c *ConfigData) *float64 { return &c.Fit.ConstraintWeight }),
	floatSetting("fit.boundary_epsilon", func(c *ConfigData) *float64 { return &c.Fit.BoundaryEpsilon }),
	floatSetting("fit.constant_tolerance", func(c *ConfigData) *float64 { return &c.Fit.ConstantTolerance }),
	{
		key: "fit.default_degree",
		get: func(c *ConfigData) (string, bool) {
			if c.Fit.DefaultDegree == nil {
				return "", false
			}
			return strconv.Itoa(*c.Fit.DefaultDegree), true
		},
		set: func(c *ConfigData, v string) error {
			d, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			c.Fit.DefaultDegree = &d
			return nil
		},
	},
	boolPtrSetting("fit.auto_recalculate", func(c *ConfigData) **bool { return &c.Fit.AutoRecalculate }),
	boolPtrSetting("fit.fallback_independent", func(c *ConfigData) **bool { return &c.Fit.FallbackIndependent }),
	intSetting("fit.curve_points", func(c *ConfigData) *int { return &c.Fit.CurvePoints }),
	stringSetting("data.file", func(c *ConfigData) *string { return &c.Data.File }),
	stringSetting("data.time_column", func(c *ConfigData) *string { return &c.Data.TimeColumn }),
	stringSetting("data.segments", func(c *ConfigData) *string { return &c.Data.Segments }),
	floatSetting("suggest.penalty", func(c *ConfigData) *float64 { return &c.Suggest.Penalty }),
	intSetting("suggest.min_size", func(c *ConfigData) *int { return &c.Suggest.MinSize }),
	intSetting("suggest.filter_kernel", func(c *ConfigData) *int { return &c.Suggest.FilterKernel }),
	stringSetting("server.cert", func(c *ConfigData) *string { return &c.Server.Cert }),
	stringSetting("server.key", func(c *ConfigData) *string { return &c.Server.Key }),
	intSetting("server.port", func(c *ConfigData) *int { return &c.Server.Port }),
	stringSetting("server.listen_addr", func(c *ConfigData) *string { return &c.Server.ListenAddr }),
	{
		key: "server.enable_cors",
		get: func(c *ConfigData) (string, bool) {
			return strconv.FormatBool(c.Server.EnableCORS), c.Server.EnableCORS
		},
		set: func(c *ConfigData, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			c.Server.EnableCORS = b
			return nil
		},
	},
	{
		key: "storage.sqlite.path",
		get: func(c *ConfigData) (string, bool) {
			if c.Storage.SQLite == nil || c.Storage.SQLite.Path == "" {
				return "", false
			}
			return c.Storage.SQLite.Path, true
		},
		set: func(c *ConfigData, v string) error {
			c.Storage.SQLite = &SQLiteData{Path: v}
			return nil
		},
	},
}

func lookupSetting(key string) (setting, bool) {
	for _, s := range settings {
		if s.key == key {
			return s, true
		}
	}
	return setting{}, false
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings: %w", err)
	}
	defer rows.Close()

	config := &ConfigData{}
	for rows.Next() {
		var key string
		var value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting row: %w", err)
		}
		st, ok := lookupSetting(key)
		if !ok || !value.Valid {
			continue
		}
		if err := st.set(config, value.String); err != nil {
			return nil, fmt.Errorf("%w: setting %s=%q: %v", ErrInvalidConfig, key, value.String, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// GetFitConfig returns the fitting parameters
func (s *SQLiteProvider) GetFitConfig() (*FitData, error) {
	config, err := s.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &config.Fit, nil
}

// GetServerConfig returns the HTTP server configuration
func (s *SQLiteProvider) GetServerConfig() (*ServerData, error) {
	config, err := s.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &config.Server, nil
}

// IsReadOnly returns false since SQLite configuration can be modified
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveConfig replaces every stored setting with the set fields of configData
func (s *SQLiteProvider) SaveConfig(configData *ConfigData) error {
	// Start transaction
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM settings`); err != nil {
		return fmt.Errorf("failed to clear existing settings: %w", err)
	}

	for _, st := range settings {
		value, ok := st.get(configData)
		if !ok {
			continue
		}
		if err := s.insertSetting(tx, st.key, value); err != nil {
			return fmt.Errorf("failed to insert setting %s: %w", st.key, err)
		}
	}

	// Commit transaction
	return tx.Commit()
}

// SetValue stores a single setting after checking that it parses
func (s *SQLiteProvider) SetValue(key, value string) error {
	st, ok := lookupSetting(key)
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", ErrInvalidConfig, key)
	}
	if err := st.set(&ConfigData{}, value); err != nil {
		return fmt.Errorf("%w: setting %s=%q: %v", ErrInvalidConfig, key, value, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.insertSetting(tx, key, value); err != nil {
		return fmt.Errorf("failed to store setting %s: %w", key, err)
	}
	return tx.Commit()
}

func (s *SQLiteProvider) insertSetting(tx *sql.Tx, key, value string) error {
	query := `INSERT OR REPLACE INTO settings (key, value, updated_at) VALUES (?, ?, datetime('now'))`
	_, err := tx.Exec(query, key, value)
	return err
}
