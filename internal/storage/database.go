package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"shopchat/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the configured database for the given driver.
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
			dbCfg.Username,
			dbCfg.Password,
			dbCfg.Host,
			dbCfg.Port,
			dbCfg.DBName,
			dbCfg.Params,
		)
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS profiles (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				shop TEXT NOT NULL,
				session_key TEXT NOT NULL,
				customer_id TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				UNIQUE(shop, session_key)
			)`,
			`CREATE TABLE IF NOT EXISTS sessions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				profile_id INTEGER NOT NULL,
				shop TEXT NOT NULL,
				session_key TEXT NOT NULL,
				customer_id TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				last_message_at DATETIME NOT NULL,
				FOREIGN KEY(profile_id) REFERENCES profiles(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS messages (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id INTEGER NOT NULL,
				role TEXT NOT NULL,
				content TEXT NOT NULL,
				intent TEXT NOT NULL DEFAULT '',
				sentiment TEXT NOT NULL DEFAULT '',
				confidence REAL NOT NULL DEFAULT 0,
				products_shown TEXT NOT NULL DEFAULT '[]',
				created_at DATETIME NOT NULL,
				FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS shop_settings (
				shop TEXT PRIMARY KEY,
				plan TEXT NOT NULL DEFAULT 'free',
				custom_webhook_url TEXT NOT NULL DEFAULT '',
				webhook_bearer TEXT NOT NULL DEFAULT '',
				storefront_token TEXT NOT NULL DEFAULT '',
				bot_name TEXT NOT NULL DEFAULT 'Shop Assistant',
				default_language TEXT NOT NULL DEFAULT 'en',
				updated_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS analytics (
				shop TEXT NOT NULL,
				intent TEXT NOT NULL,
				sentiment TEXT NOT NULL,
				message_count INTEGER NOT NULL DEFAULT 0,
				avg_confidence REAL NOT NULL DEFAULT 0,
				avg_response_ms REAL NOT NULL DEFAULT 0,
				updated_at DATETIME NOT NULL,
				PRIMARY KEY(shop, intent, sentiment)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_lookup ON sessions(shop, session_key, last_message_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_month ON sessions(shop, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS profiles (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				shop VARCHAR(255) NOT NULL,
				session_key VARCHAR(255) NOT NULL,
				customer_id VARCHAR(255) NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				UNIQUE KEY uniq_shop_session (shop, session_key)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS sessions (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				profile_id BIGINT UNSIGNED NOT NULL,
				shop VARCHAR(255) NOT NULL,
				session_key VARCHAR(255) NOT NULL,
				customer_id VARCHAR(255) NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				last_message_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_sessions_lookup (shop, session_key, last_message_at),
				INDEX idx_sessions_month (shop, created_at),
				CONSTRAINT fk_sessions_profile FOREIGN KEY (profile_id) REFERENCES profiles(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS messages (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				session_id BIGINT UNSIGNED NOT NULL,
				role VARCHAR(50) NOT NULL,
				content MEDIUMTEXT NOT NULL,
				intent VARCHAR(50) NOT NULL DEFAULT '',
				sentiment VARCHAR(20) NOT NULL DEFAULT '',
				confidence DOUBLE NOT NULL DEFAULT 0,
				products_shown TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_messages_session (session_id, created_at),
				CONSTRAINT fk_messages_session FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS shop_settings (
				shop VARCHAR(255) NOT NULL PRIMARY KEY,
				plan VARCHAR(50) NOT NULL DEFAULT 'free',
				custom_webhook_url TEXT NOT NULL,
				webhook_bearer TEXT NOT NULL,
				storefront_token TEXT NOT NULL,
				bot_name VARCHAR(255) NOT NULL DEFAULT 'Shop Assistant',
				default_language VARCHAR(10) NOT NULL DEFAULT 'en',
				updated_at DATETIME NOT NULL
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS analytics (
				shop VARCHAR(255) NOT NULL,
				intent VARCHAR(50) NOT NULL,
				sentiment VARCHAR(20) NOT NULL,
				message_count BIGINT NOT NULL DEFAULT 0,
				avg_confidence DOUBLE NOT NULL DEFAULT 0,
				avg_response_ms DOUBLE NOT NULL DEFAULT 0,
				updated_at DATETIME NOT NULL,
				PRIMARY KEY(shop, intent, sentiment)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
