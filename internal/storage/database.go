package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"chatbff/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the configured relational database.
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(cfg.Driver) {
	case "sqlite", "sqlite3":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		if strings.Contains(cfg.DSN, ":memory:") || strings.Contains(cfg.DSN, "mode=memory") {
			// every pooled connection would otherwise see its own empty database
			db.SetMaxOpenConns(1)
		}
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case "mysql":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
				cfg.Username,
				cfg.Password,
				cfg.Host,
				cfg.Port,
				cfg.DBName,
				cfg.Params,
			)
		}
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
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
			`CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				email TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL DEFAULT '',
				type TEXT NOT NULL DEFAULT 'regular',
				created_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS user_tokens (
				token TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				expires_at DATETIME NOT NULL,
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_user_tokens_user ON user_tokens(user_id)`,
			`CREATE TABLE IF NOT EXISTS chats (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				title TEXT NOT NULL,
				visibility TEXT NOT NULL DEFAULT 'private',
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_chats_user_created ON chats(user_id, created_at DESC)`,
			`CREATE TABLE IF NOT EXISTS messages (
				id TEXT PRIMARY KEY,
				chat_id TEXT NOT NULL,
				role TEXT NOT NULL,
				parts TEXT NOT NULL,
				attachments TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				FOREIGN KEY(chat_id) REFERENCES chats(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages(chat_id, created_at)`,
			`CREATE TABLE IF NOT EXISTS streams (
				id TEXT PRIMARY KEY,
				chat_id TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				FOREIGN KEY(chat_id) REFERENCES chats(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_streams_chat ON streams(chat_id, created_at)`,
			`CREATE TABLE IF NOT EXISTS documents (
				id TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				title TEXT NOT NULL,
				content TEXT,
				kind TEXT NOT NULL DEFAULT 'text',
				user_id TEXT NOT NULL,
				PRIMARY KEY (id, created_at),
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS suggestions (
				id TEXT PRIMARY KEY,
				document_id TEXT NOT NULL,
				document_created_at DATETIME NOT NULL,
				original_text TEXT NOT NULL,
				suggested_text TEXT NOT NULL,
				description TEXT,
				is_resolved BOOLEAN NOT NULL DEFAULT 0,
				user_id TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				FOREIGN KEY(document_id, document_created_at) REFERENCES documents(id, created_at) ON DELETE CASCADE
			)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				id VARCHAR(64) NOT NULL PRIMARY KEY,
				email VARCHAR(255) NOT NULL UNIQUE,
				password_hash VARCHAR(255) NOT NULL DEFAULT '',
				type VARCHAR(16) NOT NULL DEFAULT 'regular',
				created_at DATETIME(3) NOT NULL
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS user_tokens (
				token VARCHAR(255) NOT NULL PRIMARY KEY,
				user_id VARCHAR(64) NOT NULL,
				created_at DATETIME(3) NOT NULL,
				expires_at DATETIME(3) NOT NULL,
				INDEX idx_user_tokens_user (user_id),
				CONSTRAINT fk_user_tokens_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS chats (
				id VARCHAR(64) NOT NULL PRIMARY KEY,
				user_id VARCHAR(64) NOT NULL,
				title VARCHAR(255) NOT NULL,
				visibility VARCHAR(16) NOT NULL DEFAULT 'private',
				created_at DATETIME(3) NOT NULL,
				INDEX idx_chats_user_created (user_id, created_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS messages (
				id VARCHAR(64) NOT NULL PRIMARY KEY,
				chat_id VARCHAR(64) NOT NULL,
				role VARCHAR(16) NOT NULL,
				parts MEDIUMTEXT NOT NULL,
				attachments TEXT NOT NULL,
				created_at DATETIME(3) NOT NULL,
				INDEX idx_messages_chat_created (chat_id, created_at),
				CONSTRAINT fk_messages_chat FOREIGN KEY (chat_id) REFERENCES chats(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS streams (
				id VARCHAR(64) NOT NULL PRIMARY KEY,
				chat_id VARCHAR(64) NOT NULL,
				created_at DATETIME(3) NOT NULL,
				INDEX idx_streams_chat (chat_id, created_at),
				CONSTRAINT fk_streams_chat FOREIGN KEY (chat_id) REFERENCES chats(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS documents (
				id VARCHAR(64) NOT NULL,
				created_at DATETIME(3) NOT NULL,
				title VARCHAR(255) NOT NULL,
				content MEDIUMTEXT,
				kind VARCHAR(16) NOT NULL DEFAULT 'text',
				user_id VARCHAR(64) NOT NULL,
				PRIMARY KEY (id, created_at),
				CONSTRAINT fk_documents_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS suggestions (
				id VARCHAR(64) NOT NULL PRIMARY KEY,
				document_id VARCHAR(64) NOT NULL,
				document_created_at DATETIME(3) NOT NULL,
				original_text TEXT NOT NULL,
				suggested_text TEXT NOT NULL,
				description TEXT,
				is_resolved BOOLEAN NOT NULL DEFAULT FALSE,
				user_id VARCHAR(64) NOT NULL,
				created_at DATETIME(3) NOT NULL,
				CONSTRAINT fk_suggestions_document FOREIGN KEY (document_id, document_created_at) REFERENCES documents(id, created_at) ON DELETE CASCADE
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
