package database

// Timestamps are BIGINT unix milliseconds on both dialects.

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		uid VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		avatar VARCHAR(512) NOT NULL DEFAULT '',
		role VARCHAR(16) NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		user_low VARCHAR(64) NOT NULL,
		user_high VARCHAR(64) NOT NULL,
		last_message_id BIGINT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		UNIQUE KEY uq_conversation_pair (user_low, user_high)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS conversation_participants (
		conversation_id BIGINT NOT NULL,
		user_uid VARCHAR(64) NOT NULL,
		unread_count INT NOT NULL DEFAULT 0,
		is_visible TINYINT(1) NOT NULL DEFAULT 1,
		last_read_message_id BIGINT NULL,
		last_message_at BIGINT NULL,
		last_notified_at BIGINT NULL,
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (conversation_id, user_uid),
		KEY idx_participant_user (user_uid, is_visible, updated_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS messages (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		conversation_id BIGINT NOT NULL,
		sender_uid VARCHAR(64) NOT NULL,
		content TEXT NOT NULL,
		type VARCHAR(16) NOT NULL DEFAULT 'TEXT',
		created_at BIGINT NOT NULL,
		deleted_at BIGINT NULL,
		KEY idx_messages_conversation (conversation_id, deleted_at, id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS settings (
		name VARCHAR(128) PRIMARY KEY,
		value VARCHAR(255) NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	`CREATE TABLE IF NOT EXISTS notices (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		user_uid VARCHAR(64) NOT NULL,
		title VARCHAR(255) NOT NULL,
		body TEXT NOT NULL,
		link_path VARCHAR(512) NOT NULL,
		created_at BIGINT NOT NULL,
		read_at BIGINT NULL,
		KEY idx_notices_user (user_uid, id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		uid TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		avatar TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_low TEXT NOT NULL,
		user_high TEXT NOT NULL,
		last_message_id INTEGER NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE (user_low, user_high)
	)`,
	`CREATE TABLE IF NOT EXISTS conversation_participants (
		conversation_id INTEGER NOT NULL REFERENCES conversations(id),
		user_uid TEXT NOT NULL,
		unread_count INTEGER NOT NULL DEFAULT 0,
		is_visible INTEGER NOT NULL DEFAULT 1,
		last_read_message_id INTEGER NULL,
		last_message_at INTEGER NULL,
		last_notified_at INTEGER NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (conversation_id, user_uid)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_participant_user
		ON conversation_participants (user_uid, is_visible, updated_at)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id INTEGER NOT NULL REFERENCES conversations(id),
		sender_uid TEXT NOT NULL,
		content TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'TEXT',
		created_at INTEGER NOT NULL,
		deleted_at INTEGER NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation
		ON messages (conversation_id, deleted_at, id)`,
	`CREATE TABLE IF NOT EXISTS settings (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS notices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_uid TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		link_path TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		read_at INTEGER NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notices_user ON notices (user_uid, id)`,
}
