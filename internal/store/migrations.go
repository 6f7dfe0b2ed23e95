package store

// migration holds a single schema migration with its target version and
// the SQL for each supported dialect.
type migration struct {
	version  int
	sqlite   string
	postgres string
}

func (m migration) sql(driver string) string {
	if driver == DriverPostgres {
		return m.postgres
	}
	return m.sqlite
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sqlite: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL DEFAULT '',
	last_sync  DATETIME,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS messages (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	message_id       TEXT NOT NULL,
	mailbox          TEXT NOT NULL DEFAULT 'INBOX',
	subject          TEXT NOT NULL DEFAULT '',
	from_address     TEXT NOT NULL DEFAULT '',
	from_name        TEXT NOT NULL DEFAULT '',
	to_address       TEXT NOT NULL DEFAULT '',
	cc_address       TEXT NOT NULL DEFAULT '',
	bcc_address      TEXT NOT NULL DEFAULT '',
	received_date    DATETIME NOT NULL,
	body_preview     TEXT NOT NULL DEFAULT '',
	body_text        TEXT NOT NULL DEFAULT '',
	body_html        TEXT NOT NULL DEFAULT '',
	has_attachments  INTEGER NOT NULL DEFAULT 0 CHECK(has_attachments IN (0, 1)),
	attachment_count INTEGER NOT NULL DEFAULT 0,
	is_read          INTEGER NOT NULL DEFAULT 0 CHECK(is_read IN (0, 1)),
	is_starred       INTEGER NOT NULL DEFAULT 0 CHECK(is_starred IN (0, 1)),
	size             INTEGER NOT NULL DEFAULT 0,
	uid              INTEGER NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(user_id, message_id)
);

CREATE INDEX IF NOT EXISTS idx_messages_user_received ON messages(user_id, received_date);
CREATE INDEX IF NOT EXISTS idx_messages_user_read ON messages(user_id, is_read);

INSERT INTO schema_version (version) VALUES (1);
`,
		postgres: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL DEFAULT '',
	last_sync  TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS messages (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	message_id       TEXT NOT NULL,
	mailbox          TEXT NOT NULL DEFAULT 'INBOX',
	subject          TEXT NOT NULL DEFAULT '',
	from_address     TEXT NOT NULL DEFAULT '',
	from_name        TEXT NOT NULL DEFAULT '',
	to_address       TEXT NOT NULL DEFAULT '',
	cc_address       TEXT NOT NULL DEFAULT '',
	bcc_address      TEXT NOT NULL DEFAULT '',
	received_date    TIMESTAMPTZ NOT NULL,
	body_preview     TEXT NOT NULL DEFAULT '',
	body_text        TEXT NOT NULL DEFAULT '',
	body_html        TEXT NOT NULL DEFAULT '',
	has_attachments  BOOLEAN NOT NULL DEFAULT FALSE,
	attachment_count INTEGER NOT NULL DEFAULT 0,
	is_read          BOOLEAN NOT NULL DEFAULT FALSE,
	is_starred       BOOLEAN NOT NULL DEFAULT FALSE,
	size             BIGINT NOT NULL DEFAULT 0,
	uid              BIGINT NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE(user_id, message_id)
);

CREATE INDEX IF NOT EXISTS idx_messages_user_received ON messages(user_id, received_date);
CREATE INDEX IF NOT EXISTS idx_messages_user_read ON messages(user_id, is_read);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
