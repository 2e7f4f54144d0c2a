package store

const Schema = `
CREATE TABLE IF NOT EXISTS saved_items (
	source TEXT NOT NULL,
	item_id TEXT NOT NULL,
	media_type TEXT NOT NULL,
	title TEXT NOT NULL,
	artist TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (source, item_id)
);

-- Append-only record of completed downloads, used to flag search results.
CREATE TABLE IF NOT EXISTS download_history (
	source TEXT NOT NULL,
	item_id TEXT NOT NULL,
	media_type TEXT NOT NULL,
	title TEXT NOT NULL,
	artist TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	completed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (source, item_id)
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`
