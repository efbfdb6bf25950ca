package sqlstore

// schemaDDL is the relational schema shared by the sqlite and postgres
// backends. Statements are engine-neutral: TEXT keys, RFC3339 timestamps,
// JSON payloads as TEXT, occupancy as 0/1 with a version column for
// compare-and-swap updates. The movements and qc_results tables are
// insert-only; no UPDATE or DELETE statement for them exists anywhere in
// this package.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS zones (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	category   TEXT NOT NULL,
	temp_min_c REAL NOT NULL,
	temp_max_c REAL NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS locations (
	id         TEXT PRIMARY KEY,
	zone_id    TEXT NOT NULL REFERENCES zones(id),
	code       TEXT NOT NULL,
	occupied   INTEGER NOT NULL DEFAULT 0,
	sample_id  TEXT,
	version    INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE (zone_id, code)
);

CREATE TABLE IF NOT EXISTS samples (
	id                  TEXT PRIMARY KEY,
	name                TEXT NOT NULL,
	barcode             TEXT NOT NULL UNIQUE,
	status              TEXT NOT NULL,
	current_location_id TEXT,
	storage_requirement TEXT NOT NULL DEFAULT '',
	project_id          TEXT,
	batch_id            TEXT,
	metadata            TEXT NOT NULL DEFAULT '{}',
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS movements (
	id               TEXT PRIMARY KEY,
	sample_id        TEXT NOT NULL REFERENCES samples(id),
	from_location_id TEXT,
	to_location_id   TEXT,
	actor            TEXT NOT NULL,
	reason           TEXT NOT NULL,
	seq              INTEGER NOT NULL,
	recorded_at      TEXT NOT NULL,
	UNIQUE (sample_id, seq)
);

CREATE TABLE IF NOT EXISTS qc_results (
	id          TEXT PRIMARY KEY,
	sample_id   TEXT NOT NULL REFERENCES samples(id),
	qc_type     TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	metrics     TEXT NOT NULL DEFAULT '{}',
	actor       TEXT NOT NULL,
	recorded_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS barcode_counters (
	scope TEXT PRIMARY KEY,
	next  INTEGER NOT NULL
);
`
