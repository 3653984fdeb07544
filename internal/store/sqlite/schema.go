package sqlite

// migrationsTable tracks applied registry versions. The highest version is the
// watermark; checksum is the SHA-256 of the statement as it was applied.
const migrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    description TEXT NOT NULL,
    checksum TEXT NOT NULL,
    applied_at INTEGER NOT NULL
);
`
