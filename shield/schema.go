package shield

import "database/sql"

// Schema holds the rate limit rules. Rows are keyed by "METHOD /path".
// The seeded rules cover the upload endpoints; operators tune them in place.
const Schema = `
CREATE TABLE IF NOT EXISTS rate_limits (
    endpoint       TEXT PRIMARY KEY,
    max_requests   INTEGER NOT NULL DEFAULT 60,
    window_seconds INTEGER NOT NULL DEFAULT 60,
    enabled        INTEGER NOT NULL DEFAULT 1
);

INSERT OR IGNORE INTO rate_limits (endpoint, max_requests, window_seconds) VALUES
    ('POST /api/documents/extract',  30, 60),
    ('POST /api/documents/validate', 60, 60),
    ('POST /api/documents/estimate', 60, 60),
    ('POST /api/documents/preview',  30, 60);
`

// Init creates and seeds the rate_limits table.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
