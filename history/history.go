// history.go - Generierungs-Historie auf SQLite-Basis
//
// Dieses Modul enthaelt:
// - Log: Verbindung zur Historien-Datenbank
// - Record/Recent/Prune: Schreiben und Lesen von Generierungen
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite-Treiber registrieren

	"github.com/vlabs/artemis/api"
)

// currentSchemaVersion definiert die aktuelle Datenbank-Schema-Version.
// Wird bei Schema-Aenderungen erhoeht, die Migrationen erfordern.
const currentSchemaVersion = 1

// Log wraps the SQLite connection holding the generation history.
// SQLite serialises writers itself and WAL mode keeps readers from
// blocking them, so no application-level locking is needed here.
type Log struct {
	conn *sql.DB
}

// Open creates or opens the history database at dbPath.
func Open(dbPath string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping history database: %w", err)
	}

	l := &Log{conn: conn}
	if err := l.init(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize history database: %w", err)
	}

	return l, nil
}

// Close schliesst die Datenbankverbindung
func (l *Log) Close() error {
	_, _ = l.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE);")
	return l.conn.Close()
}

// init initialisiert das Datenbankschema
func (l *Log) init() error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		schema_version INTEGER NOT NULL DEFAULT %d
	);

	INSERT OR IGNORE INTO meta (id) VALUES (1);

	CREATE TABLE IF NOT EXISTS generations (
		id TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		class INTEGER,
		seed INTEGER NOT NULL,
		steps INTEGER NOT NULL,
		sampler TEXT NOT NULL,
		batch INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		duration_ns INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'stop',
		output_path TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_generations_created_at ON generations(created_at);
	`, currentSchemaVersion)

	if _, err := l.conn.Exec(schema); err != nil {
		return err
	}

	return nil
}

// Record speichert eine abgeschlossene oder abgebrochene Generierung
func (l *Log) Record(rec api.GenerationRecord) error {
	var class sql.NullInt64
	if rec.Class != nil {
		class = sql.NullInt64{Int64: int64(*rec.Class), Valid: true}
	}
	if rec.Status == "" {
		rec.Status = "stop"
	}

	_, err := l.conn.Exec(`
		INSERT INTO generations (id, model, class, seed, steps, sampler, batch, created_at, duration_ns, status, output_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Model, class, rec.Seed, rec.Steps, rec.Sampler, rec.Batch, rec.CreatedAt, int64(rec.Duration), rec.Status, rec.OutputPath)
	if err != nil {
		return fmt.Errorf("record generation: %w", err)
	}
	return nil
}

// Recent gibt die juengsten Generierungen zurueck, neueste zuerst
func (l *Log) Recent(limit int) ([]api.GenerationRecord, error) {
	rows, err := l.conn.Query(`
		SELECT id, model, class, seed, steps, sampler, batch, created_at, duration_ns, status, output_path
		FROM generations
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query generations: %w", err)
	}
	defer rows.Close()

	var recs []api.GenerationRecord
	for rows.Next() {
		var rec api.GenerationRecord
		var class sql.NullInt64
		var durationNs int64

		if err := rows.Scan(&rec.ID, &rec.Model, &class, &rec.Seed, &rec.Steps, &rec.Sampler, &rec.Batch, &rec.CreatedAt, &durationNs, &rec.Status, &rec.OutputPath); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		if class.Valid {
			c := int(class.Int64)
			rec.Class = &c
		}
		rec.Duration = time.Duration(durationNs)
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generations: %w", err)
	}

	return recs, nil
}

// Prune entfernt Eintraege, die aelter sind als keep
func (l *Log) Prune(keep time.Duration) error {
	_, err := l.conn.Exec(`DELETE FROM generations WHERE created_at < ?`, time.Now().Add(-keep))
	if err != nil {
		return fmt.Errorf("prune generations: %w", err)
	}

	_, _ = l.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE);")

	return nil
}
