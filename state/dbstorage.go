package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ts4z/trz/dbutil"
	"github.com/ts4z/trz/model"
)

// createdAtLayout sorts lexically, so ORDER BY and range deletes work on
// the text column in both dialects.
const createdAtLayout = "2006-01-02T15:04:05.000Z"

type DBStorage struct {
	db      *sql.DB
	dialect dbutil.Dialect
}

var (
	_ ReportStorage   = (*DBStorage)(nil)
	_ SettingsStorage = (*DBStorage)(nil)
)

func NewDBStorage(db *sql.DB, dialect dbutil.Dialect) *DBStorage {
	return &DBStorage{db: db, dialect: dialect}
}

func (s *DBStorage) Close() {
	s.db.Close()
}

func (s *DBStorage) DB() *sql.DB {
	return s.db
}

func (s *DBStorage) Dialect() dbutil.Dialect {
	return s.dialect
}

func formatCreatedAt(t time.Time) string {
	return t.UTC().Format(createdAtLayout)
}

// StoredTime is t as it reads back from the database: UTC, to the
// millisecond.
func StoredTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

type rowScanner interface {
	Scan(dest ...any) error
}

const reportColumns = `id, created_at, tournament, mode, entries, config`

func scanReport(row rowScanner) (*model.AnalysisRecord, error) {
	var (
		r                   model.AnalysisRecord
		createdAt           string
		tournament, mode    sql.NullString
		entriesJSON, config string
	)
	if err := row.Scan(&r.ID, &createdAt, &tournament, &mode, &entriesJSON, &config); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("report %s: bad created_at %q: %w", r.ID, createdAt, err)
	}
	r.CreatedAt = t
	if tournament.Valid {
		r.Tournament = &tournament.String
	}
	if mode.Valid {
		r.Mode = &mode.String
	}
	if err := json.Unmarshal([]byte(entriesJSON), &r.Entries); err != nil {
		return nil, fmt.Errorf("report %s: bad entries: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(config), &r.Config); err != nil {
		return nil, fmt.Errorf("report %s: bad config: %w", r.ID, err)
	}
	if r.Entries == nil {
		r.Entries = []*model.RankedResult{}
	}
	return &r, nil
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func (s *DBStorage) UpsertReport(ctx context.Context, r *model.AnalysisRecord) error {
	entries := r.Entries
	if entries == nil {
		entries = []*model.RankedResult{}
	}
	entriesJSON, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	configJSON, err := json.Marshal(&r.Config)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.dialect.Rebind(`
		INSERT INTO reports (id, created_at, tournament, mode, entries, config, version)
		VALUES (?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT (id) DO UPDATE SET
			created_at = excluded.created_at,
			tournament = excluded.tournament,
			mode = excluded.mode,
			entries = excluded.entries,
			config = excluded.config,
			version = reports.version + 1`),
		r.ID, formatCreatedAt(r.CreatedAt), nullable(r.Tournament), nullable(r.Mode),
		string(entriesJSON), string(configJSON))
	if err != nil {
		return fmt.Errorf("upsert report %s: %w", r.ID, err)
	}
	zerolog.Ctx(ctx).Debug().Str("report", r.ID).Msg("report saved")
	return nil
}

func (s *DBStorage) RemoveReport(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM reports WHERE id = ?`), id)
	if err != nil {
		return err
	}
	if n, err := result.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *DBStorage) FetchReport(ctx context.Context, id string) (*model.AnalysisRecord, error) {
	row := s.db.QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT `+reportColumns+` FROM reports WHERE id = ?`), id)
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *DBStorage) ListReports(ctx context.Context) ([]*model.AnalysisRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM reports ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*model.AnalysisRecord{}
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			// One bad row shouldn't hide the rest.
			zerolog.Ctx(ctx).Error().Err(err).Msg("skipping unreadable report")
			continue
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *DBStorage) deleteInTx(ctx context.Context, query string, args ...any) (int64, error) {
	tx, err := dbutil.Begin(ctx, s.db, s.dialect, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	n, err := tx.ExecCount(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *DBStorage) RemoveReportsBefore(ctx context.Context, before time.Time) (int64, error) {
	return s.deleteInTx(ctx, `DELETE FROM reports WHERE created_at < ?`, formatCreatedAt(before))
}

func (s *DBStorage) RemoveAllReports(ctx context.Context) (int64, error) {
	return s.deleteInTx(ctx, `DELETE FROM reports`)
}

// queryRow runs a query written with ? placeholders.
type queryRow func(ctx context.Context, query string, args ...any) *sql.Row

func fetchSettings(ctx context.Context, q queryRow) (*model.AppSettings, error) {
	var data string
	var version int64
	err := q(ctx, `SELECT data, version FROM settings WHERE id = ?`, model.SettingsID).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.AppSettings{}, nil
	}
	if err != nil {
		return nil, err
	}
	settings := &model.AppSettings{}
	if err := json.Unmarshal([]byte(data), settings); err != nil {
		return nil, fmt.Errorf("bad settings row: %w", err)
	}
	settings.Version = version
	return settings, nil
}

func (s *DBStorage) FetchSettings(ctx context.Context) (*model.AppSettings, error) {
	return fetchSettings(ctx, func(ctx context.Context, query string, args ...any) *sql.Row {
		return s.db.QueryRowContext(ctx, s.dialect.Rebind(query), args...)
	})
}

func (s *DBStorage) SaveSettings(ctx context.Context, patch *model.SettingsPatch) (*model.AppSettings, error) {
	tx, err := dbutil.Begin(ctx, s.db, s.dialect, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	settings, err := fetchSettings(ctx, tx.QueryRow)
	if err != nil {
		return nil, err
	}
	patch.Apply(settings)
	settings.Version++

	data, err := json.Marshal(settings)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO settings (id, data, version) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data, version = excluded.version`,
		model.SettingsID, string(data), settings.Version); err != nil {
		return nil, fmt.Errorf("save settings: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Int64("version", settings.Version).Msg("settings saved")
	return settings, nil
}
