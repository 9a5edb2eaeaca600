package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// FactoryRow is one stored project factory. Component blobs are nil when the
// column is NULL.
type FactoryRow struct {
	ID          string
	ProjectID   string
	FactoryType string
	Title       string
	Description string
	ProjectType string

	Project     []byte
	Characters  []byte
	Stories     []byte
	Scripts     []byte
	Storyboards []byte
	Bible       []byte
	Publishing  []byte
	Metadata    []byte

	CreatedAt time.Time
	UpdatedAt time.Time
}

// BasicInfoRow is the denormalized projection of a factory row. Reading it
// never touches the component columns.
type BasicInfoRow struct {
	ID          string
	ProjectID   string
	FactoryType string
	Title       string
	Description string
	ProjectType string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FactoryFilter narrows a factory scan. Empty fields match everything.
type FactoryFilter struct {
	FactoryType   string
	ProjectType   string
	TitleContains string
}

const factoryColumns = `id, project_id, factory_type, title, description, project_type,
	project_json, characters_json, stories_json, scripts_json, storyboards_json,
	bible_json, publishing_json, metadata_json, created_at, updated_at`

const basicInfoColumns = `id, project_id, factory_type, title, description, project_type, created_at, updated_at`

// SaveFactoryRow upserts a factory by project id inside a transaction. The
// original created_at survives updates.
func (f *FactoryDB) SaveFactoryRow(ctx context.Context, row *FactoryRow) error {
	if row.ProjectID == "" {
		return errors.New("save factory: empty project id")
	}
	if row.ID == "" {
		row.ID = row.ProjectID
	}
	now := time.Now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now

	return f.RunInTx(ctx, func(tx *TxOps) error {
		_, err := tx.Exec(`
			INSERT INTO project_factory (`+factoryColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (project_id) DO UPDATE SET
				factory_type = excluded.factory_type,
				title = excluded.title,
				description = excluded.description,
				project_type = excluded.project_type,
				project_json = excluded.project_json,
				characters_json = excluded.characters_json,
				stories_json = excluded.stories_json,
				scripts_json = excluded.scripts_json,
				storyboards_json = excluded.storyboards_json,
				bible_json = excluded.bible_json,
				publishing_json = excluded.publishing_json,
				metadata_json = excluded.metadata_json,
				updated_at = excluded.updated_at`,
			row.ID, row.ProjectID, row.FactoryType, row.Title, row.Description, row.ProjectType,
			nullBlob(row.Project), nullBlob(row.Characters), nullBlob(row.Stories), nullBlob(row.Scripts),
			nullBlob(row.Storyboards), nullBlob(row.Bible), nullBlob(row.Publishing), nullBlob(row.Metadata),
			formatTime(row.CreatedAt), formatTime(row.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("upsert factory %s: %w", row.ProjectID, err)
		}
		return nil
	})
}

// GetFactoryRow returns the row for projectID, or nil if none exists.
func (f *FactoryDB) GetFactoryRow(ctx context.Context, projectID string) (*FactoryRow, error) {
	row := f.QueryRowContext(ctx,
		`SELECT `+factoryColumns+` FROM project_factory WHERE project_id = ?`, projectID)
	r, err := scanFactoryRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get factory %s: %w", projectID, err)
	}
	return r, nil
}

// FactoryType returns the factory_type column for projectID.
func (f *FactoryDB) FactoryType(ctx context.Context, projectID string) (string, bool, error) {
	var ft string
	err := f.QueryRowContext(ctx,
		`SELECT factory_type FROM project_factory WHERE project_id = ?`, projectID).Scan(&ft)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get factory type %s: %w", projectID, err)
	}
	return ft, true, nil
}

// ListFactoryRows returns every row matching filter, newest update first.
func (f *FactoryDB) ListFactoryRows(ctx context.Context, filter FactoryFilter) ([]*FactoryRow, error) {
	where, args := filter.clause()
	rows, err := f.QueryContext(ctx,
		`SELECT `+factoryColumns+` FROM project_factory`+where+` ORDER BY updated_at DESC, project_id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list factories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*FactoryRow
	for rows.Next() {
		r, err := scanFactoryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan factory: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate factories: %w", err)
	}
	return out, nil
}

// ListBasicInfo returns the denormalized projection of every factory, newest
// update first.
func (f *FactoryDB) ListBasicInfo(ctx context.Context) ([]BasicInfoRow, error) {
	rows, err := f.QueryContext(ctx,
		`SELECT `+basicInfoColumns+` FROM project_factory ORDER BY updated_at DESC, project_id`)
	if err != nil {
		return nil, fmt.Errorf("list basic info: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []BasicInfoRow
	for rows.Next() {
		var b BasicInfoRow
		var created, updated string
		if err := rows.Scan(&b.ID, &b.ProjectID, &b.FactoryType, &b.Title, &b.Description,
			&b.ProjectType, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan basic info: %w", err)
		}
		b.CreatedAt = parseTime(created)
		b.UpdatedAt = parseTime(updated)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate basic info: %w", err)
	}
	return out, nil
}

// distributionTables hold per-project rows that go with a factory.
var distributionTables = []string{"distribution_analytics", "platform_connection", "scheduled_post"}

// DeleteFactory removes the factory for projectID together with its
// distribution rows. Deleting a missing id is not an error.
func (f *FactoryDB) DeleteFactory(ctx context.Context, projectID string) error {
	return f.RunInTx(ctx, func(tx *TxOps) error {
		for _, table := range distributionTables {
			if _, err := tx.Exec(`DELETE FROM `+table+` WHERE project_id = ?`, projectID); err != nil {
				return fmt.Errorf("delete %s for %s: %w", table, projectID, err)
			}
		}
		if _, err := tx.Exec(`DELETE FROM project_factory WHERE project_id = ?`, projectID); err != nil {
			return fmt.Errorf("delete factory %s: %w", projectID, err)
		}
		return nil
	})
}

// DeleteAllFactories removes every factory and every distribution row.
func (f *FactoryDB) DeleteAllFactories(ctx context.Context) error {
	return f.RunInTx(ctx, func(tx *TxOps) error {
		for _, table := range append(slices.Clone(distributionTables), "project_factory") {
			if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
				return fmt.Errorf("delete all from %s: %w", table, err)
			}
		}
		return nil
	})
}

// CountFactories counts factories, optionally restricted to one factory type.
func (f *FactoryDB) CountFactories(ctx context.Context, factoryType string) (int, error) {
	query := `SELECT COUNT(*) FROM project_factory`
	var args []any
	if factoryType != "" {
		query += ` WHERE factory_type = ?`
		args = append(args, factoryType)
	}
	var n int
	if err := f.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count factories: %w", err)
	}
	return n, nil
}

func (ff FactoryFilter) clause() (string, []any) {
	var conds []string
	var args []any
	if ff.FactoryType != "" {
		conds = append(conds, "factory_type = ?")
		args = append(args, ff.FactoryType)
	}
	if ff.ProjectType != "" {
		conds = append(conds, "project_type = ?")
		args = append(args, ff.ProjectType)
	}
	if ff.TitleContains != "" {
		conds = append(conds, `LOWER(title) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(ff.TitleContains))+"%")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFactoryRow(s rowScanner) (*FactoryRow, error) {
	var r FactoryRow
	var blobs [8]sql.NullString
	var created, updated string
	err := s.Scan(&r.ID, &r.ProjectID, &r.FactoryType, &r.Title, &r.Description, &r.ProjectType,
		&blobs[0], &blobs[1], &blobs[2], &blobs[3], &blobs[4], &blobs[5], &blobs[6], &blobs[7],
		&created, &updated)
	if err != nil {
		return nil, err
	}
	r.Project = blobBytes(blobs[0])
	r.Characters = blobBytes(blobs[1])
	r.Stories = blobBytes(blobs[2])
	r.Scripts = blobBytes(blobs[3])
	r.Storyboards = blobBytes(blobs[4])
	r.Bible = blobBytes(blobs[5])
	r.Publishing = blobBytes(blobs[6])
	r.Metadata = blobBytes(blobs[7])
	r.CreatedAt = parseTime(created)
	r.UpdatedAt = parseTime(updated)
	return &r, nil
}

func nullBlob(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}

func blobBytes(ns sql.NullString) []byte {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return []byte(ns.String)
}

// timeLayout is fixed-width so text columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func timePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTime(ns.String)
	if t.IsZero() {
		return nil
	}
	return &t
}
