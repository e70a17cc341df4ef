package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

const profilesSchema = `
CREATE TABLE IF NOT EXISTS profiles (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	email            TEXT NOT NULL,
	phone            TEXT NOT NULL DEFAULT '',
	role             TEXT NOT NULL,
	department       TEXT NOT NULL DEFAULT '',
	year_or_position TEXT NOT NULL DEFAULT '',
	summary          TEXT NOT NULL DEFAULT '',
	skills           TEXT NOT NULL DEFAULT '[]',
	projects         TEXT NOT NULL DEFAULT '[]',
	publications     TEXT NOT NULL DEFAULT '[]',
	image            TEXT NOT NULL DEFAULT '',
	location         TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
)`

const profileColumns = `id, name, email, phone, role, department, year_or_position, summary,
	skills, projects, publications, image, location, created_at, updated_at`

const insertProfileSQL = `INSERT INTO profiles (` + profileColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`

// created_at is immutable and left out of the update.
const updateProfileSQL = `UPDATE profiles SET
	name = $2, email = $3, phone = $4, role = $5, department = $6,
	year_or_position = $7, summary = $8, skills = $9, projects = $10,
	publications = $11, image = $12, location = $13, updated_at = $14
	WHERE id = $1`

// PostgresStore persists profiles in a single Postgres table. List columns
// hold JSON arrays as text.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresStore creates the profiles table when missing.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, storageErr("open postgres store", errors.New("nil db"))
	}
	if _, err := db.ExecContext(ctx, profilesSchema); err != nil {
		return nil, storageErr("create profiles table", err)
	}
	return &PostgresStore{db: db, now: time.Now}, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at DESC`)
	if err != nil {
		return nil, storageErr("list profiles", err)
	}
	defer rows.Close()
	res := []Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, storageErr("scan profile", err)
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list profiles", err)
	}
	return res, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Profile, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, false, nil
	}
	if err != nil {
		return Profile{}, false, storageErr("get profile", err)
	}
	return p, true, nil
}

// Upsert locks the existing row, if any, so that createdAt and the
// monotonic updatedAt are computed from the committed values.
func (s *PostgresStore) Upsert(ctx context.Context, p Profile) (Profile, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Profile{}, storageErr("begin upsert", err)
	}
	defer func() { _ = tx.Rollback() }()

	op := Op{Kind: OpInsert, Profile: p}
	var prev *Profile
	if p.ID == "" {
		op.Profile.ID = NewID()
	} else {
		var existing Profile
		err := tx.QueryRowContext(ctx,
			`SELECT created_at, updated_at FROM profiles WHERE id = $1 FOR UPDATE`, p.ID,
		).Scan(&existing.CreatedAt, &existing.UpdatedAt)
		switch {
		case err == nil:
			op.Kind = OpUpdate
			prev = &existing
		case !errors.Is(err, sql.ErrNoRows):
			return Profile{}, storageErr("lock profile", err)
		}
	}

	rec := stamp(op.Profile, prev, s.clock())
	var args []any
	switch op.Kind {
	case OpInsert:
		if args, err = profileArgs(rec); err != nil {
			return Profile{}, storageErr("encode profile", err)
		}
		_, err = tx.ExecContext(ctx, insertProfileSQL, args...)
	case OpUpdate:
		if args, err = updateArgs(rec); err != nil {
			return Profile{}, storageErr("encode profile", err)
		}
		_, err = tx.ExecContext(ctx, updateProfileSQL, args...)
	}
	if err != nil {
		return Profile{}, storageErr(op.Kind.String()+" profile", err)
	}
	if err := tx.Commit(); err != nil {
		return Profile{}, storageErr("commit upsert", err)
	}
	return rec, nil
}

func (s *PostgresStore) Update(ctx context.Context, p Profile, expect time.Time) (Profile, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Profile{}, false, storageErr("begin update", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prev Profile
	err = tx.QueryRowContext(ctx,
		`SELECT created_at, updated_at FROM profiles WHERE id = $1 FOR UPDATE`, p.ID,
	).Scan(&prev.CreatedAt, &prev.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, false, nil
	}
	if err != nil {
		return Profile{}, false, storageErr("lock profile", err)
	}
	if !prev.UpdatedAt.Equal(expect) {
		return Profile{}, false, nil
	}

	rec := stamp(p, &prev, s.clock())
	args, err := updateArgs(rec)
	if err != nil {
		return Profile{}, false, storageErr("encode profile", err)
	}
	if _, err := tx.ExecContext(ctx, updateProfileSQL, args...); err != nil {
		return Profile{}, false, storageErr("update profile", err)
	}
	if err := tx.Commit(); err != nil {
		return Profile{}, false, storageErr("commit update", err)
	}
	return rec, true, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return false, storageErr("delete profile", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("delete profile", err)
	}
	return n > 0, nil
}

// clock truncates to the column precision so returned records compare equal
// to what a later read yields.
func (s *PostgresStore) clock() time.Time {
	return s.now().Truncate(time.Microsecond)
}

// Ping reports whether the database answers.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (Profile, error) {
	var (
		p                              Profile
		role, image                    string
		skills, projects, publications string
	)
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &role, &p.Department, &p.YearOrPosition,
		&p.Summary, &skills, &projects, &publications, &image, &p.Location, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Profile{}, err
	}
	p.Role = Role(role)
	p.Image = ParseImage(image)
	p.Skills = decodeList(skills)
	p.Projects = decodeList(projects)
	p.Publications = decodeList(publications)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p.normalize(), nil
}

func profileArgs(p Profile) ([]any, error) {
	skills, err := encodeList(p.Skills)
	if err != nil {
		return nil, err
	}
	projects, err := encodeList(p.Projects)
	if err != nil {
		return nil, err
	}
	publications, err := encodeList(p.Publications)
	if err != nil {
		return nil, err
	}
	return []any{
		p.ID, p.Name, p.Email, p.Phone, string(p.Role), p.Department, p.YearOrPosition, p.Summary,
		skills, projects, publications, p.Image.String(), p.Location, p.CreatedAt, p.UpdatedAt,
	}, nil
}

// updateArgs maps a record onto the $1..$14 placeholders of updateProfileSQL.
func updateArgs(p Profile) ([]any, error) {
	args, err := profileArgs(p)
	if err != nil {
		return nil, err
	}
	return append(args[:13:13], p.UpdatedAt), nil
}

func encodeList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	return string(b), err
}

// decodeList treats anything that is not a JSON array as empty and keeps only
// its string elements.
func decodeList(raw string) []string {
	items := listField{}
	_ = json.Unmarshal([]byte(raw), &items)
	return []string(items)
}
