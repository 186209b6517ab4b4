package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"grievancedesk/internal/models"
)

var ErrNotFound = errors.New("not found")
var ErrConflict = errors.New("conflict")

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store { return &Store{db: db} }

// Ping lets the readiness probe check the underlying connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) CreateUser(ctx context.Context, email, name, passwordHash string, role models.Role) (models.User, error) {
	now := time.Now().UTC()
	u := models.User{ID: uuid.NewString(), Email: email, Name: name, PasswordHash: passwordHash, Role: role, CreatedAt: now, UpdatedAt: now}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id,email,name,password_hash,role,created_at,updated_at) VALUES(?,?,?,?,?,?,?)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Role, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueErr(err) {
			return models.User{}, ErrConflict
		}
		return models.User{}, err
	}
	return u, nil
}

// EnsureAdmin makes the bootstrap account exist with the admin role and the
// given credentials. Safe to run on every startup.
func (s *Store) EnsureAdmin(ctx context.Context, email, name, passwordHash string) error {
	email = strings.TrimSpace(email)
	if email == "" || passwordHash == "" {
		return nil
	}
	u, err := s.GetUserByEmail(ctx, email)
	if err == ErrNotFound {
		_, err = s.CreateUser(ctx, email, name, passwordHash, models.RoleAdmin)
		return err
	}
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET role=?, password_hash=?, updated_at=? WHERE id=?`,
		models.RoleAdmin, passwordHash, time.Now().UTC(), u.ID,
	)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.getUser(ctx, `SELECT id,email,name,password_hash,role,created_at,updated_at FROM users WHERE email=?`, email)
}

func (s *Store) GetUserByID(ctx context.Context, id string) (models.User, error) {
	return s.getUser(ctx, `SELECT id,email,name,password_hash,role,created_at,updated_at FROM users WHERE id=?`, id)
}

func (s *Store) getUser(ctx context.Context, query, arg string) (models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, query, arg).
		Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.User{}, ErrNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return u, nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateGrievance inserts the record and its attachment rows in one
// transaction, preserving attachment order via the position column.
func (s *Store) CreateGrievance(ctx context.Context, g models.Grievance) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var status any
	if g.Status != "" {
		status = string(g.Status)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO grievances(id,title,description,status,created_by,created_at,updated_at) VALUES(?,?,?,?,?,?,?)`,
		g.ID, g.Title, g.Description, status, g.CreatedBy.ID, g.CreatedAt, g.UpdatedAt,
	); err != nil {
		return err
	}
	for i, f := range g.Files {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO attachments(id,grievance_id,filename,original_name,path,size,mimetype,position,uploaded_at) VALUES(?,?,?,?,?,?,?,?,?)`,
			uuid.NewString(), g.ID, f.Filename, f.OriginalName, f.Path, f.Size, f.Mimetype, i, f.UploadedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const grievanceCols = `g.id, g.title, g.description, g.status, g.created_at, g.updated_at, u.id, u.name, u.email`

func (s *Store) GetGrievance(ctx context.Context, id string) (models.Grievance, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+grievanceCols+` FROM grievances g JOIN users u ON u.id = g.created_by WHERE g.id=?`, id)
	g, err := scanGrievance(row)
	if err == sql.ErrNoRows {
		return models.Grievance{}, ErrNotFound
	}
	if err != nil {
		return models.Grievance{}, err
	}
	att, err := s.loadAttachments(ctx, []string{g.ID})
	if err != nil {
		return models.Grievance{}, err
	}
	g.Files = att[g.ID]
	return g, nil
}

// ListGrievances returns one page plus the total count of records matching
// the same predicate. The count is computed by an independent query, never
// from the page length.
func (s *Store) ListGrievances(ctx context.Context, q models.GrievanceQuery) ([]models.Grievance, int, error) {
	var where []string
	var args []any
	if q.OwnerID != "" {
		where = append(where, "g.created_by = ?")
		args = append(args, q.OwnerID)
	}
	if len(q.Statuses) > 0 {
		ph := strings.TrimSuffix(strings.Repeat("?,", len(q.Statuses)), ",")
		where = append(where, "lower(COALESCE(g.status,'')) IN ("+ph+")")
		for _, st := range q.Statuses {
			args = append(args, st)
		}
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM grievances g`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (q.Page - 1) * q.Limit
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+grievanceCols+` FROM grievances g JOIN users u ON u.id = g.created_by`+
			cond+` ORDER BY g.created_at DESC LIMIT ? OFFSET ?`,
		append(args, q.Limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []models.Grievance
	var ids []string
	for rows.Next() {
		g, err := scanGrievance(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, g)
		ids = append(ids, g.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	att, err := s.loadAttachments(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range list {
		list[i].Files = att[list[i].ID]
	}
	return list, total, nil
}

// GrievanceStats groups visible grievances by normalized status. A NULL or
// blank status counts as open.
func (s *Store) GrievanceStats(ctx context.Context, ownerID string) (map[string]int, int, error) {
	query := `SELECT CASE WHEN status IS NULL OR status='' THEN 'open' ELSE lower(status) END AS st, COUNT(1)
		FROM grievances`
	var args []any
	if ownerID != "" {
		query += ` WHERE created_by = ?`
		args = append(args, ownerID)
	}
	query += ` GROUP BY st`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	byStatus := map[string]int{}
	total := 0
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, 0, err
		}
		byStatus[st] = n
		total += n
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return byStatus, total, nil
}

// UpdateGrievanceStatus writes status and updated_at as a single statement,
// so concurrent updates stay last-write-wins at row granularity.
func (s *Store) UpdateGrievanceStatus(ctx context.Context, id string, status models.Status, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE grievances SET status=?, updated_at=? WHERE id=?`, status, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteGrievance(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM attachments WHERE grievance_id=?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM grievances WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// GetGrievanceByAttachment resolves the grievance owning a stored filename.
func (s *Store) GetGrievanceByAttachment(ctx context.Context, storedName string) (models.Grievance, models.Attachment, error) {
	var grievanceID string
	err := s.db.QueryRowContext(ctx,
		`SELECT grievance_id FROM attachments WHERE filename=?`, storedName).Scan(&grievanceID)
	if err == sql.ErrNoRows {
		return models.Grievance{}, models.Attachment{}, ErrNotFound
	}
	if err != nil {
		return models.Grievance{}, models.Attachment{}, err
	}
	g, err := s.GetGrievance(ctx, grievanceID)
	if err != nil {
		return models.Grievance{}, models.Attachment{}, err
	}
	for _, f := range g.Files {
		if f.Filename == storedName {
			return g, f, nil
		}
	}
	return models.Grievance{}, models.Attachment{}, ErrNotFound
}

func (s *Store) loadAttachments(ctx context.Context, grievanceIDs []string) (map[string][]models.Attachment, error) {
	out := map[string][]models.Attachment{}
	if len(grievanceIDs) == 0 {
		return out, nil
	}
	ph := strings.TrimSuffix(strings.Repeat("?,", len(grievanceIDs)), ",")
	args := make([]any, len(grievanceIDs))
	for i, id := range grievanceIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT grievance_id, filename, original_name, path, size, mimetype, uploaded_at
		 FROM attachments WHERE grievance_id IN (`+ph+`) ORDER BY grievance_id, position`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var gid string
		var a models.Attachment
		if err := rows.Scan(&gid, &a.Filename, &a.OriginalName, &a.Path, &a.Size, &a.Mimetype, &a.UploadedAt); err != nil {
			return nil, err
		}
		out[gid] = append(out[gid], a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrievance(r rowScanner) (models.Grievance, error) {
	var g models.Grievance
	var status sql.NullString
	err := r.Scan(&g.ID, &g.Title, &g.Description, &status, &g.CreatedAt, &g.UpdatedAt,
		&g.CreatedBy.ID, &g.CreatedBy.Name, &g.CreatedBy.Email)
	if err != nil {
		return models.Grievance{}, err
	}
	// Missing status is presented as open; the raw NULL only matters to the
	// filter and stats SQL, never to API consumers.
	if status.Valid && status.String != "" {
		g.Status = models.Status(strings.ToLower(status.String))
	} else {
		g.Status = models.StatusOpen
	}
	return g, nil
}

func isUniqueErr(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
