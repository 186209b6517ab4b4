package service

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"grievancedesk/internal/auth"
	"grievancedesk/internal/config"
	"grievancedesk/internal/files"
	"grievancedesk/internal/models"
	"grievancedesk/internal/store"
)

var (
	ErrCredentialsRequired = errors.New("email and password are required")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrUnknownSubject      = errors.New("unknown subject")
	ErrForbidden           = errors.New("forbidden")
	ErrMissingFields       = errors.New("title and description are required")
	ErrTooManyFiles        = errors.New("at most 5 files per grievance")
	ErrInvalidStatus       = errors.New("invalid status")
)

const maxFilesPerGrievance = 5

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

type Service struct {
	cfg config.Config
	st  *store.Store
	fs  *files.Store
}

func New(cfg config.Config, st *store.Store, fs *files.Store) *Service {
	return &Service{cfg: cfg, st: st, fs: fs}
}

func (s *Service) Ping(ctx context.Context) error { return s.st.Ping(ctx) }

func (s *Service) Register(ctx context.Context, email, password, name string) (models.User, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if email == "" || password == "" {
		return models.User{}, ErrCredentialsRequired
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return models.User{}, err
	}
	return s.st.CreateUser(ctx, email, name, hash, models.RoleUser)
}

func (s *Service) Login(ctx context.Context, email, password string) (string, models.User, error) {
	u, err := s.st.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err == store.ErrNotFound {
		return "", models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", models.User{}, err
	}
	if !auth.VerifyPassword(u.PasswordHash, password) {
		return "", models.User{}, ErrInvalidCredentials
	}
	token, err := auth.IssueToken(s.cfg.JWTSecret, u, s.cfg.TokenTTL)
	if err != nil {
		return "", models.User{}, err
	}
	return token, u, nil
}

// Authenticate verifies a bearer token and re-resolves the subject against
// the user store, so tokens for deleted accounts stop working before they
// expire.
func (s *Service) Authenticate(ctx context.Context, tokenStr string) (models.User, error) {
	claims, err := auth.ParseToken(s.cfg.JWTSecret, tokenStr)
	if err != nil {
		return models.User{}, err
	}
	u, err := s.st.GetUserByID(ctx, claims.UserID)
	if err == store.ErrNotFound {
		return models.User{}, ErrUnknownSubject
	}
	if err != nil {
		return models.User{}, err
	}
	return u, nil
}

// AuthorizeGrievance is the single owner-or-admin gate used by read-one,
// delete and file fetch. A missing record is always NotFound, never
// Forbidden, regardless of the caller's role.
func (s *Service) AuthorizeGrievance(ctx context.Context, subject models.User, id string) (models.Grievance, error) {
	g, err := s.st.GetGrievance(ctx, id)
	if err != nil {
		return models.Grievance{}, err
	}
	if subject.Role != models.RoleAdmin && g.CreatedBy.ID != subject.ID {
		return models.Grievance{}, ErrForbidden
	}
	return g, nil
}

// ParseStatusFilter turns the comma-separated query value into the match
// set handed to the store. Requesting "open" widens the set to open,
// pending and blank/NULL statuses; any other token matches itself
// case-insensitively. Unknown tokens are kept and simply match nothing.
func ParseStatusFilter(filter string) []string {
	var tokens []string
	for _, t := range strings.Split(filter, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	if len(tokens) == 0 {
		return nil
	}
	set := map[string]bool{}
	for _, t := range tokens {
		if t == string(models.StatusOpen) {
			set[string(models.StatusOpen)] = true
			set[string(models.StatusPending)] = true
			set[""] = true
			continue
		}
		set[t] = true
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	return out
}

func (s *Service) List(ctx context.Context, subject models.User, statusFilter string, page, limit int) (models.GrievancePage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	q := models.GrievanceQuery{
		Statuses: ParseStatusFilter(statusFilter),
		Page:     page,
		Limit:    limit,
	}
	if subject.Role != models.RoleAdmin {
		q.OwnerID = subject.ID
	}
	list, total, err := s.st.ListGrievances(ctx, q)
	if err != nil {
		return models.GrievancePage{}, err
	}
	if list == nil {
		list = []models.Grievance{}
	}
	return models.GrievancePage{List: list, Total: total, Page: page, Limit: limit}, nil
}

func (s *Service) Stats(ctx context.Context, subject models.User) (models.GrievanceStats, error) {
	ownerID := ""
	if subject.Role != models.RoleAdmin {
		ownerID = subject.ID
	}
	byStatus, total, err := s.st.GrievanceStats(ctx, ownerID)
	if err != nil {
		return models.GrievanceStats{}, err
	}
	return models.GrievanceStats{Total: total, ByStatus: byStatus}, nil
}

// Upload is one incoming attachment as handed over by the API layer.
type Upload struct {
	OriginalName string
	ContentType  string
	Reader       io.Reader
}

// Create validates input, stages attachments on disk and inserts the record.
// The file count is checked before any disk write. If the insert fails the
// staged files are removed again: the file store and the record store are
// not transactional, so cleanup is a compensating action.
func (s *Service) Create(ctx context.Context, subject models.User, title, description string, uploads []Upload) (models.Grievance, error) {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	if title == "" || description == "" {
		return models.Grievance{}, ErrMissingFields
	}
	if len(uploads) > maxFilesPerGrievance {
		return models.Grievance{}, ErrTooManyFiles
	}

	now := time.Now().UTC()
	var staged []models.Attachment
	cleanup := func() {
		for _, a := range staged {
			if err := s.fs.Remove(a.Filename); err != nil {
				log.Printf("cleanup staged attachment %s: %v", a.Filename, err)
			}
		}
	}

	for _, up := range uploads {
		stored, size, err := s.fs.Save(up.Reader, up.OriginalName, s.cfg.MaxAttachmentBytes)
		if err != nil {
			cleanup()
			return models.Grievance{}, err
		}
		mimetype := up.ContentType
		if mimetype == "" {
			mimetype = "application/octet-stream"
		}
		staged = append(staged, models.Attachment{
			Filename:     stored,
			OriginalName: up.OriginalName,
			Path:         "/api/grievances/files/" + stored,
			Size:         size,
			Mimetype:     mimetype,
			UploadedAt:   now,
		})
	}

	g := models.Grievance{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Status:      models.StatusOpen,
		Files:       staged,
		CreatedBy:   models.Owner{ID: subject.ID, Name: subject.Name, Email: subject.Email},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.st.CreateGrievance(ctx, g); err != nil {
		cleanup()
		return models.Grievance{}, err
	}
	if g.Files == nil {
		g.Files = []models.Attachment{}
	}
	return g, nil
}

// UpdateStatus assumes the caller already passed the admin role check.
// Status is a closed enumeration; unknown values are rejected instead of
// stored verbatim. The status and updated_at writes are one statement.
func (s *Service) UpdateStatus(ctx context.Context, id, newStatus string) (models.Grievance, error) {
	st := models.Status(strings.ToLower(strings.TrimSpace(newStatus)))
	if !models.ValidStatus(st) {
		return models.Grievance{}, ErrInvalidStatus
	}
	if err := s.st.UpdateGrievanceStatus(ctx, id, st, time.Now().UTC()); err != nil {
		return models.Grievance{}, err
	}
	return s.st.GetGrievance(ctx, id)
}

// Delete removes attachment files best-effort, then the record. The caller
// must already hold owner-or-admin authorization for g.
func (s *Service) Delete(ctx context.Context, g models.Grievance) error {
	for _, f := range g.Files {
		if err := s.fs.Remove(f.Filename); err != nil {
			log.Printf("delete attachment %s of grievance %s: %v", f.Filename, g.ID, err)
		}
	}
	return s.st.DeleteGrievance(ctx, g.ID)
}

// FetchFile resolves a stored filename to its owning grievance, applies the
// owner-or-admin rule and returns the attachment metadata plus disk path.
// Streaming is left to the HTTP layer.
func (s *Service) FetchFile(ctx context.Context, subject models.User, storedName string) (models.Attachment, string, error) {
	g, att, err := s.st.GetGrievanceByAttachment(ctx, storedName)
	if err != nil {
		return models.Attachment{}, "", err
	}
	if subject.Role != models.RoleAdmin && g.CreatedBy.ID != subject.ID {
		return models.Attachment{}, "", ErrForbidden
	}
	if !s.fs.Exists(att.Filename) {
		return models.Attachment{}, "", store.ErrNotFound
	}
	return att, s.fs.Path(att.Filename), nil
}
