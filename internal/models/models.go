package models

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type Status string

const (
	StatusOpen     Status = "open"
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusRejected Status = "rejected"
)

// ValidStatus reports whether s is one of the four lifecycle statuses.
// Callers normalize case before checking.
func ValidStatus(s Status) bool {
	switch s {
	case StatusOpen, StatusPending, StatusResolved, StatusRejected:
		return true
	}
	return false
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Owner is the subset of a user embedded into grievance responses.
type Owner struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Attachment struct {
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	Mimetype     string    `json:"mimetype"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

type Grievance struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Status      Status       `json:"status"`
	Files       []Attachment `json:"files"`
	CreatedBy   Owner        `json:"createdBy"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// GrievanceQuery is the store-level list filter. Statuses holds the already
// expanded, lowercased match set; empty means no status predicate. The empty
// string inside Statuses matches records with a NULL or blank status.
type GrievanceQuery struct {
	OwnerID  string
	Statuses []string
	Page     int
	Limit    int
}

type GrievancePage struct {
	List  []Grievance `json:"list"`
	Total int         `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

type GrievanceStats struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"byStatus"`
}
