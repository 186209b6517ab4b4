package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"grievancedesk/internal/auth"
	"grievancedesk/internal/config"
	"grievancedesk/internal/db"
	"grievancedesk/internal/files"
	"grievancedesk/internal/service"
	"grievancedesk/internal/store"
)

type testEnv struct {
	router    http.Handler
	st        *store.Store
	uploadDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	sqdb, err := db.OpenSQLite(filepath.Join(t.TempDir(), "app.db"), 1, 1, time.Minute)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqdb.Close() })
	if err := db.ApplyMigrationFile(sqdb, filepath.Join("..", "..", "migrations", "001_init.sql")); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	uploadDir := t.TempDir()
	fs, err := files.NewStore(uploadDir)
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	cfg := config.Config{
		ListenAddr:          ":8080",
		JWTSecret:           strings.Repeat("k", 32),
		TokenTTL:            7 * 24 * time.Hour,
		MaxAttachmentBytes:  1 << 20,
		MaxUploadTotalBytes: 8 << 20,
	}
	st := store.New(sqdb)
	svc := service.New(cfg, st, fs)
	return &testEnv{router: NewRouter(cfg, svc), st: st, uploadDir: uploadDir}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode body: %v body=%s", err, rec.Body.String())
	}
	return m
}

func (e *testEnv) userToken(t *testing.T, email, password string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": email, "password": password, "name": "Test User",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: %d body=%s", email, rec.Code, rec.Body.String())
	}
	return e.loginToken(t, email, password)
}

func (e *testEnv) loginToken(t *testing.T, email, password string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: %d body=%s", email, rec.Code, rec.Body.String())
	}
	token, _ := decodeJSON(t, rec)["token"].(string)
	if token == "" {
		t.Fatalf("login %s returned no token", email)
	}
	return token
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	hash, err := auth.HashPassword("adminpass")
	if err != nil {
		t.Fatalf("hash admin password: %v", err)
	}
	if err := e.st.EnsureAdmin(context.Background(), "admin@example.com", "Admin", hash); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	return e.loginToken(t, "admin@example.com", "adminpass")
}

type testFile struct {
	name        string
	contentType string
	content     string
}

func (e *testEnv) createGrievance(t *testing.T, token, title, description string, uploads []testFile) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("title", title); err != nil {
		t.Fatalf("write title: %v", err)
	}
	if err := mw.WriteField("description", description); err != nil {
		t.Fatalf("write description: %v", err)
	}
	for _, f := range uploads {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, f.name))
		ct := f.contentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		hdr.Set("Content-Type", ct)
		pw, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := pw.Write([]byte(f.content)); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/grievances", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) mustCreate(t *testing.T, token, title, description string, uploads []testFile) map[string]any {
	t.Helper()
	rec := e.createGrievance(t, token, title, description, uploads)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create grievance: %d body=%s", rec.Code, rec.Body.String())
	}
	return decodeJSON(t, rec)
}
