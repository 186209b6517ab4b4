package api

import (
	"fmt"
	"net/http"
	"os"
	"testing"
)

func TestGrievanceLifecycleEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	alice := env.userToken(t, "alice@example.com", "secret1")

	created := env.mustCreate(t, alice, "Broken chair", "leg snapped", nil)
	if created["status"] != "open" {
		t.Fatalf("new grievance must be open, got %v", created["status"])
	}
	id, _ := created["id"].(string)

	rec := env.do(t, http.MethodGet, "/api/grievances", alice, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d body=%s", rec.Code, rec.Body.String())
	}
	page := decodeJSON(t, rec)
	list, _ := page["list"].([]any)
	if page["total"] != float64(1) || len(list) != 1 {
		t.Fatalf("expected exactly one item, got %s", rec.Body.String())
	}
	first, _ := list[0].(map[string]any)
	if first["status"] != "open" || first["title"] != "Broken chair" {
		t.Fatalf("unexpected list item: %v", first)
	}

	admin := env.adminToken(t)
	rec = env.do(t, http.MethodPatch, "/api/grievances/"+id+"/status", admin, map[string]string{"status": "resolved"})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status: %d body=%s", rec.Code, rec.Body.String())
	}
	if decodeJSON(t, rec)["status"] != "resolved" {
		t.Fatalf("expected resolved in patch response, got %s", rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/grievances", alice, nil)
	page = decodeJSON(t, rec)
	list, _ = page["list"].([]any)
	first, _ = list[0].(map[string]any)
	if first["status"] != "resolved" {
		t.Fatalf("expected alice to see resolved, got %v", first["status"])
	}

	rec = env.do(t, http.MethodGet, "/api/grievances/stats", alice, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: %d body=%s", rec.Code, rec.Body.String())
	}
	stats := decodeJSON(t, rec)
	byStatus, _ := stats["byStatus"].(map[string]any)
	if stats["total"] != float64(1) || byStatus["resolved"] != float64(1) {
		t.Fatalf("unexpected stats: %s", rec.Body.String())
	}
}

func TestOwnershipAndRoleMatrix(t *testing.T) {
	env := newTestEnv(t)
	alice := env.userToken(t, "alice@example.com", "secret1")
	bob := env.userToken(t, "bob@example.com", "secret2")
	admin := env.adminToken(t)

	created := env.mustCreate(t, alice, "Leaky faucet", "drips all night", nil)
	id, _ := created["id"].(string)

	// Read-one: owner and admin pass, a different user is forbidden.
	if rec := env.do(t, http.MethodGet, "/api/grievances/"+id, alice, nil); rec.Code != http.StatusOK {
		t.Fatalf("owner read: %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/grievances/"+id, admin, nil); rec.Code != http.StatusOK {
		t.Fatalf("admin read: %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/grievances/"+id, bob, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner read, got %d", rec.Code)
	}

	// Status mutation is role-scoped: even the owner is forbidden.
	if rec := env.do(t, http.MethodPatch, "/api/grievances/"+id+"/status", alice, map[string]string{"status": "resolved"}); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for owner patch, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPatch, "/api/grievances/"+id+"/status", bob, map[string]string{"status": "resolved"}); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin patch, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPatch, "/api/grievances/"+id+"/status", "", map[string]string{"status": "resolved"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	// Unknown status values are rejected, not stored.
	if rec := env.do(t, http.MethodPatch, "/api/grievances/"+id+"/status", admin, map[string]string{"status": "escalated"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}

	// A missing id is 404 for everyone, never 403.
	for name, token := range map[string]string{"user": bob, "admin": admin} {
		if rec := env.do(t, http.MethodGet, "/api/grievances/no-such-id", token, nil); rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404 for %s on missing id, got %d", name, rec.Code)
		}
	}

	// Delete: non-owner forbidden, owner allowed.
	if rec := env.do(t, http.MethodDelete, "/api/grievances/"+id, bob, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner delete, got %d", rec.Code)
	}
	rec := env.do(t, http.MethodDelete, "/api/grievances/"+id, alice, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner delete: %d body=%s", rec.Code, rec.Body.String())
	}
	if decodeJSON(t, rec)["ok"] != true {
		t.Fatalf("expected {ok:true}, got %s", rec.Body.String())
	}
	if rec := env.do(t, http.MethodDelete, "/api/grievances/"+id, alice, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on repeat delete, got %d", rec.Code)
	}
}

func TestListVisibilityAndStatusFilter(t *testing.T) {
	env := newTestEnv(t)
	alice := env.userToken(t, "alice@example.com", "secret1")
	bob := env.userToken(t, "bob@example.com", "secret2")
	admin := env.adminToken(t)

	env.mustCreate(t, alice, "a-open", "d", nil)
	gb := env.mustCreate(t, alice, "a-pending", "d", nil)
	gc := env.mustCreate(t, alice, "a-resolved", "d", nil)
	env.mustCreate(t, bob, "b-open", "d", nil)

	for id, status := range map[string]string{
		gb["id"].(string): "pending",
		gc["id"].(string): "resolved",
	} {
		if rec := env.do(t, http.MethodPatch, "/api/grievances/"+id+"/status", admin, map[string]string{"status": status}); rec.Code != http.StatusOK {
			t.Fatalf("patch %s: %d", status, rec.Code)
		}
	}

	// status=open expands to open+pending for alice's records only.
	rec := env.do(t, http.MethodGet, "/api/grievances?status=open", alice, nil)
	page := decodeJSON(t, rec)
	if page["total"] != float64(2) {
		t.Fatalf("expected open filter to match open+pending, got %s", rec.Body.String())
	}
	list, _ := page["list"].([]any)
	for _, item := range list {
		g, _ := item.(map[string]any)
		owner, _ := g["createdBy"].(map[string]any)
		if owner["email"] != "alice@example.com" {
			t.Fatalf("alice saw a foreign record: %v", g)
		}
		if g["status"] == "resolved" || g["status"] == "rejected" {
			t.Fatalf("open filter leaked %v", g["status"])
		}
	}

	// Exact set, case-insensitive.
	rec = env.do(t, http.MethodGet, "/api/grievances?status=ReSolved,rejected", alice, nil)
	page = decodeJSON(t, rec)
	if page["total"] != float64(1) {
		t.Fatalf("expected exactly the resolved record, got %s", rec.Body.String())
	}

	// Admin sees everything without a filter.
	rec = env.do(t, http.MethodGet, "/api/grievances", admin, nil)
	page = decodeJSON(t, rec)
	if page["total"] != float64(4) {
		t.Fatalf("expected admin total 4, got %s", rec.Body.String())
	}

	// Pagination echoes clamped values and keeps total independent.
	rec = env.do(t, http.MethodGet, "/api/grievances?page=2&limit=3", admin, nil)
	page = decodeJSON(t, rec)
	list, _ = page["list"].([]any)
	if page["page"] != float64(2) || page["limit"] != float64(3) || page["total"] != float64(4) || len(list) != 1 {
		t.Fatalf("unexpected pagination: %s", rec.Body.String())
	}
}

func TestCreateRejectsSixFiles(t *testing.T) {
	env := newTestEnv(t)
	alice := env.userToken(t, "alice@example.com", "secret1")

	var six []testFile
	for i := 0; i < 6; i++ {
		six = append(six, testFile{name: fmt.Sprintf("f%d.txt", i), contentType: "text/plain", content: "x"})
	}
	rec := env.createGrievance(t, alice, "too many", "files", six)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for six files, got %d body=%s", rec.Code, rec.Body.String())
	}

	entries, err := os.ReadDir(env.uploadDir)
	if err != nil {
		t.Fatalf("read upload dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("rejected create must persist zero attachments, found %d", len(entries))
	}
	rec = env.do(t, http.MethodGet, "/api/grievances", alice, nil)
	if total := decodeJSON(t, rec)["total"]; total != float64(0) {
		t.Fatalf("expected no grievances persisted, got %v", total)
	}
}

func TestCreateValidationHTTP(t *testing.T) {
	env := newTestEnv(t)
	alice := env.userToken(t, "alice@example.com", "secret1")

	rec := env.createGrievance(t, alice, "  ", "desc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank title, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/api/grievances", alice, map[string]string{"title": "t", "description": "d"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-multipart create, got %d", rec.Code)
	}
}

func TestCreateWithFilesPersistsAttachments(t *testing.T) {
	env := newTestEnv(t)
	alice := env.userToken(t, "alice@example.com", "secret1")

	created := env.mustCreate(t, alice, "with files", "attached", []testFile{
		{name: "photo.png", contentType: "image/png", content: "pngdata"},
		{name: "notes.txt", contentType: "text/plain", content: "details"},
	})
	files, _ := created["files"].([]any)
	if len(files) != 2 {
		t.Fatalf("expected 2 attachments, got %v", created["files"])
	}
	firstFile, _ := files[0].(map[string]any)
	if firstFile["originalName"] != "photo.png" || firstFile["mimetype"] != "image/png" {
		t.Fatalf("unexpected attachment: %v", firstFile)
	}
	if firstFile["size"] != float64(len("pngdata")) {
		t.Fatalf("unexpected size: %v", firstFile["size"])
	}

	id, _ := created["id"].(string)
	rec := env.do(t, http.MethodGet, "/api/grievances/"+id, alice, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}
	got := decodeJSON(t, rec)
	files, _ = got["files"].([]any)
	if len(files) != 2 {
		t.Fatalf("expected attachments on read-back, got %s", rec.Body.String())
	}
}
