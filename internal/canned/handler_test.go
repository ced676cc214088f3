package canned

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
)

func newTestRouter(t *testing.T) (*chi.Mux, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	r := chi.NewRouter()
	h := NewHandler(NewRepository(db))
	r.Get("/api/canned/shortcut/{shortcut}", h.GetByShortcut)
	return r, mock
}

func TestGetByShortcut(t *testing.T) {
	r, mock := newTestRouter(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "title", "content", "shortcut", "category", "created_at", "updated_at"}).
		AddRow("c1", "Greeting", "Hi there! Thanks for reaching out. How can I help you today?", "/hi", "General", now, now)
	mock.ExpectQuery("FROM canned_responses WHERE shortcut").WithArgs("/hi").WillReturnRows(rows)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/canned/shortcut/hi", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got Response
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Shortcut != "/hi" || got.Title != "Greeting" {
		t.Fatalf("got %+v, want the /hi greeting", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetByShortcutUnknown(t *testing.T) {
	r, mock := newTestRouter(t)

	mock.ExpectQuery("FROM canned_responses WHERE shortcut").WithArgs("/nope").WillReturnError(sql.ErrNoRows)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/canned/shortcut/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
