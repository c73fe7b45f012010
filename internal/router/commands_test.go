package router_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func (f *fixture) postCommand(t *testing.T, payload string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/sync/command", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestCommandEndpointCachesDocument(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("pdf-bytes"))
	})
	f.router.SetCommandHandler(func(ctx context.Context, url string) error {
		_, err := f.cache.Put(ctx, url)
		return err
	})

	docURL := f.cfg.App.UpstreamURL + "/tags/manual.pdf"
	rec := f.postCommand(t, `{"type":"cache-doc","url":"`+docURL+`"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if !f.cache.Has(docURL) {
		t.Fatal("expected command to cache the document")
	}
}

func TestCommandEndpointRejectsUnknownType(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {})

	rec := f.postCommand(t, `{"type":"reboot"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown command type, got %d", rec.Code)
	}
}

func TestCommandEndpointRejectsForeignTenant(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {})

	rec := f.postCommand(t, `{"type":"cache-doc","url":"https://docs.example.com/x.pdf","tenant":"somewhere-else"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for foreign tenant, got %d", rec.Code)
	}
}

func TestCommandEndpointWithoutHandlerUnavailable(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {})

	rec := f.postCommand(t, `{"type":"cache-doc","url":"https://docs.example.com/x.pdf"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a handler, got %d", rec.Code)
	}
}
