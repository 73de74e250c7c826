package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxwire/voxwire/pkg/audio"
	audiomock "github.com/voxwire/voxwire/pkg/audio/mock"
	"github.com/voxwire/voxwire/pkg/session"
	sessionmock "github.com/voxwire/voxwire/pkg/session/mock"
)

func TestHealthz_AlwaysReturns200(t *testing.T) {
	h := New()

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
}

func TestReadyz_ReportsFailedChecker(t *testing.T) {
	h := New(
		Checker{Name: "audio", Check: func(_ context.Context) error { return nil }},
		Checker{Name: "session", Check: func(_ context.Context) error {
			return errors.New("session is disconnected")
		}},
	)

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "fail" {
		t.Errorf("status = %q, want %q", body.Status, "fail")
	}
	if body.Checks["audio"] != "ok" {
		t.Errorf("audio check = %q, want ok", body.Checks["audio"])
	}
	if body.Checks["session"] != "fail: session is disconnected" {
		t.Errorf("session check = %q", body.Checks["session"])
	}
}

func TestPipelineChecker(t *testing.T) {
	p := audio.NewPipeline(&audiomock.Device{})

	if err := PipelineChecker(p).Check(context.Background()); err == nil {
		t.Error("check = nil for an inactive pipeline, want error")
	}

	if err := p.Initialize(context.Background(), audio.Config{}); err != nil {
		t.Fatalf("Initialize = %v, want nil", err)
	}
	defer p.Cleanup()

	if err := PipelineChecker(p).Check(context.Background()); err != nil {
		t.Errorf("check = %v for an active pipeline, want nil", err)
	}
}

func TestSessionChecker(t *testing.T) {
	m := session.NewManager("key", session.WithTransport(&sessionmock.Transport{}))

	if err := SessionChecker(m).Check(context.Background()); err == nil {
		t.Error("check = nil for a disconnected session, want error")
	}

	if err := m.Connect(context.Background(), session.Config{}); err != nil {
		t.Fatalf("Connect = %v, want nil", err)
	}
	defer m.Cleanup()

	if err := SessionChecker(m).Check(context.Background()); err != nil {
		t.Errorf("check = %v for a connected session, want nil", err)
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	h := New(
		Checker{Name: "test", Check: func(_ context.Context) error { return nil }},
	)

	mux := http.NewServeMux()
	h.Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want %d", path, rec.Code, http.StatusOK)
		}
	}
}
