package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"governance-api/domain"
	"governance-api/ingest"
	"governance-api/storage"
	"governance-api/workflow"
	"governance-api/workspace"
)

func newTestContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestDecodeBody(t *testing.T) {
	c, _ := newTestContext(http.MethodPatch, "/", `{"field":"title","value":"Rig lights"}`)
	var req editRowRequest
	if err := decodeBody(c, &req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Field != "title" || req.Value != "Rig lights" {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestDecodeBodyEmpty(t *testing.T) {
	c, _ := newTestContext(http.MethodPost, "/", "")
	req := commitRequest{ConfirmUpdates: true}
	if err := decodeBody(c, &req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !req.ConfirmUpdates {
		t.Fatalf("empty body must leave the request untouched")
	}
}

func TestDecodeBodyEmptyWithoutLength(t *testing.T) {
	c, _ := newTestContext(http.MethodPost, "/", "")
	c.Request().ContentLength = -1
	req := commitRequest{ConfirmUpdates: true}
	if err := decodeBody(c, &req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !req.ConfirmUpdates {
		t.Fatalf("empty body must leave the request untouched")
	}
}

func TestDecodeBodyRejectsTruncatedCommit(t *testing.T) {
	for _, body := range []string{`{"confirmUpdates":`, `{"confirmUpdates":true`, `{`} {
		c, _ := newTestContext(http.MethodPost, "/", body)
		c.Request().ContentLength = -1
		var req commitRequest
		if err := decodeBody(c, &req); !errors.Is(err, errInvalidBody) {
			t.Fatalf("body %q: expected errInvalidBody, got %v", body, err)
		}
	}
}

func TestDecodeBodyRejects(t *testing.T) {
	for name, body := range map[string]string{
		"unknown field": `{"field":"title","value":"x","extra":1}`,
		"malformed":     `{"field":`,
		"wrong type":    `{"field":3}`,
	} {
		t.Run(name, func(t *testing.T) {
			c, _ := newTestContext(http.MethodPatch, "/", body)
			var req editRowRequest
			if err := decodeBody(c, &req); !errors.Is(err, errInvalidBody) {
				t.Fatalf("expected errInvalidBody, got %v", err)
			}
		})
	}
}

func TestPositionParam(t *testing.T) {
	for raw, want := range map[string]int{"0": 0, "7": 7} {
		c, _ := newTestContext(http.MethodDelete, "/", "")
		c.SetParamNames("pos")
		c.SetParamValues(raw)
		got, err := positionParam(c)
		if err != nil || got != want {
			t.Fatalf("positionParam(%q) = %d, %v", raw, got, err)
		}
	}
	for _, raw := range []string{"", "-1", "two"} {
		c, _ := newTestContext(http.MethodDelete, "/", "")
		c.SetParamNames("pos")
		c.SetParamValues(raw)
		if _, err := positionParam(c); !errors.Is(err, errInvalidPos) {
			t.Fatalf("positionParam(%q): expected errInvalidPos, got %v", raw, err)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"unauthorized", errors.Join(errUnauthorized, errBadAuthorization), http.StatusUnauthorized, "Unauthorized"},
		{"not sync ready", workspace.ErrNotSyncReady, http.StatusUnprocessableEntity, ""},
		{"remarks", fmt.Errorf("plan: %w", workflow.ErrRemarksRequired), http.StatusUnprocessableEntity, ""},
		{"illegal", workflow.ErrIllegalTransition, http.StatusUnprocessableEntity, ""},
		{"forbidden", workflow.ErrForbidden, http.StatusForbidden, ""},
		{"not owner", workspace.ErrNotOwner, http.StatusForbidden, ""},
		{"workspace missing", workspace.ErrNotFound, http.StatusNotFound, ""},
		{"task missing", storage.ErrTaskNotFound, http.StatusNotFound, ""},
		{"row range", workspace.ErrRowOutOfRange, http.StatusBadRequest, ""},
		{"field", workspace.ErrUnknownField, http.StatusBadRequest, ""},
		{"decision", domain.ErrInvalidDecision, http.StatusBadRequest, ""},
		{"stage", domain.ErrUnknownStage, http.StatusBadRequest, ""},
		{"version", workspace.ErrVersionConflict, http.StatusConflict, ""},
		{"in flight", workspace.ErrCommitInFlight, http.StatusConflict, ""},
		{"etag", storage.ErrConcurrencyConflict, http.StatusConflict, ""},
		{"undo", errNothingToUndo, http.StatusConflict, "Nothing to undo"},
		{"remote", &ingest.RemoteError{Status: 500, Message: "Unsupported file type"}, http.StatusBadGateway, "Unsupported file type"},
		{"submit", &workspace.SubmitError{Message: "No existing task titled \"A\" to update"}, http.StatusBadGateway, "No existing task titled \"A\" to update"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "Internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := classify(tt.err)
			if status != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, status)
			}
			if tt.message != "" && body.Message != tt.message {
				t.Fatalf("expected message %q, got %q", tt.message, body.Message)
			}
			if body.Message == "" {
				t.Fatalf("expected a message")
			}
		})
	}
}

func TestClassifyConfirmationRequired(t *testing.T) {
	status, body := classify(workspace.ErrConfirmationRequired)
	if status != http.StatusConflict || !body.ConfirmationRequired {
		t.Fatalf("unexpected classification: %d %+v", status, body)
	}
}
