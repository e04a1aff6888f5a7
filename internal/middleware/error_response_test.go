package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/beetlebase/internal/model"
)

func decodeRecorded(t *testing.T, w *httptest.ResponseRecorder) (ErrorResponseBody, map[string]any) {
	t.Helper()
	raw := w.Body.Bytes()
	var body ErrorResponseBody
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	var fields map[string]any
	json.Unmarshal(raw, &fields)
	return body, fields
}

func TestWriteErrorResponse_DomainErrors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		err          *model.APIError
		wantCategory string
	}{
		{"quota", http.StatusPaymentRequired, model.NewQuotaExceededError(model.QuotaIndividuals, 5), "quota"},
		{"not found", http.StatusNotFound, model.NewIndividualNotFoundError("ind-x"), "record"},
		{"precondition", http.StatusConflict, model.NewInvalidPreconditionError("失敗したジョブのみ再実行できます"), "job"},
		{"external", http.StatusBadGateway, model.NewExternalServiceFailureError("narrative"), "external"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteErrorResponse(w, tt.status, tt.err)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			body, fields := decodeRecorded(t, w)
			if body.Code != tt.err.Code || body.Message != tt.err.Message || body.Action != tt.err.Action {
				t.Errorf("body = %+v, want fields copied from %+v", body, tt.err)
			}
			if body.Category != tt.wantCategory {
				t.Errorf("category = %q, want %q", body.Category, tt.wantCategory)
			}
			if _, ok := fields["details"]; ok {
				t.Error("details should be omitted when empty")
			}
		})
	}
}

func TestWriteErrorResponse_ValidationDetails(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(
		model.FieldError{Field: "individualCode", Message: "個体コードは必須です"},
		model.FieldError{Field: "measuredAt", Message: "日時の形式が正しくありません"},
	))

	body, _ := decodeRecorded(t, w)
	if body.Code != model.ErrCodeValidation {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeValidation)
	}
	if len(body.Details) != 2 || body.Details[0].Field != "individualCode" || body.Details[1].Field != "measuredAt" {
		t.Errorf("details = %+v, want fields in input order", body.Details)
	}
}

func TestWriteInternalServerError_HidesCause(t *testing.T) {
	w := httptest.NewRecorder()
	WriteInternalServerError(w)

	body, _ := decodeRecorded(t, w)
	if w.Code != http.StatusInternalServerError || body.Code != "INTERNAL_ERROR" || body.Category != "system" {
		t.Errorf("status/code/category = %d/%s/%s", w.Code, body.Code, body.Category)
	}
	if strings.Contains(w.Body.String(), "panic") || strings.Contains(w.Body.String(), "sql") {
		t.Errorf("internal details leaked: %s", w.Body.String())
	}
}
