package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/skyhangar/flightline/model"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, map[string]string{"hello": "world"})

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["hello"] != "world" {
		t.Errorf("body = %v", body)
	}
}

func TestWriteJSON_nilBody(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusNoContent, nil)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", w.Body.String())
	}
}

func TestWriteError_statusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
		code string
	}{
		{"bad request", model.NewBadRequestError("x"), http.StatusBadRequest, model.ErrBadRequest},
		{"unauthorized", model.NewUnauthorizedError("x"), http.StatusUnauthorized, model.ErrUnauthorized},
		{"forbidden", model.NewForbiddenError("x"), http.StatusForbidden, model.ErrForbidden},
		{"not found", model.NewNotFoundError("x"), http.StatusNotFound, model.ErrNotFound},
		{"conflict", model.NewConflictError("x"), http.StatusConflict, model.ErrConflict},
		{"validation", model.NewValidationError(nil), http.StatusUnprocessableEntity, model.ErrValidationError},
		{"terminal state", model.NewTerminalStateError("x"), http.StatusConflict, model.ErrTerminalState},
		{"invalid target step", model.NewInvalidTargetStepError("x"), http.StatusUnprocessableEntity, model.ErrInvalidTargetStep},
		{"missing comment", model.NewMissingCommentError("x"), http.StatusUnprocessableEntity, model.ErrMissingComment},
		{"self approval", model.NewSelfApprovalError("x"), http.StatusUnprocessableEntity, model.ErrSelfApproval},
		{"concurrent modification", model.NewConcurrentModificationError("x"), http.StatusConflict, model.ErrConcurrentModification},
		{"unknown code", &model.ErrorEnvelope{Code: "SOMETHING_ELSE"}, http.StatusInternalServerError, "SOMETHING_ELSE"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, model.ErrInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.err)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			var body struct {
				Error *model.ErrorEnvelope `json:"error"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if body.Error == nil || body.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %q", body.Error, tt.code)
			}
		})
	}
}

func TestWriteValidationError_details(t *testing.T) {
	w := httptest.NewRecorder()
	WriteValidationError(w, []model.FieldError{
		{Field: "title", Code: "REQUIRED", Message: "title is required"},
	})

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
	var body struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Error.Details) != 1 || body.Error.Details[0].Field != "title" {
		t.Errorf("details = %+v", body.Error.Details)
	}
}
