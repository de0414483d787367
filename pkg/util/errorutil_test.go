package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
)

func TestToDomainErrorPassthrough(t *testing.T) {
	orig := NewPolicyError(CodeTagsRequired, "tags required", map[string]any{"sector": "s1"})
	wrapped := fmt.Errorf("closing room: %w", orig)

	de := ToDomainError(wrapped)
	if de.Code != CodeTagsRequired {
		t.Fatalf("code = %s, want %s", de.Code, CodeTagsRequired)
	}
	if de.HTTPStatus != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", de.HTTPStatus)
	}
	if de.Details["sector"] != "s1" {
		t.Fatalf("details = %v", de.Details)
	}
}

func TestToDomainErrorMapsNoRows(t *testing.T) {
	de := ToDomainError(fmt.Errorf("loading queue: %w", pgx.ErrNoRows))
	if de.Code != "NOT_FOUND" || de.HTTPStatus != http.StatusNotFound {
		t.Fatalf("mapped = %s/%d, want NOT_FOUND/404", de.Code, de.HTTPStatus)
	}
}

func TestToDomainErrorWrapsUnknown(t *testing.T) {
	de := ToDomainError(errors.New("boom"))
	if de.Code != "INTERNAL_ERROR" || de.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("mapped = %s/%d", de.Code, de.HTTPStatus)
	}
	if de.Err == nil {
		t.Fatal("original error dropped")
	}
}

func TestIsPolicy(t *testing.T) {
	if !IsPolicy(NewPolicyError(CodeNoAgentsAvailable, "none", nil)) {
		t.Fatal("policy error not recognized")
	}
	if IsPolicy(NewValidationError("bad", nil)) {
		t.Fatal("validation error classified as policy")
	}
	if IsPolicy(errors.New("boom")) {
		t.Fatal("plain error classified as policy")
	}
}
