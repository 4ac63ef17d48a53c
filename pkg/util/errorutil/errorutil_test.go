package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
)

func TestToDomainErrorPassesThroughWrapped(t *testing.T) {
	original := NewInvalidState("ticket not in progress", nil)
	wrapped := fmt.Errorf("request close: %w", original)

	got := ToDomainError(wrapped)
	if got.Kind != KindInvalidState {
		t.Fatalf("expected kind %s, got %s", KindInvalidState, got.Kind)
	}
	if got.HTTPStatus != http.StatusConflict {
		t.Fatalf("expected 409, got %d", got.HTTPStatus)
	}
}

func TestToDomainErrorMapsNoRows(t *testing.T) {
	got := ToDomainError(pgx.ErrNoRows)
	if got.Kind != KindNotFound || got.HTTPStatus != http.StatusNotFound {
		t.Fatalf("expected not found mapping, got %+v", got)
	}
}

func TestToDomainErrorDefaultsToInternal(t *testing.T) {
	cause := errors.New("connection reset")
	got := ToDomainError(cause)
	if got.Kind != KindInternal {
		t.Fatalf("expected internal kind, got %s", got.Kind)
	}
	if !errors.Is(got, cause) {
		t.Fatalf("expected internal error to unwrap to cause")
	}
	if ToDomainError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestNewIneligibleCarriesReason(t *testing.T) {
	err := NewIneligible("window expired", map[string]any{"ticket_id": "T1"})
	if !IsKind(err, KindIneligible) {
		t.Fatalf("expected ineligible kind")
	}
	de := ToDomainError(err)
	if de.Details["reason"] != "window expired" {
		t.Fatalf("expected reason in details, got %v", de.Details)
	}
	if de.Details["ticket_id"] != "T1" {
		t.Fatalf("expected caller details preserved, got %v", de.Details)
	}
}
