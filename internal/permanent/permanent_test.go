package permanent

import (
	"errors"
	"fmt"
	"testing"
)

func TestRejectSurvivesWrapping(t *testing.T) {
	t.Parallel()

	cause := errors.New("status=400")
	err := fmt.Errorf("endpoint hook: %w", Reject("http_status", cause))
	if !Is(err) || ReasonOf(err) != "http_status" {
		t.Fatalf("expected wrapped permanent http_status, got %v %q", Is(err), ReasonOf(err))
	}
	if !errors.Is(err, cause) || err.Error() != "endpoint hook: status=400" {
		t.Fatalf("cause must stay reachable: %v", err)
	}
}

func TestMarkDefaultsAndNil(t *testing.T) {
	t.Parallel()

	if Mark(nil) != nil || Reject("x", nil) != nil {
		t.Fatalf("nil must stay nil")
	}
	if got := ReasonOf(Mark(errors.New("bad"))); got != ReasonInvalid {
		t.Fatalf("reason=%q", got)
	}
	if Is(errors.New("timeout")) || ReasonOf(errors.New("timeout")) != "" {
		t.Fatalf("plain errors are retryable")
	}
}
