package requestctx

import (
	"context"
	"testing"
)

func TestPrincipalIDFromContextRoundTrip(t *testing.T) {
	ctx := WithPrincipalID(context.Background(), "principal-42")
	got := PrincipalIDFromContext(ctx)
	if got != "principal-42" {
		t.Fatalf("PrincipalIDFromContext = %q, want %q", got, "principal-42")
	}
}

func TestPrincipalIDFromContextEmpty(t *testing.T) {
	got := PrincipalIDFromContext(context.Background())
	if got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

func TestPrincipalIDFromContextNil(t *testing.T) {
	got := PrincipalIDFromContext(nil)
	if got != "" {
		t.Fatalf("expected empty string for nil context, got %q", got)
	}
}

func TestWithPrincipalIDNilContext(t *testing.T) {
	ctx := WithPrincipalID(nil, "principal-99")
	if ctx == nil {
		t.Fatalf("expected non-nil context")
	}
	if got := PrincipalIDFromContext(ctx); got != "principal-99" {
		t.Fatalf("PrincipalIDFromContext = %q, want %q", got, "principal-99")
	}
}
