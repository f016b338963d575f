package directory

import (
	"context"
	"testing"

	apperrors "github.com/evmarques/storefront.chat/internal/platform/errors"
)

func TestNormalizeUpsertUserInput(t *testing.T) {
	normalized, err := NormalizeUpsertUserInput(UpsertUserInput{ChatID: 77001, DisplayName: "  Dana Reis  "})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if normalized.DisplayName != "Dana Reis" {
		t.Fatalf("expected trimmed display name, got %q", normalized.DisplayName)
	}
}

func TestNormalizeUpsertUserInputRejectsMissingChatID(t *testing.T) {
	_, err := NormalizeUpsertUserInput(UpsertUserInput{DisplayName: "Dana"})
	if apperrors.CodeOf(err) != apperrors.CodePrincipalEmptyChatID {
		t.Fatalf("expected PRINCIPAL_EMPTY_CHAT_ID, got %v", err)
	}
}

func TestNormalizeUpsertUserInputRejectsEmptyDisplayName(t *testing.T) {
	_, err := NormalizeUpsertUserInput(UpsertUserInput{ChatID: 1, DisplayName: "   "})
	if apperrors.CodeOf(err) != apperrors.CodePrincipalEmptyDisplay {
		t.Fatalf("expected PRINCIPAL_EMPTY_DISPLAY_NAME, got %v", err)
	}
}

// stampStore stubs the store surface the registry touches.
type stampStore struct {
	Store
	rotated []string
	stamp   string
	err     error
}

func (s *stampStore) RotateStamp(_ context.Context, userID string) (string, error) {
	s.rotated = append(s.rotated, userID)
	return s.stamp, s.err
}

func TestRegistryRotate(t *testing.T) {
	store := &stampStore{stamp: "stamp-2"}
	registry := NewRegistry(store)

	stamp, err := registry.Rotate(context.Background(), " p-1 ")
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if stamp != "stamp-2" {
		t.Fatalf("expected new stamp, got %q", stamp)
	}
	if len(store.rotated) != 1 || store.rotated[0] != "p-1" {
		t.Fatalf("expected trimmed principal id passed through, got %v", store.rotated)
	}
}

func TestRegistryRotateRequiresPrincipal(t *testing.T) {
	registry := NewRegistry(&stampStore{})
	if _, err := registry.Rotate(context.Background(), "  "); apperrors.CodeOf(err) != apperrors.CodeIdentityNotFound {
		t.Fatalf("expected IDENTITY_NOT_FOUND, got %v", err)
	}
}

func TestRegistryRotateUnconfigured(t *testing.T) {
	var registry Registry
	if _, err := registry.Rotate(context.Background(), "p-1"); apperrors.CodeOf(err) != apperrors.CodeDirectoryUnavailable {
		t.Fatalf("expected DIRECTORY_UNAVAILABLE, got %v", err)
	}
}
