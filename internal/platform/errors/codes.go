// Package errors provides structured error handling for the identity service.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Credential errors
	CodeCredentialsMissing Code = "CREDENTIALS_MISSING"
	CodeSignatureInvalid   Code = "SIGNATURE_INVALID"
	CodeTemporalExpiry     Code = "TEMPORAL_EXPIRY"

	// Handshake errors
	CodeStaleLaunch   Code = "STALE_LAUNCH"
	CodeSecretMissing Code = "SECRET_MISSING"

	// Directory errors
	CodeIdentityNotFound        Code = "IDENTITY_NOT_FOUND"
	CodeRevocationMismatch      Code = "REVOCATION_MISMATCH"
	CodeMalformedTenantRef      Code = "MALFORMED_TENANT_REFERENCE"
	CodeDirectoryUnavailable    Code = "DIRECTORY_UNAVAILABLE"
	CodePrincipalEmptyChatID    Code = "PRINCIPAL_EMPTY_CHAT_ID"
	CodePrincipalEmptyDisplay   Code = "PRINCIPAL_EMPTY_DISPLAY_NAME"
	CodeTenantEmptyOwner        Code = "TENANT_EMPTY_OWNER"
	CodeMembershipEmptyTenantID Code = "MEMBERSHIP_EMPTY_TENANT_ID"

	// Authorization errors
	CodeInsufficientRole Code = "INSUFFICIENT_ROLE"
	CodeUnknownRole      Code = "UNKNOWN_ROLE"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"

	// Request errors
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
)

// HTTPStatus maps an error code to the status returned on API routes.
//
// Cryptographic and temporal failures deliberately collapse to 401 so the
// response does not reveal which check failed.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeCredentialsMissing, CodeSignatureInvalid, CodeTemporalExpiry,
		CodeStaleLaunch, CodeIdentityNotFound, CodeRevocationMismatch:
		return http.StatusUnauthorized
	case CodeInsufficientRole:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeSecretMissing, CodeDirectoryUnavailable:
		return http.StatusServiceUnavailable
	case CodeMalformedTenantRef, CodeInvalidArgument, CodePrincipalEmptyChatID,
		CodePrincipalEmptyDisplay, CodeTenantEmptyOwner,
		CodeMembershipEmptyTenantID, CodeUnknownRole:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
