// Package domain holds typed identifiers shared across bounded contexts.
//
// Each identifier wraps a uuid.UUID so the compiler rejects accidental
// cross-type assignment (an ApplicationID can never be passed where a
// DocumentID is expected).
package domain

import (
	"github.com/google/uuid"

	dErrors "scholarship/pkg/domain-errors"
)

type (
	UserID         uuid.UUID
	ApplicationID  uuid.UUID
	DocumentID     uuid.UUID
	ProfileID      uuid.UUID
	QueryID        uuid.UUID
	AlertID        uuid.UUID
	DisbursementID uuid.UUID
)

func (id UserID) String() string         { return uuid.UUID(id).String() }
func (id ApplicationID) String() string  { return uuid.UUID(id).String() }
func (id DocumentID) String() string     { return uuid.UUID(id).String() }
func (id ProfileID) String() string      { return uuid.UUID(id).String() }
func (id QueryID) String() string        { return uuid.UUID(id).String() }
func (id AlertID) String() string        { return uuid.UUID(id).String() }
func (id DisbursementID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id ApplicationID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id ProfileID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id QueryID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id AlertID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id DisbursementID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// ParseUserID parses a user (student, verifier or admin) identifier.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user ID")
	return UserID(u), err
}

func ParseApplicationID(s string) (ApplicationID, error) {
	u, err := parseUUID(s, "application ID")
	return ApplicationID(u), err
}

func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID(s, "document ID")
	return DocumentID(u), err
}

func ParseProfileID(s string) (ProfileID, error) {
	u, err := parseUUID(s, "profile ID")
	return ProfileID(u), err
}

func ParseQueryID(s string) (QueryID, error) {
	u, err := parseUUID(s, "query ID")
	return QueryID(u), err
}

// parseUUID enforces the trust-boundary invariant shared by every ID type:
// non-empty, well-formed and not the nil UUID.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be nil")
	}
	return u, nil
}

// Text encoding makes the IDs render as canonical UUID strings in JSON and
// log output instead of raw byte arrays. Decoding accepts the nil UUID so
// records written by system actors round-trip.

func (id UserID) MarshalText() ([]byte, error)         { return uuid.UUID(id).MarshalText() }
func (id ApplicationID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id DocumentID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id ProfileID) MarshalText() ([]byte, error)      { return uuid.UUID(id).MarshalText() }
func (id QueryID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id AlertID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id DisbursementID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error         { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ApplicationID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *DocumentID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ProfileID) UnmarshalText(b []byte) error      { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *QueryID) UnmarshalText(b []byte) error        { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *AlertID) UnmarshalText(b []byte) error        { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *DisbursementID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
