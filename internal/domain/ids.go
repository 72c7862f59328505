package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// ErrParseID is returned when a string is not a valid UUID.
var ErrParseID = errors.New("failed to parse ID")

type (
	userKind       struct{}
	postKind       struct{}
	sessionKind    struct{}
	imageKind      struct{}
	pollChoiceKind struct{}
)

// ID is a UUID tagged with the entity it identifies, so a PostID cannot be
// passed where a UserID is expected.
type ID[K any] struct {
	u uuid.UUID
}

type (
	UserID       = ID[userKind]
	PostID       = ID[postKind]
	SessionID    = ID[sessionKind]
	ImageID      = ID[imageKind]
	PollChoiceID = ID[pollChoiceKind]
)

func newID[K any]() ID[K] { return ID[K]{u: uuid.New()} }

func NewUserID() UserID             { return newID[userKind]() }
func NewPostID() PostID             { return newID[postKind]() }
func NewSessionID() SessionID       { return newID[sessionKind]() }
func NewImageID() ImageID           { return newID[imageKind]() }
func NewPollChoiceID() PollChoiceID { return newID[pollChoiceKind]() }

// parseID parses the canonical textual form of a UUID.
func parseID[K any](s string) (ID[K], error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ID[K]{}, fmt.Errorf("%w: %q", ErrParseID, s)
	}
	return ID[K]{u: u}, nil
}

func ParseUserID(s string) (UserID, error)             { return parseID[userKind](s) }
func ParsePostID(s string) (PostID, error)             { return parseID[postKind](s) }
func ParseSessionID(s string) (SessionID, error)       { return parseID[sessionKind](s) }
func ParseImageID(s string) (ImageID, error)           { return parseID[imageKind](s) }
func ParsePollChoiceID(s string) (PollChoiceID, error) { return parseID[pollChoiceKind](s) }

func (id ID[K]) UUID() uuid.UUID { return id.u }
func (id ID[K]) String() string  { return id.u.String() }
func (id ID[K]) IsZero() bool    { return id.u == uuid.Nil }

// Bytes returns the 16 raw bytes of the UUID.
func (id ID[K]) Bytes() []byte {
	b := id.u
	return b[:]
}

func (id ID[K]) MarshalText() ([]byte, error) {
	return []byte(id.u.String()), nil
}

func (id *ID[K]) UnmarshalText(b []byte) error {
	parsed, err := parseID[K](string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ScanUUID implements pgtype.UUIDScanner.
func (id *ID[K]) ScanUUID(v pgtype.UUID) error {
	if !v.Valid {
		return errors.New("cannot scan NULL into ID")
	}
	id.u = uuid.UUID(v.Bytes)
	return nil
}

// UUIDValue implements pgtype.UUIDValuer.
func (id ID[K]) UUIDValue() (pgtype.UUID, error) {
	return pgtype.UUID{Bytes: id.u, Valid: true}, nil
}
