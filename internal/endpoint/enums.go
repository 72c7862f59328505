package endpoint

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
)

// ErrVariant is returned when a tagged value names an unknown variant or
// carries more than one.
var ErrVariant = errors.New("invalid variant")

// decodeTagged splits an externally tagged object {"Tag": payload}.
func decodeTagged(data []byte) (string, json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return "", nil, err
	}
	if len(m) != 1 {
		return "", nil, fmt.Errorf("%w: expected one variant, got %d", ErrVariant, len(m))
	}
	for tag, payload := range m {
		return tag, payload, nil
	}
	return "", nil, ErrVariant
}

func encodeTagged(tag string, payload any) ([]byte, error) {
	return json.Marshal(map[string]any{tag: payload})
}

func checkUnit(kind string, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%w: %s %q", ErrVariant, kind, v)
}

type LikeStatus string

const (
	Like       LikeStatus = "Like"
	Dislike    LikeStatus = "Dislike"
	NoReaction LikeStatus = "NoReaction"
)

func (s *LikeStatus) UnmarshalText(b []byte) error {
	if err := checkUnit("like status", string(b), string(Like), string(Dislike), string(NoReaction)); err != nil {
		return err
	}
	*s = LikeStatus(b)
	return nil
}

// Int16 is the value stored in reactions.like_status.
func (s LikeStatus) Int16() int16 {
	switch s {
	case Like:
		return 1
	case Dislike:
		return -1
	default:
		return 0
	}
}

func LikeStatusFromInt16(v int16) LikeStatus {
	switch {
	case v > 0:
		return Like
	case v < 0:
		return Dislike
	default:
		return NoReaction
	}
}

type BookmarkAction string

const (
	BookmarkAdd    BookmarkAction = "Add"
	BookmarkRemove BookmarkAction = "Remove"
)

func (a *BookmarkAction) UnmarshalText(b []byte) error {
	if err := checkUnit("bookmark action", string(b), string(BookmarkAdd), string(BookmarkRemove)); err != nil {
		return err
	}
	*a = BookmarkAction(b)
	return nil
}

type BoostAction string

const (
	BoostAdd    BoostAction = "Add"
	BoostRemove BoostAction = "Remove"
)

func (a *BoostAction) UnmarshalText(b []byte) error {
	if err := checkUnit("boost action", string(b), string(BoostAdd), string(BoostRemove)); err != nil {
		return err
	}
	*a = BoostAction(b)
	return nil
}

type FollowAction string

const (
	Follow   FollowAction = "Follow"
	Unfollow FollowAction = "Unfollow"
)

func (a *FollowAction) UnmarshalText(b []byte) error {
	if err := checkUnit("follow action", string(b), string(Follow), string(Unfollow)); err != nil {
		return err
	}
	*a = FollowAction(b)
	return nil
}

type VoteCast string

const (
	VoteYes          VoteCast = "Yes"
	VoteAlreadyVoted VoteCast = "AlreadyVoted"
)

func (v *VoteCast) UnmarshalText(b []byte) error {
	if err := checkUnit("vote cast", string(b), string(VoteYes), string(VoteAlreadyVoted)); err != nil {
		return err
	}
	*v = VoteCast(b)
	return nil
}

type UpdateKind int

const (
	NoChange UpdateKind = iota
	SetNull
	Change
)

// Update describes an optional modification of a single field.
type Update[T any] struct {
	Kind  UpdateKind
	Value T
}

func ChangeTo[T any](v T) Update[T] {
	return Update[T]{Kind: Change, Value: v}
}

func (u Update[T]) MarshalJSON() ([]byte, error) {
	switch u.Kind {
	case NoChange:
		return []byte(`"NoChange"`), nil
	case SetNull:
		return []byte(`"SetNull"`), nil
	case Change:
		return encodeTagged("Change", u.Value)
	}
	return nil, fmt.Errorf("%w: update kind %d", ErrVariant, u.Kind)
}

func (u *Update[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		switch s {
		case "NoChange":
			*u = Update[T]{Kind: NoChange}
		case "SetNull":
			*u = Update[T]{Kind: SetNull}
		default:
			return fmt.Errorf("%w: update %q", ErrVariant, s)
		}
		return nil
	}
	tag, payload, err := decodeTagged(data)
	if err != nil {
		return err
	}
	if tag != "Change" {
		return fmt.Errorf("%w: update %q", ErrVariant, tag)
	}
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return err
	}
	*u = ChangeTo(v)
	return nil
}
