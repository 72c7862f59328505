package models

import (
	"time"

	"uchat/internal/domain"
)

type User struct {
	ID             domain.UserID
	Email          *string
	EmailConfirmed *time.Time
	PasswordHash   string
	DisplayName    *string
	Handle         string
	CreatedAt      time.Time
	// ProfileImage is an image ID in the image store.
	ProfileImage *string
}

type Session struct {
	ID          domain.SessionID
	UserID      domain.UserID
	ExpiresAt   time.Time
	CreatedAt   time.Time
	Fingerprint []byte
}

// Post content is the JSON encoding of endpoint.Content.
type Post struct {
	ID              domain.PostID
	UserID          domain.UserID
	Content         []byte
	TimePosted      time.Time
	DirectMessageTo *domain.UserID
	ReplyTo         *domain.PostID
	CreatedAt       time.Time
}

type Reaction struct {
	UserID     domain.UserID
	PostID     domain.PostID
	CreatedAt  time.Time
	LikeStatus int16
	Reaction   []byte
}

type Boost struct {
	UserID    domain.UserID
	PostID    domain.PostID
	BoostedAt time.Time
}

type Bookmark struct {
	UserID    domain.UserID
	PostID    domain.PostID
	CreatedAt time.Time
}

type PollChoice struct {
	ID     domain.PollChoiceID
	Choice string
	PostID domain.PostID
}

// AggregatePostInfo counts engagement on a single post.
type AggregatePostInfo struct {
	PostID   domain.PostID
	Likes    int64
	Dislikes int64
	Boosts   int64
}

type PollChoiceResult struct {
	ChoiceID domain.PollChoiceID
	NumVotes int64
}

type PollResults struct {
	PostID  domain.PostID
	Results []PollChoiceResult
	// Voted is the choice the viewing user picked, if any.
	Voted *domain.PollChoiceID
}
