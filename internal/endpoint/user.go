package endpoint

import (
	"time"

	"uchat/internal/domain"
)

type PublicUserProfile struct {
	ID           domain.UserID       `json:"id"`
	DisplayName  *domain.DisplayName `json:"display_name"`
	Handle       string              `json:"handle"`
	ProfileImage *string             `json:"profile_image"`
	CreatedAt    time.Time           `json:"created_at"`
	AmFollowing  bool                `json:"am_following"`
}

type CreateUser struct {
	Username domain.Username `json:"username"`
	Password domain.Password `json:"password"`
}

type CreateUserOk struct {
	UserID           domain.UserID    `json:"user_id"`
	Username         domain.Username  `json:"username"`
	SessionID        domain.SessionID `json:"session_id"`
	SessionSignature string           `json:"session_signature"`
	SessionExpires   time.Time        `json:"session_expires"`
}

type Login struct {
	Username domain.Username `json:"username"`
	Password domain.Password `json:"password"`
}

type LoginOk struct {
	SessionSignature string           `json:"session_signature"`
	SessionID        domain.SessionID `json:"session_id"`
	SessionExpires   time.Time        `json:"session_expires"`
	DisplayName      *string          `json:"display_name"`
	Email            *string          `json:"email"`
	ProfileImage     *string          `json:"profile_image"`
	UserID           domain.UserID    `json:"user_id"`
}

type Logout struct{}

type LogoutOk struct{}

type GetMyProfile struct{}

type GetMyProfileOk struct {
	DisplayName  *string       `json:"display_name"`
	Email        *string       `json:"email"`
	ProfileImage *string       `json:"profile_image"`
	UserID       domain.UserID `json:"user_id"`
}

// UpdateProfile carries a profile image as a data URL when it changes.
type UpdateProfile struct {
	DisplayName  Update[domain.DisplayName] `json:"display_name"`
	Email        Update[domain.Email]       `json:"email"`
	Password     Update[domain.Password]    `json:"password"`
	ProfileImage Update[string]             `json:"profile_image"`
}

type UpdateProfileOk struct {
	ProfileImage *string `json:"profile_image"`
}

type ViewProfile struct {
	UserID domain.UserID `json:"user_id"`
}

type ViewProfileOk struct {
	Profile PublicUserProfile `json:"profile"`
	Posts   []PublicPost      `json:"posts"`
}

type FollowUser struct {
	Follows domain.UserID `json:"follows"`
	Action  FollowAction  `json:"action"`
}

type FollowUserOk struct {
	IsFollowing bool `json:"is_following"`
}

type IsFollowing struct {
	Follows domain.UserID `json:"follows"`
}

type IsFollowingOk struct {
	IsFollowing bool `json:"is_following"`
}
