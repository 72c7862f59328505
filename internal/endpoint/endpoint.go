// Package endpoint defines the JSON request and response types of the uchat
// API and the URL each request is served on.
package endpoint

// Endpoint is implemented by every request type.
type Endpoint interface {
	URL() string
}

// Public routes.
const (
	CreateUserURL = "/account/create"
	LoginURL      = "/account/login"
)

// Authorized routes.
const (
	LogoutURL          = "/account/logout"
	GetMyProfileURL    = "/profile/me"
	UpdateProfileURL   = "/profile/update"
	ViewProfileURL     = "/profile/view"
	FollowUserURL      = "/user/follow"
	IsFollowingURL     = "/user/is_following"
	NewPostURL         = "/post/new"
	BookmarkURL        = "/post/bookmark"
	BoostURL           = "/post/boost"
	ReactURL           = "/post/react"
	VoteURL            = "/post/vote"
	TrendingPostsURL   = "/posts/trending"
	HomePostsURL       = "/posts/home"
	LikedPostsURL      = "/posts/liked"
	BookmarkedPostsURL = "/posts/bookmarked"
)

// User content paths, relative to the API URL.
const (
	UserContentRoot   = "/usercontent"
	UserContentImages = UserContentRoot + "/img"
)

// RequestFailed is the body of every error response.
type RequestFailed struct {
	Msg string `json:"msg"`
}

func (r RequestFailed) Error() string { return r.Msg }

func (CreateUser) URL() string      { return CreateUserURL }
func (Login) URL() string           { return LoginURL }
func (Logout) URL() string          { return LogoutURL }
func (GetMyProfile) URL() string    { return GetMyProfileURL }
func (UpdateProfile) URL() string   { return UpdateProfileURL }
func (ViewProfile) URL() string     { return ViewProfileURL }
func (FollowUser) URL() string      { return FollowUserURL }
func (IsFollowing) URL() string     { return IsFollowingURL }
func (NewPost) URL() string         { return NewPostURL }
func (Bookmark) URL() string        { return BookmarkURL }
func (Boost) URL() string           { return BoostURL }
func (React) URL() string           { return ReactURL }
func (Vote) URL() string            { return VoteURL }
func (TrendingPosts) URL() string   { return TrendingPostsURL }
func (HomePosts) URL() string       { return HomePostsURL }
func (LikedPosts) URL() string      { return LikedPostsURL }
func (BookmarkedPosts) URL() string { return BookmarkedPostsURL }
