package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"uchat/internal/auth"
	"uchat/internal/crypto"
	"uchat/internal/domain"
	"uchat/internal/endpoint"
	"uchat/internal/images"
	"uchat/internal/logging"
	"uchat/internal/metrics"
	"uchat/internal/models"
	"uchat/internal/query"
)

// credentials re-checks fields a client may have left out entirely, which
// never reach the decoders of the domain types.
func credentials(u domain.Username, p domain.Password) error {
	if _, err := domain.NewUsername(u.String()); err != nil {
		return err
	}
	_, err := domain.NewPassword(p.Reveal())
	return err
}

type createUser endpoint.CreateUser

func (req createUser) Validate() error { return credentials(req.Username, req.Password) }

func (req createUser) Process(ctx context.Context, conn query.DB, st *AppState) (Reply[endpoint.CreateUserOk], error) {
	var reply Reply[endpoint.CreateUserOk]

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		return reply, err
	}
	userID, err := query.NewUser(ctx, conn, hash, req.Username)
	if errors.Is(err, query.ErrConflict) {
		return reply, ErrAccountExists
	}
	if err != nil {
		return reply, fmt.Errorf("create user: %w", err)
	}
	logging.Ctx(ctx).Info().
		Str("user_id", userID.String()).
		Str("handle", req.Username.String()).
		Msg("new user created")
	metrics.RegistrationsTotal.Inc()

	issued, err := st.sessions.NewSession(ctx, conn, userID, fingerprintFrom(ctx))
	if err != nil {
		return reply, err
	}
	return Reply[endpoint.CreateUserOk]{
		Status: http.StatusCreated,
		Body: endpoint.CreateUserOk{
			UserID:           userID,
			Username:         req.Username,
			SessionID:        issued.Session.ID,
			SessionSignature: issued.Signature,
			SessionExpires:   issued.Session.ExpiresAt,
		},
		Cookies: st.sessions.SessionCookies(issued),
	}, nil
}

type login endpoint.Login

func (req login) Validate() error { return credentials(req.Username, req.Password) }

func (req login) Process(ctx context.Context, conn query.DB, st *AppState) (Reply[endpoint.LoginOk], error) {
	var reply Reply[endpoint.LoginOk]

	hash, err := query.GetPasswordHash(ctx, conn, req.Username)
	if err != nil && !errors.Is(err, query.ErrNotFound) {
		return reply, fmt.Errorf("password hash: %w", err)
	}
	if err != nil || crypto.VerifyPassword(req.Password, hash) != nil {
		metrics.LoginTotal.WithLabelValues("wrong_password").Inc()
		return reply, ErrWrongPassword
	}

	user, err := query.FindUser(ctx, conn, req.Username)
	if errors.Is(err, query.ErrNotFound) {
		metrics.LoginTotal.WithLabelValues("missing_login").Inc()
		return reply, ErrMissingLogin
	}
	if err != nil {
		return reply, fmt.Errorf("find user: %w", err)
	}

	issued, err := st.sessions.NewSession(ctx, conn, user.ID, fingerprintFrom(ctx))
	if err != nil {
		return reply, err
	}
	metrics.LoginTotal.WithLabelValues("success").Inc()

	reply = okReply(endpoint.LoginOk{
		SessionSignature: issued.Signature,
		SessionID:        issued.Session.ID,
		SessionExpires:   issued.Session.ExpiresAt,
		DisplayName:      user.DisplayName,
		Email:            user.Email,
		ProfileImage:     st.imageURL(user.ProfileImage),
		UserID:           user.ID,
	})
	reply.Cookies = st.sessions.SessionCookies(issued)
	return reply, nil
}

type logout endpoint.Logout

func (logout) Process(ctx context.Context, conn query.DB, session auth.UserSession, st *AppState) (Reply[endpoint.LogoutOk], error) {
	if err := st.sessions.Destroy(ctx, conn, session.SessionID); err != nil {
		return Reply[endpoint.LogoutOk]{}, err
	}
	reply := okReply(endpoint.LogoutOk{})
	reply.Cookies = st.sessions.ExpiredCookies()
	return reply, nil
}

type getMyProfile endpoint.GetMyProfile

func (getMyProfile) Process(ctx context.Context, conn query.DB, session auth.UserSession, st *AppState) (Reply[endpoint.GetMyProfileOk], error) {
	user, err := query.GetUser(ctx, conn, session.UserID)
	if err != nil {
		return Reply[endpoint.GetMyProfileOk]{}, fmt.Errorf("get user: %w", err)
	}
	return okReply(endpoint.GetMyProfileOk{
		DisplayName:  user.DisplayName,
		Email:        user.Email,
		ProfileImage: st.imageURL(user.ProfileImage),
		UserID:       user.ID,
	}), nil
}

type updateProfile endpoint.UpdateProfile

func stringUpdate[T fmt.Stringer](u endpoint.Update[T]) endpoint.Update[string] {
	return endpoint.Update[string]{Kind: u.Kind, Value: u.Value.String()}
}

func (req updateProfile) Validate() error {
	if req.Password.Kind == endpoint.SetNull {
		return NewApiErr(http.StatusBadRequest, "password cannot be removed")
	}
	if req.Password.Kind == endpoint.Change {
		if _, err := domain.NewPassword(req.Password.Value.Reveal()); err != nil {
			return err
		}
	}
	return nil
}

func (req updateProfile) Process(ctx context.Context, conn query.DB, session auth.UserSession, st *AppState) (Reply[endpoint.UpdateProfileOk], error) {
	var reply Reply[endpoint.UpdateProfileOk]

	params := query.UpdateProfileParams{
		ID:           session.UserID,
		DisplayName:  stringUpdate(req.DisplayName),
		Email:        stringUpdate(req.Email),
		ProfileImage: endpoint.Update[string]{Kind: req.ProfileImage.Kind},
	}
	if req.Password.Kind == endpoint.Change {
		hash, err := crypto.HashPassword(req.Password.Value)
		if err != nil {
			return reply, err
		}
		params.PasswordHash = endpoint.ChangeTo(hash)
	}

	var saved *domain.ImageID
	if req.ProfileImage.Kind == endpoint.Change {
		id := domain.NewImageID()
		if err := st.images.SaveDataURL(id, req.ProfileImage.Value); err != nil {
			return reply, imageErr(err)
		}
		params.ProfileImage = endpoint.ChangeTo(id.String())
		saved = &id
	}

	err := query.UpdateProfile(ctx, conn, params)
	if err != nil && saved != nil {
		st.discardImage(ctx, *saved)
	}
	switch {
	case errors.Is(err, query.ErrConflict):
		return reply, NewApiErr(http.StatusConflict, "email already in use")
	case err != nil:
		return reply, fmt.Errorf("update profile: %w", err)
	}

	// The client replaces its cached avatar with whatever comes back, so the
	// current image is returned even when it did not change.
	user, err := query.GetUser(ctx, conn, session.UserID)
	if err != nil {
		return reply, fmt.Errorf("reload profile: %w", err)
	}
	return okReply(endpoint.UpdateProfileOk{ProfileImage: st.imageURL(user.ProfileImage)}), nil
}

// discardImage removes an image saved for a write that then failed.
func (st *AppState) discardImage(ctx context.Context, id domain.ImageID) {
	if err := st.images.Remove(id); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("image_id", id.String()).Msg("remove orphaned image")
	}
}

// imageErr reports problems with an uploaded image to the client.
func imageErr(err error) error {
	switch {
	case errors.Is(err, images.ErrTooLarge):
		return NewApiErr(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, images.ErrInvalidDataURL), errors.Is(err, images.ErrNotImage):
		return NewApiErr(http.StatusBadRequest, err.Error())
	}
	return err
}

type viewProfile endpoint.ViewProfile

func (req viewProfile) Process(ctx context.Context, conn query.DB, session auth.UserSession, st *AppState) (Reply[endpoint.ViewProfileOk], error) {
	var reply Reply[endpoint.ViewProfileOk]

	view := st.newPostView(conn, session.UserID)
	profile, err := view.profile(ctx, req.UserID)
	if errors.Is(err, query.ErrNotFound) {
		return reply, NewApiErr(http.StatusNotFound, "user not found")
	}
	if err != nil {
		return reply, err
	}
	posts, err := query.GetPublicPosts(ctx, conn, req.UserID)
	if err != nil {
		return reply, fmt.Errorf("public posts: %w", err)
	}
	public, err := view.posts(ctx, posts)
	if err != nil {
		return reply, err
	}
	return okReply(endpoint.ViewProfileOk{Profile: profile, Posts: public}), nil
}

type followUser endpoint.FollowUser

func (req followUser) Process(ctx context.Context, conn query.DB, session auth.UserSession, _ *AppState) (Reply[endpoint.FollowUserOk], error) {
	var reply Reply[endpoint.FollowUserOk]
	if req.Follows == session.UserID {
		return reply, NewApiErr(http.StatusBadRequest, "cannot follow self")
	}

	switch req.Action {
	case endpoint.Follow:
		err := query.Follow(ctx, conn, session.UserID, req.Follows)
		if errors.Is(err, query.ErrNotFound) {
			return reply, NewApiErr(http.StatusNotFound, "user not found")
		}
		if err != nil {
			return reply, fmt.Errorf("follow: %w", err)
		}
		return okReply(endpoint.FollowUserOk{IsFollowing: true}), nil
	case endpoint.Unfollow:
		if _, err := query.Unfollow(ctx, conn, session.UserID, req.Follows); err != nil {
			return reply, fmt.Errorf("unfollow: %w", err)
		}
		return okReply(endpoint.FollowUserOk{IsFollowing: false}), nil
	}
	return reply, NewApiErr(http.StatusBadRequest, "action must be Follow or Unfollow")
}

type isFollowing endpoint.IsFollowing

func (req isFollowing) Process(ctx context.Context, conn query.DB, session auth.UserSession, _ *AppState) (Reply[endpoint.IsFollowingOk], error) {
	following, err := query.IsFollowing(ctx, conn, session.UserID, req.Follows)
	if err != nil {
		return Reply[endpoint.IsFollowingOk]{}, fmt.Errorf("is following: %w", err)
	}
	return okReply(endpoint.IsFollowingOk{IsFollowing: following}), nil
}

// imageURL turns a stored image ID into a public URL.
func (st *AppState) imageURL(id *string) *string {
	if id == nil {
		return nil
	}
	url := st.images.URL(*id)
	return &url
}

func (st *AppState) publicProfile(u models.User, amFollowing bool) endpoint.PublicUserProfile {
	p := endpoint.PublicUserProfile{
		ID:           u.ID,
		Handle:       u.Handle,
		ProfileImage: st.imageURL(u.ProfileImage),
		CreatedAt:    u.CreatedAt,
		AmFollowing:  amFollowing,
	}
	if u.DisplayName != nil {
		if dn, err := domain.NewDisplayName(*u.DisplayName); err == nil {
			p.DisplayName = &dn
		}
	}
	return p
}
