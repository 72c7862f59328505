package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"uchat/internal/auth"
	"uchat/internal/domain"
	"uchat/internal/endpoint"
	"uchat/internal/logging"
	"uchat/internal/metrics"
	"uchat/internal/models"
	"uchat/internal/query"
)

var errPostNotFound = NewApiErr(http.StatusNotFound, "post not found")

const minPollChoices = 2

type newPost endpoint.NewPost

// Validate rebuilds each text field so that fields missing from the request
// are caught as well as malformed ones.
func (req newPost) Validate() error {
	c := req.Content
	switch {
	case c.Chat != nil:
		if c.Chat.Headline != nil {
			if _, err := domain.NewHeadline(c.Chat.Headline.String()); err != nil {
				return err
			}
		}
		_, err := domain.NewMessage(c.Chat.Message.String())
		return err
	case c.Image != nil:
		if c.Image.Kind.DataURL == nil {
			return NewApiErr(http.StatusBadRequest, "image must be uploaded as a data url")
		}
		if c.Image.Caption != nil {
			if _, err := domain.NewCaption(c.Image.Caption.String()); err != nil {
				return err
			}
		}
		return nil
	case c.Poll != nil:
		if _, err := domain.NewPollHeadline(c.Poll.Headline.String()); err != nil {
			return err
		}
		if len(c.Poll.Choices) < minPollChoices {
			return NewApiErr(http.StatusBadRequest, "poll needs at least two choices")
		}
		for _, choice := range c.Poll.Choices {
			if _, err := domain.NewPollChoiceDescription(choice.Description.String()); err != nil {
				return err
			}
		}
		return nil
	}
	return NewApiErr(http.StatusBadRequest, "post content is required")
}

func (req newPost) Process(ctx context.Context, conn query.DB, session auth.UserSession, st *AppState) (Reply[endpoint.NewPostOk], error) {
	var reply Reply[endpoint.NewPostOk]

	opts := req.Options
	if opts.ReplyTo != nil {
		if _, err := query.GetPost(ctx, conn, *opts.ReplyTo); err != nil {
			if errors.Is(err, query.ErrNotFound) {
				return reply, NewApiErr(http.StatusNotFound, "reply target not found")
			}
			return reply, fmt.Errorf("reply target: %w", err)
		}
	}
	if opts.DirectMessageTo != nil {
		if _, err := query.GetUser(ctx, conn, *opts.DirectMessageTo); err != nil {
			if errors.Is(err, query.ErrNotFound) {
				return reply, NewApiErr(http.StatusNotFound, "recipient not found")
			}
			return reply, fmt.Errorf("recipient: %w", err)
		}
	}

	content := req.Content
	var choices []models.PollChoice
	post := models.Post{
		ID:              domain.NewPostID(),
		UserID:          session.UserID,
		TimePosted:      opts.TimePosted,
		DirectMessageTo: opts.DirectMessageTo,
		ReplyTo:         opts.ReplyTo,
	}
	if post.TimePosted.IsZero() {
		post.TimePosted = time.Now().UTC()
	}

	var saved *domain.ImageID
	switch {
	case content.Image != nil:
		id := domain.NewImageID()
		if err := st.images.SaveDataURL(id, *content.Image.Kind.DataURL); err != nil {
			return reply, imageErr(err)
		}
		saved = &id
		img := *content.Image
		img.Kind = endpoint.ImageFromID(id)
		content.Image = &img
	case content.Poll != nil:
		poll := endpoint.Poll{Headline: content.Poll.Headline}
		for _, c := range content.Poll.Choices {
			id := domain.NewPollChoiceID()
			poll.Choices = append(poll.Choices, endpoint.PollChoice{ID: id, Description: c.Description})
			choices = append(choices, models.PollChoice{ID: id, Choice: c.Description.String(), PostID: post.ID})
		}
		content.Poll = &poll
	}

	fail := func(err error) (Reply[endpoint.NewPostOk], error) {
		if saved != nil {
			st.discardImage(ctx, *saved)
		}
		return reply, err
	}

	raw, err := json.Marshal(content)
	if err != nil {
		return fail(fmt.Errorf("encode content: %w", err))
	}
	post.Content = raw

	id, err := query.NewPost(ctx, conn, post, choices)
	if err != nil {
		return fail(fmt.Errorf("new post: %w", err))
	}
	metrics.PostsCreatedTotal.WithLabelValues(content.Kind()).Inc()
	logging.Ctx(ctx).Debug().Str("post_id", id.String()).Str("kind", content.Kind()).Msg("post created")
	return okReply(endpoint.NewPostOk{PostID: id}), nil
}

type bookmark endpoint.Bookmark

func (req bookmark) Validate() error {
	if req.Action == "" {
		return NewApiErr(http.StatusBadRequest, "action must be Add or Remove")
	}
	return nil
}

func (req bookmark) Process(ctx context.Context, conn query.DB, session auth.UserSession, _ *AppState) (Reply[endpoint.BookmarkOk], error) {
	var err error
	switch req.Action {
	case endpoint.BookmarkAdd:
		err = query.Bookmark(ctx, conn, session.UserID, req.PostID)
	case endpoint.BookmarkRemove:
		_, err = query.DeleteBookmark(ctx, conn, session.UserID, req.PostID)
	}
	if errors.Is(err, query.ErrNotFound) {
		return Reply[endpoint.BookmarkOk]{}, errPostNotFound
	}
	if err != nil {
		return Reply[endpoint.BookmarkOk]{}, fmt.Errorf("bookmark: %w", err)
	}
	return okReply(endpoint.BookmarkOk{Status: req.Action}), nil
}

type boost endpoint.Boost

func (req boost) Validate() error {
	if req.Action == "" {
		return NewApiErr(http.StatusBadRequest, "action must be Add or Remove")
	}
	return nil
}

func (req boost) Process(ctx context.Context, conn query.DB, session auth.UserSession, _ *AppState) (Reply[endpoint.BoostOk], error) {
	var err error
	switch req.Action {
	case endpoint.BoostAdd:
		err = query.Boost(ctx, conn, session.UserID, req.PostID, time.Now().UTC())
	case endpoint.BoostRemove:
		_, err = query.DeleteBoost(ctx, conn, session.UserID, req.PostID)
	}
	if errors.Is(err, query.ErrNotFound) {
		return Reply[endpoint.BoostOk]{}, errPostNotFound
	}
	if err != nil {
		return Reply[endpoint.BoostOk]{}, fmt.Errorf("boost: %w", err)
	}
	return okReply(endpoint.BoostOk{Status: req.Action}), nil
}

type react endpoint.React

func (req react) Process(ctx context.Context, conn query.DB, session auth.UserSession, _ *AppState) (Reply[endpoint.ReactOk], error) {
	var reply Reply[endpoint.ReactOk]
	status := req.LikeStatus
	if status == "" {
		status = endpoint.NoReaction
	}

	err := query.React(ctx, conn, models.Reaction{
		UserID:     session.UserID,
		PostID:     req.PostID,
		LikeStatus: status.Int16(),
	})
	if errors.Is(err, query.ErrNotFound) {
		return reply, errPostNotFound
	}
	if err != nil {
		return reply, fmt.Errorf("react: %w", err)
	}

	agg, err := query.AggregateReactions(ctx, conn, req.PostID)
	if err != nil {
		return reply, fmt.Errorf("aggregate reactions: %w", err)
	}
	return okReply(endpoint.ReactOk{
		LikeStatus: status,
		Likes:      agg.Likes,
		Dislikes:   agg.Dislikes,
	}), nil
}

type vote endpoint.Vote

func (req vote) Process(ctx context.Context, conn query.DB, session auth.UserSession, _ *AppState) (Reply[endpoint.VoteOk], error) {
	cast, err := query.VoteOnPoll(ctx, conn, session.UserID, req.PostID, req.ChoiceID)
	if errors.Is(err, query.ErrNotFound) {
		return Reply[endpoint.VoteOk]{}, NewApiErr(http.StatusNotFound, "poll choice not found")
	}
	if err != nil {
		return Reply[endpoint.VoteOk]{}, fmt.Errorf("vote: %w", err)
	}
	return okReply(endpoint.VoteOk{Cast: cast}), nil
}

// feed loads a post listing for the session user and converts it.
func feed(ctx context.Context, conn query.DB, session auth.UserSession, st *AppState,
	load func(context.Context, query.DB, domain.UserID) ([]models.Post, error),
) ([]endpoint.PublicPost, error) {
	posts, err := load(ctx, conn, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("load posts: %w", err)
	}
	return st.newPostView(conn, session.UserID).posts(ctx, posts)
}

type trendingPosts endpoint.TrendingPosts

func (trendingPosts) Process(ctx context.Context, conn query.DB, session auth.UserSession, st *AppState) (Reply[endpoint.TrendingPostsOk], error) {
	posts, err := feed(ctx, conn, session, st, func(ctx context.Context, db query.DB, _ domain.UserID) ([]models.Post, error) {
		return query.GetTrending(ctx, db)
	})
	if err != nil {
		return Reply[endpoint.TrendingPostsOk]{}, err
	}
	return okReply(endpoint.TrendingPostsOk{Posts: posts}), nil
}

type homePosts endpoint.HomePosts

func (homePosts) Process(ctx context.Context, conn query.DB, session auth.UserSession, st *AppState) (Reply[endpoint.HomePostsOk], error) {
	posts, err := feed(ctx, conn, session, st, query.GetHomePosts)
	if err != nil {
		return Reply[endpoint.HomePostsOk]{}, err
	}
	return okReply(endpoint.HomePostsOk{Posts: posts}), nil
}

type likedPosts endpoint.LikedPosts

func (likedPosts) Process(ctx context.Context, conn query.DB, session auth.UserSession, st *AppState) (Reply[endpoint.LikedPostsOk], error) {
	posts, err := feed(ctx, conn, session, st, query.GetLikedPosts)
	if err != nil {
		return Reply[endpoint.LikedPostsOk]{}, err
	}
	return okReply(endpoint.LikedPostsOk{Posts: posts}), nil
}

type bookmarkedPosts endpoint.BookmarkedPosts

func (bookmarkedPosts) Process(ctx context.Context, conn query.DB, session auth.UserSession, st *AppState) (Reply[endpoint.BookmarkedPostsOk], error) {
	posts, err := feed(ctx, conn, session, st, query.GetBookmarkedPosts)
	if err != nil {
		return Reply[endpoint.BookmarkedPostsOk]{}, err
	}
	return okReply(endpoint.BookmarkedPostsOk{Posts: posts}), nil
}
