package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"uchat/internal/domain"
	"uchat/internal/endpoint"
	"uchat/internal/logging"
	"uchat/internal/models"
	"uchat/internal/query"
)

// postView converts stored posts into what one viewer sees. Author profiles
// are cached for the lifetime of the view.
type postView struct {
	st     *AppState
	conn   query.DB
	viewer domain.UserID
	users  map[domain.UserID]endpoint.PublicUserProfile
}

func (st *AppState) newPostView(conn query.DB, viewer domain.UserID) *postView {
	return &postView{
		st:     st,
		conn:   conn,
		viewer: viewer,
		users:  make(map[domain.UserID]endpoint.PublicUserProfile),
	}
}

func (v *postView) profile(ctx context.Context, id domain.UserID) (endpoint.PublicUserProfile, error) {
	if p, ok := v.users[id]; ok {
		return p, nil
	}
	u, err := query.GetUser(ctx, v.conn, id)
	if err != nil {
		return endpoint.PublicUserProfile{}, err
	}
	following := false
	if id != v.viewer {
		following, err = query.IsFollowing(ctx, v.conn, v.viewer, id)
		if err != nil {
			return endpoint.PublicUserProfile{}, err
		}
	}
	p := v.st.publicProfile(u, following)
	v.users[id] = p
	return p, nil
}

// posts converts a listing. A post that fails to convert is logged and left
// out rather than failing the whole listing.
func (v *postView) posts(ctx context.Context, posts []models.Post) ([]endpoint.PublicPost, error) {
	ids := make([]domain.PostID, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	states, err := query.GetViewerStates(ctx, v.conn, v.viewer, ids)
	if err != nil {
		return nil, fmt.Errorf("viewer states: %w", err)
	}

	out := make([]endpoint.PublicPost, 0, len(posts))
	for i, p := range posts {
		pp, err := v.post(ctx, p, states[i])
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("post_id", p.ID.String()).Msg("skipping post")
			continue
		}
		out = append(out, pp)
	}
	return out, nil
}

func (v *postView) post(ctx context.Context, p models.Post, state query.ViewerState) (endpoint.PublicPost, error) {
	content, err := v.content(ctx, p)
	if err != nil {
		return endpoint.PublicPost{}, err
	}
	author, err := v.profile(ctx, p.UserID)
	if err != nil {
		return endpoint.PublicPost{}, fmt.Errorf("author: %w", err)
	}
	replyTo, err := v.replyTo(ctx, p.ReplyTo)
	if err != nil {
		return endpoint.PublicPost{}, err
	}
	return endpoint.PublicPost{
		ID:         p.ID,
		ByUser:     author,
		Content:    content,
		TimePosted: p.TimePosted,
		ReplyTo:    replyTo,
		LikeStatus: endpoint.LikeStatusFromInt16(state.LikeStatus),
		Bookmarked: state.Bookmarked,
		Boosted:    state.Boosted,
		Likes:      state.Aggregate.Likes,
		Dislikes:   state.Aggregate.Dislikes,
		Boosts:     state.Aggregate.Boosts,
	}, nil
}

// content decodes the stored body, swaps stored image IDs for URLs and fills
// in live poll results.
func (v *postView) content(ctx context.Context, p models.Post) (endpoint.Content, error) {
	var c endpoint.Content
	if err := json.Unmarshal(p.Content, &c); err != nil {
		return c, fmt.Errorf("decode content: %w", err)
	}

	switch {
	case c.Image != nil && c.Image.Kind.ID != nil:
		c.Image.Kind = endpoint.ImageFromURL(v.st.images.URL(c.Image.Kind.ID.String()))
	case c.Poll != nil:
		res, err := query.GetPollResults(ctx, v.conn, v.viewer, p.ID)
		if err != nil {
			return c, fmt.Errorf("poll results: %w", err)
		}
		votes := make(map[domain.PollChoiceID]int64, len(res.Results))
		for _, r := range res.Results {
			votes[r.ChoiceID] = r.NumVotes
		}
		for i := range c.Poll.Choices {
			c.Poll.Choices[i].NumVotes = votes[c.Poll.Choices[i].ID]
		}
		c.Poll.Voted = res.Voted
	}
	return c, nil
}

// replyTo is nil when the post is not a reply or its parent is gone.
func (v *postView) replyTo(ctx context.Context, parentID *domain.PostID) (*endpoint.ReplyTo, error) {
	if parentID == nil {
		return nil, nil
	}
	parent, err := query.GetPost(ctx, v.conn, *parentID)
	if errors.Is(err, query.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reply target: %w", err)
	}
	author, err := v.profile(ctx, parent.UserID)
	if err != nil {
		return nil, fmt.Errorf("reply author: %w", err)
	}
	return &endpoint.ReplyTo{Handle: author.Handle, UserID: author.ID, PostID: parent.ID}, nil
}
