package query

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"uchat/internal/domain"
	"uchat/internal/models"
)

// React stores the user's reaction, replacing any earlier one.
func React(ctx context.Context, db DB, r models.Reaction) error {
	_, err := db.Exec(ctx,
		`INSERT INTO reactions(user_id, post_id, like_status, reaction)
		VALUES($1, $2, $3, $4)
		ON CONFLICT (user_id, post_id)
		DO UPDATE SET like_status = EXCLUDED.like_status, reaction = EXCLUDED.reaction`,
		r.UserID, r.PostID, r.LikeStatus, r.Reaction)
	return mapErr(err)
}

// GetReaction returns nil when the user has not reacted to the post.
func GetReaction(ctx context.Context, db DB, post domain.PostID, user domain.UserID) (*models.Reaction, error) {
	rows, err := db.Query(ctx,
		`SELECT user_id, post_id, created_at, like_status, reaction
		FROM reactions WHERE post_id = $1 AND user_id = $2`, post, user)
	if err != nil {
		return nil, err
	}
	r, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[models.Reaction])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const aggregateSQL = `SELECT
	count(*) FILTER (WHERE like_status = 1),
	count(*) FILTER (WHERE like_status = -1),
	(SELECT count(*) FROM boosts WHERE post_id = $1)
FROM reactions WHERE post_id = $1`

func AggregateReactions(ctx context.Context, db DB, post domain.PostID) (models.AggregatePostInfo, error) {
	info := models.AggregatePostInfo{PostID: post}
	err := db.QueryRow(ctx, aggregateSQL, post).Scan(&info.Likes, &info.Dislikes, &info.Boosts)
	return info, err
}

// Boost records the boost, moving boosted_at forward when it already exists.
func Boost(ctx context.Context, db DB, user domain.UserID, post domain.PostID, when time.Time) error {
	_, err := db.Exec(ctx,
		`INSERT INTO boosts(user_id, post_id, boosted_at) VALUES($1, $2, $3)
		ON CONFLICT (user_id, post_id) DO UPDATE SET boosted_at = EXCLUDED.boosted_at`,
		user, post, when)
	return mapErr(err)
}

func GetBoost(ctx context.Context, db DB, user domain.UserID, post domain.PostID) (bool, error) {
	var ok bool
	err := db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM boosts WHERE user_id = $1 AND post_id = $2)`, user, post).Scan(&ok)
	return ok, err
}

func DeleteBoost(ctx context.Context, db DB, user domain.UserID, post domain.PostID) (DeleteStatus, error) {
	tag, err := db.Exec(ctx, `DELETE FROM boosts WHERE user_id = $1 AND post_id = $2`, user, post)
	if err != nil {
		return NotFound, err
	}
	return deleteStatus(tag), nil
}

// Bookmark is idempotent.
func Bookmark(ctx context.Context, db DB, user domain.UserID, post domain.PostID) error {
	_, err := db.Exec(ctx,
		`INSERT INTO bookmarks(user_id, post_id) VALUES($1, $2) ON CONFLICT (user_id, post_id) DO NOTHING`,
		user, post)
	return mapErr(err)
}

func GetBookmark(ctx context.Context, db DB, user domain.UserID, post domain.PostID) (bool, error) {
	var ok bool
	err := db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM bookmarks WHERE user_id = $1 AND post_id = $2)`, user, post).Scan(&ok)
	return ok, err
}

func DeleteBookmark(ctx context.Context, db DB, user domain.UserID, post domain.PostID) (DeleteStatus, error) {
	tag, err := db.Exec(ctx, `DELETE FROM bookmarks WHERE user_id = $1 AND post_id = $2`, user, post)
	if err != nil {
		return NotFound, err
	}
	return deleteStatus(tag), nil
}

// ViewerState is what a single user sees about a post besides its content.
type ViewerState struct {
	Aggregate  models.AggregatePostInfo
	LikeStatus int16
	Bookmarked bool
	Boosted    bool
}

// GetViewerStates loads aggregates and the user's reaction, bookmark and
// boost for each post in a single round trip.
func GetViewerStates(ctx context.Context, db DB, user domain.UserID, posts []domain.PostID) ([]ViewerState, error) {
	if len(posts) == 0 {
		return nil, nil
	}
	batch := &pgx.Batch{}
	for _, p := range posts {
		batch.Queue(aggregateSQL, p)
		batch.Queue(`SELECT COALESCE((SELECT like_status FROM reactions WHERE post_id = $1 AND user_id = $2), 0::smallint)`, p, user)
		batch.Queue(`SELECT EXISTS(SELECT 1 FROM bookmarks WHERE user_id = $2 AND post_id = $1)`, p, user)
		batch.Queue(`SELECT EXISTS(SELECT 1 FROM boosts WHERE user_id = $2 AND post_id = $1)`, p, user)
	}

	br := db.SendBatch(ctx, batch)
	defer br.Close()

	out := make([]ViewerState, len(posts))
	for i, p := range posts {
		s := &out[i]
		s.Aggregate.PostID = p
		if err := br.QueryRow().Scan(&s.Aggregate.Likes, &s.Aggregate.Dislikes, &s.Aggregate.Boosts); err != nil {
			return nil, err
		}
		if err := br.QueryRow().Scan(&s.LikeStatus); err != nil {
			return nil, err
		}
		if err := br.QueryRow().Scan(&s.Bookmarked); err != nil {
			return nil, err
		}
		if err := br.QueryRow().Scan(&s.Boosted); err != nil {
			return nil, err
		}
	}
	return out, nil
}
