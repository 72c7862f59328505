package query

import (
	"context"

	"github.com/jackc/pgx/v5"

	"uchat/internal/domain"
	"uchat/internal/models"
)

// feedLimit caps every post listing.
const feedLimit = 30

const postColumns = `p.id, p.user_id, p.content, p.time_posted, p.direct_message_to, p.reply_to, p.created_at`

// NewPost inserts the post and its poll choices, if any, in one transaction.
func NewPost(ctx context.Context, db DB, post models.Post, choices []models.PollChoice) (domain.PostID, error) {
	err := pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO posts(id, user_id, content, time_posted, direct_message_to, reply_to)
			VALUES($1, $2, $3, $4, $5, $6)`,
			post.ID, post.UserID, post.Content, post.TimePosted, post.DirectMessageTo, post.ReplyTo)
		if err != nil {
			return err
		}
		if len(choices) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for _, c := range choices {
			batch.Queue(`INSERT INTO poll_choices(id, choice, post_id) VALUES($1, $2, $3)`, c.ID, c.Choice, post.ID)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return domain.PostID{}, mapErr(err)
	}
	return post.ID, nil
}

func collectPosts(ctx context.Context, db DB, sql string, args ...any) ([]models.Post, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[models.Post])
}

func GetPost(ctx context.Context, db DB, id domain.PostID) (models.Post, error) {
	rows, err := db.Query(ctx, `SELECT `+postColumns+` FROM posts p WHERE p.id = $1`, id)
	if err != nil {
		return models.Post{}, err
	}
	p, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[models.Post])
	return p, mapErr(err)
}

// GetTrending lists the newest public posts that are already visible.
func GetTrending(ctx context.Context, db DB) ([]models.Post, error) {
	return collectPosts(ctx, db,
		`SELECT `+postColumns+` FROM posts p
		WHERE p.time_posted < now() AND p.direct_message_to IS NULL
		ORDER BY p.time_posted DESC
		LIMIT $1`, feedLimit)
}

// GetHomePosts lists posts written or boosted by the users that user follows.
func GetHomePosts(ctx context.Context, db DB, user domain.UserID) ([]models.Post, error) {
	return collectPosts(ctx, db,
		`SELECT `+postColumns+` FROM posts p
		WHERE p.time_posted < now()
		  AND p.direct_message_to IS NULL
		  AND (
		    p.user_id IN (SELECT follows FROM followers WHERE user_id = $1)
		    OR p.id IN (
		      SELECT b.post_id FROM boosts b
		      JOIN followers f ON f.follows = b.user_id
		      WHERE f.user_id = $1
		    )
		  )
		ORDER BY p.time_posted DESC
		LIMIT $2`, user, feedLimit)
}

func GetLikedPosts(ctx context.Context, db DB, user domain.UserID) ([]models.Post, error) {
	return collectPosts(ctx, db,
		`SELECT `+postColumns+` FROM posts p
		JOIN reactions r ON r.post_id = p.id
		WHERE r.user_id = $1 AND r.like_status = 1
		ORDER BY r.created_at DESC
		LIMIT $2`, user, feedLimit)
}

func GetBookmarkedPosts(ctx context.Context, db DB, user domain.UserID) ([]models.Post, error) {
	return collectPosts(ctx, db,
		`SELECT `+postColumns+` FROM posts p
		JOIN bookmarks b ON b.post_id = p.id
		WHERE b.user_id = $1
		ORDER BY b.created_at DESC
		LIMIT $2`, user, feedLimit)
}

// GetPublicPosts lists what user has posted publicly, newest first.
func GetPublicPosts(ctx context.Context, db DB, user domain.UserID) ([]models.Post, error) {
	return collectPosts(ctx, db,
		`SELECT `+postColumns+` FROM posts p
		WHERE p.user_id = $1 AND p.time_posted < now() AND p.direct_message_to IS NULL
		ORDER BY p.time_posted DESC
		LIMIT $2`, user, feedLimit)
}
