package query

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"uchat/internal/domain"
	"uchat/internal/endpoint"
	"uchat/internal/models"
)

// GetPollResults counts votes per choice and reports the choice user made.
func GetPollResults(ctx context.Context, db DB, user domain.UserID, post domain.PostID) (models.PollResults, error) {
	res := models.PollResults{PostID: post}

	rows, err := db.Query(ctx,
		`SELECT c.id, count(v.choice_id)
		FROM poll_choices c
		LEFT JOIN poll_votes v ON v.choice_id = c.id
		WHERE c.post_id = $1
		GROUP BY c.id`, post)
	if err != nil {
		return res, err
	}
	res.Results, err = pgx.CollectRows(rows, pgx.RowToStructByPos[models.PollChoiceResult])
	if err != nil {
		return res, err
	}

	err = db.QueryRow(ctx,
		`SELECT choice_id FROM poll_votes WHERE user_id = $1 AND post_id = $2`, user, post).Scan(&res.Voted)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return res, err
	}
	return res, nil
}

// VoteOnPoll records the user's only vote on the poll. The choice must belong
// to the post.
func VoteOnPoll(ctx context.Context, db DB, user domain.UserID, post domain.PostID, choice domain.PollChoiceID) (endpoint.VoteCast, error) {
	var exists bool
	err := db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM poll_choices WHERE id = $1 AND post_id = $2)`, choice, post).Scan(&exists)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrNotFound
	}

	tag, err := db.Exec(ctx,
		`INSERT INTO poll_votes(user_id, post_id, choice_id) VALUES($1, $2, $3)
		ON CONFLICT (user_id, post_id) DO NOTHING`,
		user, post, choice)
	if err != nil {
		return "", mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return endpoint.VoteAlreadyVoted, nil
	}
	return endpoint.VoteYes, nil
}
