package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"uchat/internal/domain"
	"uchat/internal/endpoint"
	"uchat/internal/models"
)

const userColumns = `id, email, email_confirmed, password_hash, display_name, handle, created_at, profile_image`

func NewUser(ctx context.Context, db DB, passwordHash string, handle domain.Username) (domain.UserID, error) {
	id := domain.NewUserID()
	_, err := db.Exec(ctx,
		`INSERT INTO users(id, password_hash, handle) VALUES($1, $2, $3)`,
		id, passwordHash, handle.String())
	if err != nil {
		return domain.UserID{}, mapErr(err)
	}
	return id, nil
}

func GetPasswordHash(ctx context.Context, db DB, handle domain.Username) (string, error) {
	var hash string
	err := db.QueryRow(ctx, `SELECT password_hash FROM users WHERE handle = $1`, handle.String()).Scan(&hash)
	return hash, mapErr(err)
}

func getUserBy(ctx context.Context, db DB, where string, arg any) (models.User, error) {
	rows, err := db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE `+where+` = $1`, arg)
	if err != nil {
		return models.User{}, err
	}
	u, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[models.User])
	return u, mapErr(err)
}

func GetUser(ctx context.Context, db DB, id domain.UserID) (models.User, error) {
	return getUserBy(ctx, db, "id", id)
}

// FindUser looks a user up by handle.
func FindUser(ctx context.Context, db DB, handle domain.Username) (models.User, error) {
	return getUserBy(ctx, db, "handle", handle.String())
}

type UpdateProfileParams struct {
	ID           domain.UserID
	DisplayName  endpoint.Update[string]
	Email        endpoint.Update[string]
	PasswordHash endpoint.Update[string]
	// ProfileImage holds an image ID.
	ProfileImage endpoint.Update[string]
}

// UpdateProfile writes the changed columns. NoChange fields are left alone.
func UpdateProfile(ctx context.Context, db DB, p UpdateProfileParams) error {
	var sets []string
	args := []any{p.ID}
	add := func(col string, u endpoint.Update[string]) {
		switch u.Kind {
		case endpoint.Change:
			args = append(args, u.Value)
			sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
		case endpoint.SetNull:
			sets = append(sets, col+" = NULL")
		}
	}
	add("display_name", p.DisplayName)
	add("email", p.Email)
	if p.PasswordHash.Kind == endpoint.Change {
		add("password_hash", p.PasswordHash)
	}
	add("profile_image", p.ProfileImage)
	if len(sets) == 0 {
		return nil
	}

	tag, err := db.Exec(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = $1`, args...)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Follow is idempotent.
func Follow(ctx context.Context, db DB, user, follows domain.UserID) error {
	_, err := db.Exec(ctx,
		`INSERT INTO followers(user_id, follows) VALUES($1, $2) ON CONFLICT (user_id, follows) DO NOTHING`,
		user, follows)
	return mapErr(err)
}

func Unfollow(ctx context.Context, db DB, user, follows domain.UserID) (DeleteStatus, error) {
	tag, err := db.Exec(ctx, `DELETE FROM followers WHERE user_id = $1 AND follows = $2`, user, follows)
	if err != nil {
		return NotFound, err
	}
	return deleteStatus(tag), nil
}

func IsFollowing(ctx context.Context, db DB, user, follows domain.UserID) (bool, error) {
	var ok bool
	err := db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM followers WHERE user_id = $1 AND follows = $2)`,
		user, follows).Scan(&ok)
	return ok, err
}
