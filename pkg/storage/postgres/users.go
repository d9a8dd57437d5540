package postgres

import (
	"context"

	"github.com/pefandor/pravda-market/pkg/core"
)

const userColumns = `id, telegram_id, username, first_name, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*core.User, error) {
	var u core.User
	err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertUserByTelegramID inserts the user on first contact and refreshes
// profile fields afterwards. Empty strings never overwrite a known profile,
// so deposit-created placeholder rows keep whatever the login later fills in.
func (q *queries) UpsertUserByTelegramID(ctx context.Context, telegramID int64, username, firstName string) (*core.User, error) {
	row := q.ex.QueryRowContext(ctx, `
		INSERT INTO users (telegram_id, username, first_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (telegram_id) DO UPDATE SET
			username = CASE WHEN EXCLUDED.username <> '' THEN EXCLUDED.username ELSE users.username END,
			first_name = CASE WHEN EXCLUDED.first_name <> '' THEN EXCLUDED.first_name ELSE users.first_name END,
			updated_at = now()
		RETURNING `+userColumns,
		telegramID, username, firstName)

	u, err := scanUser(row)
	if err != nil {
		return nil, mapErr("upsert user", err)
	}
	return u, nil
}

func (q *queries) UserByID(ctx context.Context, id int64) (*core.User, error) {
	row := q.ex.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, mapErr("get user", err)
	}
	return u, nil
}

func (q *queries) UserByTelegramID(ctx context.Context, telegramID int64) (*core.User, error) {
	row := q.ex.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, telegramID)
	u, err := scanUser(row)
	if err != nil {
		return nil, mapErr("get user by telegram id", err)
	}
	return u, nil
}
