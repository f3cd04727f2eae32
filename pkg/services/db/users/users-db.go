package users

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/omniaura/mapcache"
)

type User struct {
	ID        int64
	UID       string
	Email     sql.NullString
	CreatedAt sql.NullTime
}

// Insert inserts a new user into the database.
// It updates the User's ID with the ID from the database.
func (u *User) Insert(ctx context.Context, d *sql.DB) error {
	res, err := d.ExecContext(ctx,
		"INSERT INTO users (uid, email) VALUES (?, ?)",
		u.UID, u.Email)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = id
	return nil
}

var userCache, _ = mapcache.New[string, User](mapcache.WithTTL(time.Minute))

// GetByUID gets a user's id and email by their UID.
// If the user does not exist, it creates a new user.
func (u *User) GetByUID(ctx context.Context, d *sql.DB) (err error) {
	*u, err = userCache.Get(u.UID, func() (User, error) {
		usr := User{UID: u.UID, Email: u.Email}
		err := d.QueryRowContext(ctx,
			"SELECT id, email FROM users WHERE uid = ?", u.UID).
			Scan(&usr.ID, &usr.Email)
		if err == sql.ErrNoRows {
			if err := usr.Insert(ctx, d); err != nil {
				return usr, err
			}
			slog.Debug("created user", "uid", usr.UID, "id", usr.ID)
			return usr, nil
		} else if err != nil {
			return usr, err
		}
		slog.Debug("got user", "uid", usr.UID, "id", usr.ID, "email", usr.Email.String)
		return usr, nil
	})
	return err
}

// SetEmail backfills the email for users auto-created without one. Rows that
// already carry an email are left alone. Cached copies expire on their own
// within the minute.
func SetEmail(ctx context.Context, d *sql.DB, uid, email string) error {
	_, err := d.ExecContext(ctx,
		"UPDATE users SET email = ? WHERE uid = ? AND (email IS NULL OR email = '')",
		email, uid)
	return err
}

type UserDevice struct {
	ID        int64
	UserID    int64
	DeviceUID string
	Version   string
}

func (d *UserDevice) Exists(ctx context.Context, db *sql.DB) (bool, error) {
	err := db.QueryRowContext(ctx,
		"SELECT id FROM user_devices WHERE user_id = ? AND device_uid = ?",
		d.UserID, d.DeviceUID).Scan(&d.ID)
	if err == sql.ErrNoRows {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

func (d *UserDevice) Insert(ctx context.Context, db *sql.DB) error {
	res, err := db.ExecContext(ctx,
		"INSERT INTO user_devices (user_id, device_uid, version) VALUES (?, ?, ?)",
		d.UserID, d.DeviceUID, d.Version)
	if err != nil {
		return err
	}
	d.ID, err = res.LastInsertId()
	return err
}

type UserFeedback struct {
	ID       int64
	DeviceID int64
	Type     string // bug, feature-request, other
	Feedback string
}

func (f *UserFeedback) Insert(ctx context.Context, db *sql.DB) error {
	res, err := db.ExecContext(ctx,
		"INSERT INTO user_feedback (device_id, type, feedback) VALUES (?, ?, ?)",
		f.DeviceID, f.Type, f.Feedback)
	if err != nil {
		return err
	}
	f.ID, err = res.LastInsertId()
	return err
}
