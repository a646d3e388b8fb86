package db

import "time"

type (
	// Account is the internal identity behind one or more platform user ids.
	// Authority 0 means globally banned, anything above it is a normal account.
	Account struct {
		ID        int64 `db:"id"`
		Authority int   `db:"authority"`
	}

	BlacklistEntry struct {
		ID             int64     `db:"id"`
		AccountID      int64     `db:"account_id"`
		ExternalUserID int64     `db:"external_user_id"`
		DisplayName    string    `db:"display_name"`
		CreatedAt      time.Time `db:"created_at"`
		OperatorID     int64     `db:"operator_id"`
	}

	KeywordViolation struct {
		ID              int64     `db:"id"`
		ExternalUserID  int64     `db:"external_user_id"`
		GuildID         int64     `db:"guild_id"`
		Count           int       `db:"count"`
		LastViolationAt time.Time `db:"last_violation_at"`
	}

	GuildMeta struct {
		ID      int64  `db:"id"`
		Title   string `db:"title"`
		Session string `db:"session"`
	}
)
