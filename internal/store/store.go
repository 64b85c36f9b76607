// Package store is the relational persistence layer: users, redemption
// codes, usage logs, and history records. Raw SQL over database/sql --
// no ORM.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"imagegateway/internal/models"
)

type Store struct {
	db *sql.DB
}

func New(connectionString string) (*Store, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = sql.ErrNoRows

// ErrDuplicate is returned when a unique-index violation occurs.
var ErrDuplicate = fmt.Errorf("duplicate key")

func isUniqueViolation(err error) bool {
	// lib/pq surfaces unique_violation as error code 23505 in its Error.Code.
	if err == nil {
		return false
	}
	return containsUniqueViolationCode(err.Error())
}

func containsUniqueViolationCode(msg string) bool {
	return len(msg) > 0 && (contains(msg, "23505") || contains(msg, "duplicate key value"))
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// --- Users ---------------------------------------------------------------

func (s *Store) CreateUser(username, passwordDigest string, role models.Role, quota int64) (*models.User, error) {
	now := time.Now()
	var u models.User
	err := s.db.QueryRow(`
		INSERT INTO users (username, password_digest, role, quota, used, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $5)
		RETURNING id, username, password_digest, role, quota, used, created_at, updated_at
	`, username, passwordDigest, string(role), quota, now).Scan(
		&u.ID, &u.Username, &u.PasswordDigest, &u.Role, &u.Quota, &u.Used, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &u, nil
}

func (s *Store) GetUserByUsername(username string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(`
		SELECT id, username, password_digest, role, quota, used, created_at, updated_at
		FROM users WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.PasswordDigest, &u.Role, &u.Quota, &u.Used, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUserByID(id int64) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(`
		SELECT id, username, password_digest, role, quota, used, created_at, updated_at
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Username, &u.PasswordDigest, &u.Role, &u.Quota, &u.Used, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) ListUsers() ([]models.User, error) {
	rows, err := s.db.Query(`
		SELECT id, username, password_digest, role, quota, used, created_at, updated_at
		FROM users ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordDigest, &u.Role, &u.Quota, &u.Used, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, nil
}

// UpdateUser performs a partial update of quota and/or password digest.
func (s *Store) UpdateUser(id int64, quota *int64, passwordDigest *string) error {
	if quota == nil && passwordDigest == nil {
		_, err := s.db.Exec(`UPDATE users SET updated_at = $1 WHERE id = $2`, time.Now(), id)
		return err
	}
	if quota != nil && passwordDigest != nil {
		_, err := s.db.Exec(`UPDATE users SET quota = $1, password_digest = $2, updated_at = $3 WHERE id = $4`,
			*quota, *passwordDigest, time.Now(), id)
		return err
	}
	if quota != nil {
		_, err := s.db.Exec(`UPDATE users SET quota = $1, updated_at = $2 WHERE id = $3`, *quota, time.Now(), id)
		return err
	}
	_, err := s.db.Exec(`UPDATE users SET password_digest = $1, updated_at = $2 WHERE id = $3`, *passwordDigest, time.Now(), id)
	return err
}

// DeleteUser removes a user and cascades to their history rows.
func (s *Store) DeleteUser(id int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM history_records WHERE user_id = $1`, id); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to cascade history delete: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return err
	}
	if n == 0 {
		tx.Rollback()
		return ErrNotFound
	}
	return tx.Commit()
}

// ConsumeQuota atomically checks and increments used in one conditional
// UPDATE; ok is false when remaining < count and nothing was changed.
func (s *Store) ConsumeQuota(userID int64, count int64) (ok bool, remaining int64, err error) {
	var newUsed, quota int64
	err = s.db.QueryRow(`
		UPDATE users
		SET used = used + $1, updated_at = $2
		WHERE id = $3 AND quota - used >= $1
		RETURNING used, quota
	`, count, time.Now(), userID).Scan(&newUsed, &quota)
	if err == sql.ErrNoRows {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("failed to consume quota: %w", err)
	}
	return true, quota - newUsed, nil
}

// --- Redemption codes ------------------------------------------------------

func (s *Store) CreateRedeemCode(code string, quota int64) (*models.RedeemCode, error) {
	var rc models.RedeemCode
	now := time.Now()
	err := s.db.QueryRow(`
		INSERT INTO redeem_codes (code, quota, used, created_at)
		VALUES ($1, $2, false, $3)
		RETURNING id, code, quota, used, created_at
	`, code, quota, now).Scan(&rc.ID, &rc.Code, &rc.Quota, &rc.Used, &rc.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create redeem code: %w", err)
	}
	return &rc, nil
}

func (s *Store) ListRedeemCodes() ([]models.RedeemCode, error) {
	rows, err := s.db.Query(`
		SELECT id, code, quota, used, used_by, used_at, created_at
		FROM redeem_codes ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list codes: %w", err)
	}
	defer rows.Close()

	var codes []models.RedeemCode
	for rows.Next() {
		var rc models.RedeemCode
		var usedBy sql.NullString
		var usedAt sql.NullTime
		if err := rows.Scan(&rc.ID, &rc.Code, &rc.Quota, &rc.Used, &usedBy, &usedAt, &rc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan code: %w", err)
		}
		if usedBy.Valid {
			rc.UsedBy = &usedBy.String
		}
		if usedAt.Valid {
			rc.UsedAt = &usedAt.Time
		}
		codes = append(codes, rc)
	}
	return codes, nil
}

// RedeemCode atomically marks a code used and credits the redeeming user's
// quota in a single transaction. ok is false when the code is unknown or
// already used.
func (s *Store) RedeemCode(code string, username string, userID int64) (ok bool, grantedQuota int64, err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var codeID int64
	var quota int64
	now := time.Now()
	err = tx.QueryRow(`
		UPDATE redeem_codes
		SET used = true, used_by = $1, used_at = $2
		WHERE code = $3 AND used = false
		RETURNING id, quota
	`, username, now, code).Scan(&codeID, &quota)
	if err == sql.ErrNoRows {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("failed to claim redeem code: %w", err)
	}

	if _, err := tx.Exec(`UPDATE users SET quota = quota + $1, updated_at = $2 WHERE id = $3`, quota, now, userID); err != nil {
		return false, 0, fmt.Errorf("failed to credit quota: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("failed to commit redemption: %w", err)
	}
	return true, quota, nil
}

// --- Usage logs --------------------------------------------------------

func (s *Store) LogUsage(userID int64, action string) error {
	_, err := s.db.Exec(`
		INSERT INTO usage_logs (user_id, action, created_at) VALUES ($1, $2, $3)
	`, userID, action, time.Now())
	return err
}

// --- History -------------------------------------------------------------

func (s *Store) CreateHistory(userID int64, prompt, imageURL string, options, refImages []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO history_records (user_id, prompt, image_url, options, ref_images, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, userID, prompt, imageURL, string(options), string(refImages), time.Now())
	return err
}

func (s *Store) ListHistory(userID int64, limit, offset int) ([]models.HistoryRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, prompt, image_url, options, ref_images, created_at
		FROM history_records
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var out []models.HistoryRecord
	for rows.Next() {
		var h models.HistoryRecord
		var options, refImages string
		if err := rows.Scan(&h.ID, &h.UserID, &h.Prompt, &h.ImageURL, &options, &refImages, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		h.Options = []byte(options)
		h.RefImages = []byte(refImages)
		out = append(out, h)
	}
	return out, nil
}

func (s *Store) DeleteHistory(id, userID int64) error {
	res, err := s.db.Exec(`DELETE FROM history_records WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete history record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
