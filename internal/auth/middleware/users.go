package auth

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/coachdiary/gradebook/internal/db"
)

const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

const bcryptCost = 12

var (
	ErrBadCredentials = errors.New("invalid credentials")
	ErrUserExists     = errors.New("user exists")
	ErrNoUser         = errors.New("user not found")
)

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

func ValidRole(role string) bool {
	return role == RoleTeacher || role == RoleStudent || role == RoleAdmin
}

// UserStore keeps login accounts in the users table.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(sqlDB *sql.DB) *UserStore { return &UserStore{db: sqlDB} }

func (s *UserStore) Create(ctx context.Context, username, password, role string) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return User{}, errors.New("username and password are required")
	}
	if !ValidRole(role) {
		return User{}, errors.Errorf("unknown role %q", role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return User{}, err
	}
	u := User{Username: username, PasswordHash: string(hash), Role: role, CreatedAt: time.Now().UTC().Truncate(time.Second)}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO users (username, password_hash, role, created_at) VALUES ($1,$2,$3,$4) RETURNING id`,
		u.Username, u.PasswordHash, u.Role, u.CreatedAt.Unix()).Scan(&u.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return User{}, errors.Wrapf(ErrUserExists, "username %q", username)
		}
		return User{}, err
	}
	return u, nil
}

func (s *UserStore) scan(row *sql.Row) (User, error) {
	var (
		u       User
		created int64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNoUser
		}
		return User{}, err
	}
	u.CreatedAt = time.Unix(created, 0).UTC()
	return u, nil
}

func (s *UserStore) FindByUsername(ctx context.Context, username string) (User, error) {
	return s.scan(s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, role, created_at FROM users WHERE username=$1`, username))
}

func (s *UserStore) Get(ctx context.Context, id int64) (User, error) {
	return s.scan(s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, role, created_at FROM users WHERE id=$1`, id))
}

// Authenticate checks the password; unknown users and wrong passwords are
// indistinguishable to the caller.
func (s *UserStore) Authenticate(ctx context.Context, username, password string) (User, error) {
	u, err := s.FindByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrNoUser) {
		return User{}, ErrBadCredentials
	}
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, ErrBadCredentials
	}
	return u, nil
}

func (s *UserStore) ChangePassword(ctx context.Context, id int64, oldPassword, newPassword string) error {
	u, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(oldPassword)) != nil {
		return ErrBadCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `UPDATE users SET password_hash=$1 WHERE id=$2`, string(hash), id)
	return err
}
