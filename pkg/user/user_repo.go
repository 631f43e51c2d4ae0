package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

var ErrUserNotFound = errors.New("user not found")

// Repo reads the member directory. Member management lives outside this
// service; Create exists for bootstrap and test fixtures only.
type Repo interface {
	Create(ctx context.Context, u User) (int, error)
	Get(ctx context.Context, id int) (User, error)
	GetByUid(ctx context.Context, uid string) (User, error)
	GetAll(ctx context.Context) ([]User, error)
}

type RepoImpl struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *RepoImpl {
	return &RepoImpl{db: db}
}

func (r *RepoImpl) Create(ctx context.Context, u User) (int, error) {
	role := u.Role
	if role == "" {
		role = RoleMember
	}
	// The id is assigned inside the statement so the same SQL works on both
	// Postgres and the SQLite test database.
	query := `INSERT INTO users (id, uid, username, display_name, role, created_at)
			  VALUES ((SELECT COALESCE(MAX(id), 0) + 1 FROM users), $1, $2, $3, $4, $5)
			  RETURNING id`
	var id int
	err := r.db.QueryRowContext(ctx, query,
		u.Uid,
		u.Username,
		u.DisplayName,
		string(role),
		time.Now().UnixMilli(),
	).Scan(&id)
	if err != nil {
		err = fmt.Errorf("could not create user: %w", err)
		log.Error(err)
		return 0, err
	}
	return id, nil
}

func (r *RepoImpl) Get(ctx context.Context, id int) (User, error) {
	query := `SELECT id, uid, username, display_name, role, created_at FROM users WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *RepoImpl) GetByUid(ctx context.Context, uid string) (User, error) {
	query := `SELECT id, uid, username, display_name, role, created_at FROM users WHERE uid = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, uid))
}

func (r *RepoImpl) GetAll(ctx context.Context) ([]User, error) {
	query := `SELECT id, uid, username, display_name, role, created_at FROM users ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		err = fmt.Errorf("could not query users: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	users := make([]User, 0, 16)
	for rows.Next() {
		var u User
		var role string
		var createdAt int64
		if err := rows.Scan(&u.Id, &u.Uid, &u.Username, &u.DisplayName, &role, &createdAt); err != nil {
			err = fmt.Errorf("could not scan user: %w", err)
			log.Error(err)
			return nil, err
		}
		u.Role = Role(role)
		u.CreatedAt = time.UnixMilli(createdAt)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		err = fmt.Errorf("error iterating over users: %w", err)
		log.Error(err)
		return nil, err
	}
	return users, nil
}

func (r *RepoImpl) scanOne(row *sql.Row) (User, error) {
	var u User
	var role string
	var createdAt int64
	err := row.Scan(&u.Id, &u.Uid, &u.Username, &u.DisplayName, &role, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	} else if err != nil {
		err = fmt.Errorf("could not get user: %w", err)
		log.Error(err)
		return User{}, err
	}
	u.Role = Role(role)
	u.CreatedAt = time.UnixMilli(createdAt)
	return u, nil
}
