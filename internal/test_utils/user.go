package test_utils

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/messbook/messbook/pkg/user"
)

// UserContext returns a context carrying an authenticated user with the given
// role, the way the middleware attaches one to incoming requests.
func UserContext(id int, role user.Role) context.Context {
	return user.WithUser(context.Background(), user.User{
		Id:       id,
		Uid:      fmt.Sprintf("test-uid-%d", id),
		Username: fmt.Sprintf("test_user_%d", id),
		Role:     role,
	})
}

// SeedUser inserts a user row and returns it with its assigned id.
func SeedUser(t *testing.T, db *sql.DB, username string, role user.Role) user.User {
	t.Helper()

	repo := user.NewRepo(db)
	u := user.User{
		Uid:         "uid-" + username,
		Username:    username,
		DisplayName: username,
		Role:        role,
	}
	id, err := repo.Create(context.Background(), u)
	if err != nil {
		t.Fatalf("Failed to seed user %s: %v", username, err)
	}
	u.Id = id
	return u
}
