package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCurrentUser(t *testing.T) {
	// Setup
	repo := NewStubUserRepository()
	service := NewService(repo)

	// Given
	id, err := repo.Create(context.Background(), User{Uid: "uid-1", Username: "asha", DisplayName: "Asha", Role: RoleManager})
	require.NoError(t, err)
	stored, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	ctx := WithUser(context.Background(), stored)

	// When
	current, err := service.GetCurrentUser(ctx)

	// Then
	require.NoError(t, err)
	assert.Equal(t, stored, current)
}

func TestGetCurrentUser_NoActor(t *testing.T) {
	// Setup
	service := NewService(NewStubUserRepository())

	// When
	_, err := service.GetCurrentUser(context.Background())

	// Then
	assert.ErrorIs(t, err, ErrNoUser)
}

func TestGetUser(t *testing.T) {
	// Setup
	repo := NewStubUserRepository()
	service := NewService(repo)

	// Given
	id, err := repo.Create(context.Background(), User{Uid: "uid-3", Username: "meera"})
	require.NoError(t, err)

	// When
	found, err := service.GetUser(context.Background(), id)
	_, missErr := service.GetUser(context.Background(), id+1)

	// Then
	require.NoError(t, err)
	assert.Equal(t, "meera", found.Username)
	assert.ErrorIs(t, missErr, ErrUserNotFound)
}

func TestGetUserByUid(t *testing.T) {
	// Setup
	repo := NewStubUserRepository()
	service := NewService(repo)

	// Given
	_, err := repo.Create(context.Background(), User{Uid: "uid-7", Username: "ravi"})
	require.NoError(t, err)

	// When
	found, err := service.GetUserByUid(context.Background(), "uid-7")
	_, missErr := service.GetUserByUid(context.Background(), "uid-none")

	// Then
	require.NoError(t, err)
	assert.Equal(t, "ravi", found.Username)
	assert.Equal(t, RoleMember, found.Role)
	assert.ErrorIs(t, missErr, ErrUserNotFound)
}

func TestGetAllUsers(t *testing.T) {
	// Setup
	repo := NewStubUserRepository()
	service := NewService(repo)

	// Given
	for _, name := range []string{"asha", "ravi", "meera"} {
		_, err := repo.Create(context.Background(), User{Uid: "uid-" + name, Username: name})
		require.NoError(t, err)
	}

	// When
	users, err := service.GetAllUsers(context.Background())

	// Then
	require.NoError(t, err)
	assert.Len(t, users, 3)
}
