package meal_status

import (
	"context"
	"testing"
	"time"

	"github.com/messbook/messbook/internal/test_utils"
	"github.com/messbook/messbook/pkg/meal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepoImpl_Find_AbsentTripleIsNil(t *testing.T) {
	// Setup
	repo := NewRepo(test_utils.SetupTestDB(t))

	// When
	record, err := repo.Find(context.Background(), 5, meal.NewDate(2025, 9, 1), meal.Lunch)

	// Then
	require.NoError(t, err)
	assert.Nil(t, record)
}

func TestRepoImpl_Upsert_InsertsAndOverwrites(t *testing.T) {
	// Setup
	repo := NewRepo(test_utils.SetupTestDB(t))
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)
	record := ManualRecord{
		UserID:    5,
		Date:      meal.NewDate(2025, 9, 1),
		Category:  meal.Dinner,
		IsOn:      true,
		Count:     2,
		Note:      "guests",
		UpdatedBy: 5,
		UpdatedAt: now,
	}

	// When inserting and reading back
	require.NoError(t, repo.Upsert(ctx, record))
	stored, err := repo.Find(ctx, 5, record.Date, meal.Dinner)

	// Then
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, record, *stored)

	// When the same triple is written again
	record.IsOn = false
	record.Count = 0
	record.Note = ""
	record.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, repo.Upsert(ctx, record))
	stored, err = repo.Find(ctx, 5, record.Date, meal.Dinner)

	// Then the row is replaced, not duplicated
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.False(t, stored.IsOn)
	assert.Equal(t, 0, stored.Count)
	assert.Equal(t, now.Add(time.Minute), stored.UpdatedAt)
}

func TestRepoImpl_Delete(t *testing.T) {
	// Setup
	repo := NewRepo(test_utils.SetupTestDB(t))
	ctx := context.Background()
	record := ManualRecord{
		UserID:    7,
		Date:      meal.NewDate(2025, 9, 2),
		Category:  meal.Lunch,
		IsOn:      true,
		Count:     1,
		UpdatedBy: 7,
		UpdatedAt: time.Now().Truncate(time.Millisecond),
	}
	require.NoError(t, repo.Upsert(ctx, record))

	// When
	err := repo.Delete(ctx, 7, record.Date, meal.Lunch)
	retryErr := repo.Delete(ctx, 7, record.Date, meal.Lunch)

	// Then
	require.NoError(t, err)
	assert.ErrorIs(t, retryErr, ErrRecordNotFound)
	stored, findErr := repo.Find(ctx, 7, record.Date, meal.Lunch)
	require.NoError(t, findErr)
	assert.Nil(t, stored)
}
