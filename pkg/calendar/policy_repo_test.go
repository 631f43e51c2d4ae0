package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/messbook/messbook/internal/test_utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyRepoImpl_Load_DefaultWhenUnset(t *testing.T) {
	// Setup
	repo := NewPolicyRepo(test_utils.SetupTestDB(t))

	// When
	policy, err := repo.Load(context.Background())

	// Then
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), policy)
}

func TestPolicyRepoImpl_SaveAndLoad(t *testing.T) {
	// Setup
	repo := NewPolicyRepo(test_utils.SetupTestDB(t))
	ctx := context.Background()
	policy := Policy{
		FridayOff:            true,
		OddSaturdayOff:       true,
		GovernmentHolidayOff: true,
		ReligiousHolidayOff:  true,
		UpdatedBy:            2,
		UpdatedAt:            time.Now().Truncate(time.Millisecond),
	}

	// When
	require.NoError(t, repo.Save(ctx, policy))
	stored, err := repo.Load(ctx)

	// Then
	require.NoError(t, err)
	assert.Equal(t, policy, stored)

	// When the single row is saved again
	policy.OddSaturdayOff = false
	policy.EvenSaturdayOff = true
	policy.UpdatedAt = policy.UpdatedAt.Add(time.Minute)
	require.NoError(t, repo.Save(ctx, policy))
	stored, err = repo.Load(ctx)

	// Then the previous values are replaced
	require.NoError(t, err)
	assert.Equal(t, policy, stored)
}
