package services

import (
	"testing"
	"time"

	"arcade-analytics-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyClaim_FirstClaimSucceeds(t *testing.T) {
	prize := &models.Prize{ID: "p1", UserID: "user-1"}
	assert.NoError(t, classifyClaim(1, prize, "user-1"))
}

func TestClassifyClaim_OwnerRetryReportsAlreadyClaimed(t *testing.T) {
	// The owner re-claiming a finished claim is success-shaped: the caller
	// returns the prize with already_claimed, never a hard error.
	now := time.Now()
	prize := &models.Prize{ID: "p1", UserID: "user-1", ClaimedAt: &now}

	err := classifyClaim(0, prize, "user-1")
	require.ErrorIs(t, err, ErrAlreadyClaimed)
}

func TestClassifyClaim_OtherUserForbidden(t *testing.T) {
	now := time.Now()
	claimed := &models.Prize{ID: "p1", UserID: "user-1", ClaimedAt: &now}
	require.ErrorIs(t, classifyClaim(0, claimed, "user-2"), ErrForbidden)

	// Wrong owner is forbidden even while the prize is still unclaimed —
	// never leaked as already_claimed.
	unclaimed := &models.Prize{ID: "p2", UserID: "user-1"}
	require.ErrorIs(t, classifyClaim(0, unclaimed, "user-2"), ErrForbidden)
}
