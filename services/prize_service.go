package services

import (
	"errors"
	"fmt"
	"time"

	"arcade-analytics-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PrizeService is the poll/claim surface over the prize ledger. Claims are
// client-retry tolerant: the true owner re-claiming an already-claimed prize
// gets success, not an error.
type PrizeService struct {
	DB  *gorm.DB
	Log *zap.Logger
}

func NewPrizeService(db *gorm.DB, log *zap.Logger) *PrizeService {
	return &PrizeService{DB: db, Log: log}
}

// ListPending returns the user's unclaimed prizes, newest first.
func (s *PrizeService) ListPending(userID string) ([]models.Prize, error) {
	var prizes []models.Prize
	err := s.DB.
		Where("user_id = ? AND claimed_at IS NULL", userID).
		Order("awarded_at DESC").
		Find(&prizes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending prizes: %w", err)
	}
	return prizes, nil
}

// Claim sets claimed_at iff it is null and the caller owns the prize. The
// conditional UPDATE is the whole race story: whoever lands it first wins,
// everyone else is classified after the fact.
func (s *PrizeService) Claim(prizeID, userID string, now time.Time) (*models.Prize, error) {
	res := s.DB.Model(&models.Prize{}).
		Where("id = ? AND user_id = ? AND claimed_at IS NULL", prizeID, userID).
		Update("claimed_at", now.UTC())
	if res.Error != nil {
		return nil, fmt.Errorf("failed to claim prize: %w", res.Error)
	}

	var prize models.Prize
	if err := s.DB.First(&prize, "id = ?", prizeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPrizeNotFound
		}
		return nil, fmt.Errorf("failed to load prize: %w", err)
	}

	switch err := classifyClaim(res.RowsAffected, &prize, userID); {
	case err == nil:
		return &prize, nil
	case errors.Is(err, ErrAlreadyClaimed):
		return &prize, err
	default:
		return nil, err
	}
}

// classifyClaim turns the conditional-update outcome into the caller's
// verdict. rowsAffected==1 means this call performed the claim; otherwise the
// prize exists but was not claimable by this call — wrong owner, or already
// claimed, where the owner retrying a finished claim is success-shaped.
func classifyClaim(rowsAffected int64, prize *models.Prize, userID string) error {
	if rowsAffected == 1 {
		return nil
	}
	if prize.UserID != userID {
		return ErrForbidden
	}
	return ErrAlreadyClaimed
}

// --- HTTP endpoints ---

// GetPendingPrizes serves the poll half of poll/claim.
func (s *PrizeService) GetPendingPrizes(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	prizes, err := s.ListPending(userID)
	if err != nil {
		s.Log.Error("failed to list pending prizes", zap.String("user_id", userID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch prizes"})
	}
	return c.JSON(fiber.Map{"prizes": prizes, "count": len(prizes)})
}

// ClaimPrize claims one prize for the authenticated user. A repeat claim by
// the owner reports success with already_claimed=true.
func (s *PrizeService) ClaimPrize(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	prizeID := c.Params("id")
	if _, err := uuid.Parse(prizeID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid prize ID"})
	}

	prize, err := s.Claim(prizeID, userID, time.Now())
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"message": "prize claimed", "prize": prize, "already_claimed": false})
	case errors.Is(err, ErrAlreadyClaimed):
		return c.JSON(fiber.Map{"message": "prize already claimed by you", "prize": prize, "already_claimed": true})
	case errors.Is(err, ErrPrizeNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "prize not found"})
	case errors.Is(err, ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "prize belongs to another user"})
	default:
		s.Log.Error("claim failed", zap.String("prize_id", prizeID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to claim prize"})
	}
}
