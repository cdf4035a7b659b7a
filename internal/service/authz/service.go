package authz

import (
	"context"

	"pokertable-service/internal/model"
	appErr "pokertable-service/pkg/errors"

	"gorm.io/gorm"
)

// Service answers the membership and ownership questions the table rules
// depend on.
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// WithTx binds the checks to a running transaction.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{db: tx}
}

func (s *Service) IsClubMember(ctx context.Context, clubID, playerID int64) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&model.ClubMember{}).
		Where("club_id = ? AND user_id = ?", clubID, playerID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CanJoin applies the table kind's admission rule.
func (s *Service) CanJoin(ctx context.Context, table *model.Table, playerID int64) error {
	switch table.Kind {
	case model.TableKindClub:
		if table.ClubID == nil {
			return appErr.ErrNotClubMember
		}
		ok, err := s.IsClubMember(ctx, *table.ClubID, playerID)
		if err != nil {
			return err
		}
		if !ok {
			return appErr.ErrNotClubMember
		}
	case model.TableKindTournament:
		return appErr.ErrDirectJoinTourney
	}
	return nil
}

func (s *Service) RequireCreator(table *model.Table, playerID int64) error {
	if table.CreatorID != playerID {
		return appErr.ErrNotCreator
	}
	return nil
}

func (s *Service) AddClubMember(ctx context.Context, clubID, playerID int64) error {
	member := model.ClubMember{ClubID: clubID, UserID: playerID}
	return s.db.WithContext(ctx).
		Where(model.ClubMember{ClubID: clubID, UserID: playerID}).
		FirstOrCreate(&member).Error
}
