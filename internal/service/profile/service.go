// Package profile reads player profiles. Registration and login live in an
// external identity service; rows here are a read model keyed by player id.
package profile

import (
	"context"
	"errors"
	"strings"

	"pokertable-service/internal/model"

	"github.com/thoas/go-funk"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultNickname is shown for players without a stored profile.
const DefaultNickname = "player"

type Service struct {
	db *gorm.DB
}

type Profile struct {
	PlayerID int64  `json:"playerId,string"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar,omitempty"`
}

type UpsertRequest struct {
	Nickname *string
	Avatar   *string
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) GetProfile(ctx context.Context, playerID int64) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, playerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// Upsert stores the display fields for a player.
func (s *Service) Upsert(ctx context.Context, playerID int64, req UpsertRequest) (*model.User, error) {
	user := model.User{ID: playerID}
	updates := []string{"updated_at"}
	if req.Nickname != nil {
		user.Nickname = strings.TrimSpace(*req.Nickname)
		updates = append(updates, "nickname")
	}
	if req.Avatar != nil {
		user.Avatar = strings.TrimSpace(*req.Avatar)
		updates = append(updates, "avatar")
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(&user).Error; err != nil {
		return nil, err
	}
	return s.GetProfile(ctx, playerID)
}

// Lookup resolves display names for a set of players. Unknown players get a
// placeholder nickname.
func (s *Service) Lookup(ctx context.Context, playerIDs []int64) (map[int64]Profile, error) {
	ids := funk.UniqInt64(playerIDs)
	out := make(map[int64]Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var users []model.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = Profile{PlayerID: u.ID, Nickname: u.Nickname, Avatar: u.Avatar}
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			out[id] = Profile{PlayerID: id, Nickname: DefaultNickname}
		}
	}
	return out, nil
}
