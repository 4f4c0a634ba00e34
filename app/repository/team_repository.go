package repository

import (
	"errors"

	"github.com/sonerady/dires-server-sub002/app/models"
	"gorm.io/gorm"
)

// teamRepository implements the TeamRepository interface
type teamRepository struct {
	db *gorm.DB
}

// NewTeamRepository creates a new team repository instance
func NewTeamRepository(db *gorm.DB) TeamRepository {
	return &teamRepository{db: db}
}

// Create creates a new team
func (r *teamRepository) Create(team *models.Team) error {
	return r.db.Create(team).Error
}

// GetByID retrieves a team by its ID
func (r *teamRepository) GetByID(id uint) (*models.Team, error) {
	var team models.Team
	err := r.db.First(&team, id).Error
	if err != nil {
		return nil, err
	}
	return &team, nil
}

// GetByOwnerID retrieves the team owned by an account
func (r *teamRepository) GetByOwnerID(ownerID string) (*models.Team, error) {
	var team models.Team
	err := r.db.Where("owner_id = ?", ownerID).First(&team).Error
	if err != nil {
		return nil, err
	}
	return &team, nil
}

// GetMembershipByAccountID resolves an account's active membership and its
// team. Returns gorm.ErrRecordNotFound when the account is not on a team.
func (r *teamRepository) GetMembershipByAccountID(accountID string) (*models.TeamMember, *models.Team, error) {
	var member models.TeamMember
	if err := r.db.Where("account_id = ?", accountID).First(&member).Error; err != nil {
		return nil, nil, err
	}
	var team models.Team
	if err := r.db.First(&team, member.TeamID).Error; err != nil {
		return nil, nil, err
	}
	if !team.IsActive {
		return nil, nil, gorm.ErrRecordNotFound
	}
	return &member, &team, nil
}

// AddMember adds an account to a team, enforcing the capacity limit.
func (r *teamRepository) AddMember(member *models.TeamMember) error {
	team, err := r.GetByID(member.TeamID)
	if err != nil {
		return err
	}
	count, err := r.CountMembers(member.TeamID)
	if err != nil {
		return err
	}
	if team.MaxMembers > 0 && count >= int64(team.MaxMembers) {
		return errors.New("team is at capacity")
	}
	return r.db.Create(member).Error
}

// RemoveMember removes an account from a team
func (r *teamRepository) RemoveMember(teamID uint, accountID string) error {
	return r.db.Where("team_id = ? AND account_id = ?", teamID, accountID).
		Delete(&models.TeamMember{}).Error
}

// UpdateCapacity writes the capacity derived from the owner's plan tier.
func (r *teamRepository) UpdateCapacity(teamID uint, maxMembers int, isActive bool) error {
	return r.db.Model(&models.Team{}).
		Where("id = ?", teamID).
		Updates(map[string]interface{}{
			"max_members": maxMembers,
			"is_active":   isActive,
		}).Error
}

// CountMembers returns the number of members on a team
func (r *teamRepository) CountMembers(teamID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.TeamMember{}).Where("team_id = ?", teamID).Count(&count).Error
	return count, err
}
