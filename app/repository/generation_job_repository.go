package repository

import (
	"github.com/sonerady/dires-server-sub002/app/models"
	"gorm.io/gorm"
)

// generationJobRepository implements the GenerationJobRepository interface
type generationJobRepository struct {
	db *gorm.DB
}

// NewGenerationJobRepository creates a new generation job repository instance
func NewGenerationJobRepository(db *gorm.DB) GenerationJobRepository {
	return &generationJobRepository{db: db}
}

// Create creates a new generation job audit row
func (r *generationJobRepository) Create(job *models.GenerationJob) error {
	return r.CreateTx(r.db, job)
}

// CreateTx is Create inside a caller-owned transaction.
func (r *generationJobRepository) CreateTx(tx *gorm.DB, job *models.GenerationJob) error {
	return tx.Create(job).Error
}

// Update persists the current job state
func (r *generationJobRepository) Update(job *models.GenerationJob) error {
	return r.db.Save(job).Error
}

// GetByID retrieves a job by its ID
func (r *generationJobRepository) GetByID(id string) (*models.GenerationJob, error) {
	var job models.GenerationJob
	err := r.db.Where("id = ?", id).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListByAccount returns the account's jobs, newest first
func (r *generationJobRepository) ListByAccount(accountID string, offset, limit int) ([]models.GenerationJob, error) {
	var jobs []models.GenerationJob
	err := r.db.Where("account_id = ?", accountID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// CountByStatus returns the number of jobs in a given status
func (r *generationJobRepository) CountByStatus(status string) (int64, error) {
	var count int64
	err := r.db.Model(&models.GenerationJob{}).Where("status = ?", status).Count(&count).Error
	return count, err
}
