package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/santz1994/ERP-sub002/internal/mes/entity"
)

type ReworkRepository struct {
	db *gorm.DB
}

func NewReworkRepository(db *gorm.DB) *ReworkRepository {
	return &ReworkRepository{db: db}
}

func (r *ReworkRepository) FindByID(ctx context.Context, id string) (*entity.ReworkRequest, error) {
	var rw entity.ReworkRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rw).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &rw, nil
}

// LockRework loads the rework row FOR UPDATE inside the caller's transaction.
func LockRework(tx *gorm.DB, id string) (*entity.ReworkRequest, error) {
	var rw entity.ReworkRequest
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&rw).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &rw, nil
}

func (r *ReworkRepository) ListByWO(ctx context.Context, woID string) ([]entity.ReworkRequest, error) {
	var items []entity.ReworkRequest
	err := r.db.WithContext(ctx).
		Where("wo_id = ?", woID).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}

// OpenReworkForWO returns open rework requests inside the caller's
// transaction; they block the WO from transferring.
func OpenReworkForWO(tx *gorm.DB, woID string) ([]entity.ReworkRequest, error) {
	var items []entity.ReworkRequest
	err := tx.
		Where("wo_id = ? AND status NOT IN ?", woID,
			[]entity.ReworkStatus{entity.ReworkStatusClosed, entity.ReworkStatusRejected}).
		Find(&items).Error
	return items, err
}
