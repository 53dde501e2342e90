package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/santz1994/ERP-sub002/internal/mes/entity"
)

type InventoryRepository struct {
	db *gorm.DB
}

func NewInventoryRepository(db *gorm.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

func (r *InventoryRepository) Get(ctx context.Context, productID, warehouseID string) (*entity.InventoryItem, error) {
	var item entity.InventoryItem
	if err := r.db.WithContext(ctx).
		Where("product_id = ? AND warehouse_id = ?", productID, warehouseID).
		First(&item).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &item, nil
}

func (r *InventoryRepository) ListByWarehouse(ctx context.Context, warehouseID string, page, pageSize int) ([]entity.InventoryItem, int64, error) {
	var items []entity.InventoryItem
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.InventoryItem{}).
		Where("warehouse_id = ?", warehouseID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	err := query.Order("product_code ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&items).Error
	return items, total, err
}

// Upsert seeds or replaces a position; used by masterdata seeding and tests.
func (r *InventoryRepository) Upsert(ctx context.Context, item *entity.InventoryItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}, {Name: "warehouse_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"on_hand_qty", "reserved_qty", "last_moved_at", "updated_at"}),
	}).Create(item).Error
}

// LockItem loads the (product, warehouse) row FOR UPDATE inside the caller's
// transaction, creating a zero row first if none exists so the lock has a
// target.
func LockInventoryItem(tx *gorm.DB, productID, productCode, warehouseID, uom string) (*entity.InventoryItem, error) {
	var item entity.InventoryItem
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ? AND warehouse_id = ?", productID, warehouseID).
		First(&item).Error
	if err == nil {
		return &item, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	item = entity.InventoryItem{
		ID:          uuid.New().String(),
		ProductID:   productID,
		ProductCode: productCode,
		WarehouseID: warehouseID,
		UOM:         uom,
	}
	if err := tx.Create(&item).Error; err != nil {
		return nil, err
	}
	// Re-read under lock; another tx may have raced the insert.
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ? AND warehouse_id = ?", productID, warehouseID).
		First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

// SaveItem writes a locked position back with a movement timestamp.
func SaveInventoryItem(tx *gorm.DB, item *entity.InventoryItem) error {
	now := time.Now()
	item.LastMovedAt = &now
	item.UpdatedAt = now
	return tx.Save(item).Error
}

// Journal appends a movement row inside the caller's transaction.
func JournalMovement(tx *gorm.DB, mv *entity.InventoryTransaction) error {
	if mv.ID == "" {
		mv.ID = uuid.New().String()
	}
	mv.CreatedAt = time.Now()
	return tx.Create(mv).Error
}

// Movements lists the journal for a product, newest first.
func (r *InventoryRepository) Movements(ctx context.Context, productID string, page, pageSize int) ([]entity.InventoryTransaction, int64, error) {
	var items []entity.InventoryTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.InventoryTransaction{}).
		Where("product_id = ?", productID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}
	err := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&items).Error
	return items, total, err
}
