package repository

import (
	"errors"

	"github.com/atiohaidar/test-case-management/internal/models"

	"gorm.io/gorm"
)

// ReferenceRepository 测试用例引用关系数据访问接口
type ReferenceRepository interface {
	Create(reference *models.TestCaseReference) error
	Delete(id string) error
	FindByID(id string) (*models.TestCaseReference, error)
	FindBySourceID(sourceID string) ([]models.TestCaseReference, error)
	FindByTargetID(targetID string, referenceTypes []string) ([]models.TestCaseReference, error)
	CountByTargetID(targetID string, referenceTypes []string) (int64, error)
	ManualReferenceExists(sourceID, targetID string) (bool, error)
}

// referenceRepo 实现
type referenceRepo struct {
	db *gorm.DB
}

// NewReferenceRepository 创建Repository实例
func NewReferenceRepository(db *gorm.DB) ReferenceRepository {
	return &referenceRepo{db: db}
}

func (r *referenceRepo) Create(reference *models.TestCaseReference) error {
	return r.db.Create(reference).Error
}

func (r *referenceRepo) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&models.TestCaseReference{}).Error
}

func (r *referenceRepo) FindByID(id string) (*models.TestCaseReference, error) {
	var reference models.TestCaseReference
	err := r.db.Where("id = ?", id).First(&reference).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reference, nil
}

// FindBySourceID 查询出边（该用例引用的其他用例），按创建时间倒序
func (r *referenceRepo) FindBySourceID(sourceID string) ([]models.TestCaseReference, error) {
	var references []models.TestCaseReference
	err := r.db.Where("source_id = ?", sourceID).
		Order("created_at DESC").
		Find(&references).Error
	return references, err
}

// FindByTargetID 查询入边（引用该用例的其他用例），按创建时间倒序
func (r *referenceRepo) FindByTargetID(targetID string, referenceTypes []string) ([]models.TestCaseReference, error) {
	var references []models.TestCaseReference
	query := r.db.Where("target_id = ?", targetID)
	if len(referenceTypes) > 0 {
		query = query.Where("reference_type IN ?", referenceTypes)
	}
	err := query.Order("created_at DESC").Find(&references).Error
	return references, err
}

func (r *referenceRepo) CountByTargetID(targetID string, referenceTypes []string) (int64, error) {
	var count int64
	query := r.db.Model(&models.TestCaseReference{}).Where("target_id = ?", targetID)
	if len(referenceTypes) > 0 {
		query = query.Where("reference_type IN ?", referenceTypes)
	}
	err := query.Count(&count).Error
	return count, err
}

// ManualReferenceExists 检查是否已存在同向的手动引用
//
// Check-then-insert, not a unique index. Matches the source schema; two
// concurrent duplicate requests can both pass the probe.
func (r *referenceRepo) ManualReferenceExists(sourceID, targetID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.TestCaseReference{}).
		Where("source_id = ? AND target_id = ? AND reference_type = ?",
			sourceID, targetID, models.ReferenceManual).
		Count(&count).Error
	return count > 0, err
}
