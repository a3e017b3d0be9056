package repository

import (
	"errors"

	"github.com/atiohaidar/test-case-management/internal/models"

	"gorm.io/gorm"
)

// TestCaseRepository 测试用例数据访问接口
type TestCaseRepository interface {
	Create(testCase *models.TestCase) error
	Update(id string, fields map[string]interface{}) error
	Delete(id string) error
	FindByID(id string) (*models.TestCase, error)
	FindByIDs(ids []string) ([]models.TestCase, error)
	FindAll() ([]models.TestCase, error)
	Exists(id string) (bool, error)
}

// testCaseRepo 实现
type testCaseRepo struct {
	db *gorm.DB
}

// NewTestCaseRepository 创建Repository实例
func NewTestCaseRepository(db *gorm.DB) TestCaseRepository {
	return &testCaseRepo{db: db}
}

func (r *testCaseRepo) Create(testCase *models.TestCase) error {
	return r.db.Create(testCase).Error
}

func (r *testCaseRepo) Update(id string, fields map[string]interface{}) error {
	return r.db.Model(&models.TestCase{}).Where("id = ?", id).Updates(fields).Error
}

func (r *testCaseRepo) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&models.TestCase{}).Error
}

func (r *testCaseRepo) FindByID(id string) (*models.TestCase, error) {
	var testCase models.TestCase
	err := r.db.Where("id = ?", id).First(&testCase).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &testCase, nil
}

func (r *testCaseRepo) FindByIDs(ids []string) ([]models.TestCase, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var testCases []models.TestCase
	err := r.db.Where("id IN ?", ids).Find(&testCases).Error
	return testCases, err
}

func (r *testCaseRepo) FindAll() ([]models.TestCase, error) {
	var testCases []models.TestCase
	err := r.db.Order("created_at DESC").Find(&testCases).Error
	return testCases, err
}

func (r *testCaseRepo) Exists(id string) (bool, error) {
	var count int64
	err := r.db.Model(&models.TestCase{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}
