package store

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"db-monitor/pkg/model"
)

// GormStore keeps the registry in the monitor's own MySQL database.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetInstance(id uint) (model.Instance, bool, error) {
	var inst model.Instance
	err := s.db.First(&inst, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Instance{}, false, nil
	}
	if err != nil {
		return model.Instance{}, false, errors.Wrapf(err, "get instance %d", id)
	}
	return inst, true, nil
}

func (s *GormStore) ListInstances() ([]model.Instance, error) {
	var out []model.Instance
	if err := s.db.Order("id").Find(&out).Error; err != nil {
		return nil, errors.Wrap(err, "list instances")
	}
	return out, nil
}

func (s *GormStore) ListActiveInstances() ([]model.Instance, error) {
	var out []model.Instance
	if err := s.db.Where("status = ?", model.StatusEnabled).Order("id").Find(&out).Error; err != nil {
		return nil, errors.Wrap(err, "list active instances")
	}
	return out, nil
}

func (s *GormStore) CreateInstance(inst model.Instance) (model.Instance, error) {
	inst.ID = 0
	inst.Status = model.StatusEnabled
	if err := s.db.Create(&inst).Error; err != nil {
		return inst, errors.Wrap(err, "create instance")
	}
	return inst, nil
}

func (s *GormStore) UpdateInstance(inst model.Instance) (model.Instance, error) {
	existing, ok, err := s.GetInstance(inst.ID)
	if err != nil {
		return inst, err
	}
	if !ok {
		return inst, ErrNotFound
	}
	inst.CreatedAt = existing.CreatedAt
	inst.UpdatedAt = time.Now()
	if err := s.db.Save(&inst).Error; err != nil {
		return inst, errors.Wrapf(err, "update instance %d", inst.ID)
	}
	return inst, nil
}

func (s *GormStore) DeleteInstance(id uint) (bool, error) {
	res := s.db.Delete(&model.Instance{}, id)
	if res.Error != nil {
		return false, errors.Wrapf(res.Error, "delete instance %d", id)
	}
	return res.RowsAffected > 0, nil
}
