package localstore

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/xelth-com/modspace/internal/database"
	"github.com/xelth-com/modspace/internal/models"
)

// GormStore keeps the storage in a relational table through gorm
type GormStore struct {
	db *database.DB
}

// NewGormStore migrates the storage table and wraps db
func NewGormStore(db *database.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&models.StorageItem{}); err != nil {
		return nil, fmt.Errorf("migrate storage table: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Get(key string) (string, bool, error) {
	var item models.StorageItem
	err := s.db.Where("storage_key = ?", key).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return item.Value, true, nil
}

func (s *GormStore) Set(key, value string) error {
	item := models.StorageItem{Key: key, Value: value}
	if err := s.db.Save(&item).Error; err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *GormStore) Remove(key string) error {
	if err := s.db.Where("storage_key = ?", key).Delete(&models.StorageItem{}).Error; err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (s *GormStore) Keys() ([]string, error) {
	var keys []string
	if err := s.db.Model(&models.StorageItem{}).Order("storage_key").Pluck("storage_key", &keys).Error; err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

func (s *GormStore) Close() error {
	return s.db.Close()
}
