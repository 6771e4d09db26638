package models

import "time"

// StorageItem is one durable local-storage key
type StorageItem struct {
	Key       string    `gorm:"column:storage_key;primaryKey;type:varchar(255)" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name
func (StorageItem) TableName() string {
	return "local_storage_items"
}
