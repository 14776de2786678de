package models

import (
	"time"

	"gorm.io/gorm"
)

// Account is a tracked Steam account. SteamID holds the canonical
// legacy STEAM_0:Y:Z form; the 64-bit id is derived on demand.
type Account struct {
	ID              uint           `json:"id" gorm:"primaryKey"`
	SteamID         string         `json:"steam_id" gorm:"unique;not null"`
	DisplayName     string         `json:"display_name"`
	ProfileURL      string         `json:"profile_url"`
	AvatarURL       string         `json:"avatar_url"`
	IsPublic        bool           `json:"is_public" gorm:"default:true"`
	LastRefreshedAt *time.Time     `json:"last_refreshed_at"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `json:"-" gorm:"index"`
}

// CaseItem is one container stack in an account's inventory. The
// natural key (account, app, asset) backs the refresh upsert.
type CaseItem struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	AccountID      uint      `json:"account_id" gorm:"not null;uniqueIndex:idx_case_natural"`
	Account        Account   `json:"-" gorm:"foreignKey:AccountID"`
	AppID          string    `json:"app_id" gorm:"not null;uniqueIndex:idx_case_natural"`
	AssetID        string    `json:"asset_id" gorm:"not null;uniqueIndex:idx_case_natural"`
	ClassID        string    `json:"class_id"`
	InstanceID     string    `json:"instance_id"`
	Name           string    `json:"name" gorm:"not null"`
	MarketHashName string    `json:"market_hash_name" gorm:"index"`
	IconURL        string    `json:"icon_url"`
	Quantity       int       `json:"quantity" gorm:"default:1"`
	UnitPrice      *float64  `json:"unit_price"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ValueSnapshot records the total inventory value of an account after
// a refresh, giving the dashboard a history series.
type ValueSnapshot struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	AccountID  uint      `json:"account_id" gorm:"not null;index"`
	Account    Account   `json:"-" gorm:"foreignKey:AccountID"`
	Currency   string    `json:"currency" gorm:"default:'USD'"`
	TotalValue float64   `json:"total_value"`
	CaseCount  int       `json:"case_count"`
	TakenAt    time.Time `json:"taken_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Setting is one runtime-tunable key/value pair overriding the env
// defaults.
type Setting struct {
	Key       string    `json:"key" gorm:"primaryKey"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
