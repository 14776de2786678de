package settings

import (
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"csgo-case-tracker/internal/config"
	"csgo-case-tracker/internal/models"
	"csgo-case-tracker/internal/steam"
)

// Keys recognized in the settings table. Anything else is stored but
// ignored by the access layer.
const (
	KeyAPIKey       = "steam_api_key"
	KeyCurrency     = "currency"
	KeyRequestDelay = "request_delay_ms"
	KeyDelayJitter  = "request_delay_jitter_ms"
	KeyUserAgents   = "user_agent_pool"
)

// Store resolves runtime settings: env config supplies the defaults,
// rows in the settings table override them. It implements
// steam.SettingsProvider, so the access layer sees changes on its next
// operation without a restart.
type Store struct {
	db  *gorm.DB
	cfg *config.Config
	log *logrus.Logger
}

func NewStore(db *gorm.DB, cfg *config.Config, log *logrus.Logger) *Store {
	return &Store{db: db, cfg: cfg, log: log}
}

func (s *Store) Settings() steam.Settings {
	out := steam.Settings{
		APIKey:       s.cfg.SteamAPIKey,
		Currency:     s.cfg.Currency,
		RequestDelay: time.Duration(s.cfg.RequestDelayMs) * time.Millisecond,
		DelayJitter:  time.Duration(s.cfg.DelayJitterMs) * time.Millisecond,
		UserAgents:   s.cfg.UserAgents,
	}

	var rows []models.Setting
	if err := s.db.Find(&rows).Error; err != nil {
		s.log.WithField("error", err).Warn("settings lookup failed, using env defaults")
		return out
	}

	for _, row := range rows {
		switch row.Key {
		case KeyAPIKey:
			if row.Value != "" {
				out.APIKey = row.Value
			}
		case KeyCurrency:
			if row.Value != "" {
				out.Currency = row.Value
			}
		case KeyRequestDelay:
			if ms, err := strconv.Atoi(row.Value); err == nil && ms > 0 {
				out.RequestDelay = time.Duration(ms) * time.Millisecond
			}
		case KeyDelayJitter:
			if ms, err := strconv.Atoi(row.Value); err == nil && ms >= 0 {
				out.DelayJitter = time.Duration(ms) * time.Millisecond
			}
		case KeyUserAgents:
			var pool []string
			for _, ua := range strings.Split(row.Value, "\n") {
				if trimmed := strings.TrimSpace(ua); trimmed != "" {
					pool = append(pool, trimmed)
				}
			}
			if len(pool) > 0 {
				out.UserAgents = pool
			}
		}
	}
	return out
}

// Set upserts one override row.
func (s *Store) Set(key, value string) error {
	row := models.Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
}

// All returns the stored overrides (not the effective settings).
func (s *Store) All() (map[string]string, error) {
	var rows []models.Setting
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}
