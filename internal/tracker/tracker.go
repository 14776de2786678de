package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"csgo-case-tracker/internal/models"
	"csgo-case-tracker/internal/steam"
)

// Notifier receives refresh progress events. The websocket hub
// implements it; a no-op works for tests.
type Notifier interface {
	Notify(event string, data interface{})
}

// RefreshReport is the per-account outcome of one refresh pass. A
// refresh reports counts, not a single pass/fail verdict.
type RefreshReport struct {
	AccountID     uint   `json:"account_id"`
	SteamID       string `json:"steam_id"`
	Cases         int    `json:"cases"`
	Priced        int    `json:"priced"`
	PriceFailures int    `json:"price_failures"`
	Private       bool   `json:"private"`
	Error         string `json:"error,omitempty"`
}

// RefreshSummary aggregates the reports of a refresh-all run.
type RefreshSummary struct {
	Accounts  int             `json:"accounts"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Reports   []RefreshReport `json:"reports"`
}

// Tracker drives the resolve → inventory → price → persist chain. All
// refresh work serializes through one mutex: the steam.Client's rate
// window is unlocked shared state, so overlapping refreshes would
// corrupt its bookkeeping.
type Tracker struct {
	db        *gorm.DB
	resolver  *steam.Resolver
	inventory *steam.InventoryFetcher
	prices    *steam.PriceOracle
	settings  steam.SettingsProvider
	log       *logrus.Logger
	notifier  Notifier

	mu sync.Mutex
}

func New(db *gorm.DB, resolver *steam.Resolver, inventory *steam.InventoryFetcher, prices *steam.PriceOracle, settings steam.SettingsProvider, log *logrus.Logger, notifier Notifier) *Tracker {
	return &Tracker{
		db:        db,
		resolver:  resolver,
		inventory: inventory,
		prices:    prices,
		settings:  settings,
		log:       log,
		notifier:  notifier,
	}
}

// AddAccount resolves any identifier form to the canonical id, pulls
// the profile and creates the account row. Resolution failures
// propagate: the caller decides whether to surface or skip.
func (t *Tracker) AddAccount(ctx context.Context, identifier string) (*models.Account, error) {
	canonical, err := t.resolver.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}

	var existing models.Account
	if err := t.db.Where("steam_id = ?", canonical).First(&existing).Error; err == nil {
		return nil, fmt.Errorf("account %s already tracked", canonical)
	}

	account := models.Account{SteamID: canonical, IsPublic: true}
	if profile := t.resolver.FetchProfile(ctx, canonical); profile != nil {
		account.DisplayName = profile.DisplayName
		account.ProfileURL = profile.ProfileURL
		account.AvatarURL = profile.AvatarURL
		account.IsPublic = profile.Public
	}

	if err := t.db.Create(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// RefreshAccount refreshes one account end to end.
func (t *Tracker) RefreshAccount(ctx context.Context, accountID uint) (RefreshReport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var account models.Account
	if err := t.db.First(&account, accountID).Error; err != nil {
		return RefreshReport{}, err
	}
	return t.refreshLocked(ctx, &account), nil
}

// RefreshAll refreshes every tracked account, one at a time. Inventory
// and price failures degrade per account; the run keeps going.
func (t *Tracker) RefreshAll(ctx context.Context) (RefreshSummary, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var accounts []models.Account
	if err := t.db.Order("id").Find(&accounts).Error; err != nil {
		return RefreshSummary{}, err
	}

	summary := RefreshSummary{Accounts: len(accounts)}
	for i := range accounts {
		report := t.refreshLocked(ctx, &accounts[i])
		if report.Error == "" {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		summary.Reports = append(summary.Reports, report)
	}

	t.notifier.Notify("refresh_done", summary)
	return summary, nil
}

func (t *Tracker) refreshLocked(ctx context.Context, account *models.Account) RefreshReport {
	report := RefreshReport{AccountID: account.ID, SteamID: account.SteamID}
	t.notifier.Notify("refresh_progress", map[string]interface{}{"account_id": account.ID, "steam_id": account.SteamID})

	if profile := t.resolver.FetchProfile(ctx, account.SteamID); profile != nil {
		account.DisplayName = profile.DisplayName
		account.ProfileURL = profile.ProfileURL
		account.AvatarURL = profile.AvatarURL
		account.IsPublic = profile.Public
	}

	result := t.inventory.FetchCases(ctx, account.ID, account.SteamID, steam.DefaultAppID)
	switch {
	case result.Private:
		account.IsPublic = false
		report.Private = true
	case result.Failure != nil:
		// Existing case rows stay; a failed refetch does not
		// invalidate what an earlier refresh persisted.
		report.Error = result.Failure.Error()
	default:
		report.Cases = len(result.Items)
		t.priceItems(ctx, result.Items, &report)
		if err := t.persistCases(account, result.Items); err != nil {
			t.log.WithFields(logrus.Fields{"account_id": account.ID, "error": err}).Error("case upsert failed")
			report.Error = err.Error()
		}
	}

	now := time.Now()
	account.LastRefreshedAt = &now
	if err := t.db.Save(account).Error; err != nil {
		t.log.WithFields(logrus.Fields{"account_id": account.ID, "error": err}).Error("account update failed")
	}

	t.log.WithFields(logrus.Fields{
		"account_id": account.ID,
		"steam_id":   account.SteamID,
		"cases":      report.Cases,
		"priced":     report.Priced,
		"failures":   report.PriceFailures,
		"private":    report.Private,
	}).Info("account refreshed")
	return report
}

// priceItems fills unit prices for each distinct market hash name.
// The oracle caches per (app, name, currency), so duplicate names
// inside one inventory cost one request at most.
func (t *Tracker) priceItems(ctx context.Context, items []steam.InventoryItem, report *RefreshReport) {
	currencyID := steam.CurrencyCodeToID(t.settings.Settings().Currency)

	priced := make(map[string]*float64)
	failed := make(map[string]bool)
	for i := range items {
		name := items[i].MarketHashName
		if amount, ok := priced[name]; ok {
			items[i].UnitPrice = amount
			continue
		}
		if failed[name] {
			continue
		}

		result := t.prices.GetPrice(ctx, items[i].AppID, name, currencyID)
		if result.Failure != nil {
			report.PriceFailures++
			failed[name] = true
			continue
		}
		priced[name] = result.Amount
		items[i].UnitPrice = result.Amount
	}

	for i := range items {
		if items[i].UnitPrice != nil {
			report.Priced++
		}
	}
}

// persistCases replaces the account's stored case set: upsert on the
// natural key, then drop rows whose asset vanished upstream. A value
// snapshot is written afterwards.
func (t *Tracker) persistCases(account *models.Account, items []steam.InventoryItem) error {
	return t.db.Transaction(func(tx *gorm.DB) error {
		kept := make([]string, 0, len(items))
		for _, item := range items {
			row := models.CaseItem{
				AccountID:      account.ID,
				AppID:          item.AppID,
				AssetID:        item.AssetID,
				ClassID:        item.ClassID,
				InstanceID:     item.InstanceID,
				Name:           item.Name,
				MarketHashName: item.MarketHashName,
				IconURL:        item.IconURL,
				Quantity:       item.Quantity,
				UnitPrice:      item.UnitPrice,
			}
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "account_id"}, {Name: "app_id"}, {Name: "asset_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"class_id", "instance_id", "name", "market_hash_name",
					"icon_url", "quantity", "unit_price", "updated_at",
				}),
			}).Create(&row).Error
			if err != nil {
				return err
			}
			kept = append(kept, item.AssetID)
		}

		stale := tx.Where("account_id = ?", account.ID)
		if len(kept) > 0 {
			stale = stale.Where("asset_id NOT IN ?", kept)
		}
		if err := stale.Delete(&models.CaseItem{}).Error; err != nil {
			return err
		}

		snapshot := models.ValueSnapshot{
			AccountID: account.ID,
			Currency:  t.settings.Settings().Currency,
			TakenAt:   time.Now(),
		}
		for _, item := range items {
			snapshot.CaseCount += item.Quantity
			if item.UnitPrice != nil {
				snapshot.TotalValue += *item.UnitPrice * float64(item.Quantity)
			}
		}
		return tx.Create(&snapshot).Error
	})
}
