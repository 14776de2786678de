package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultCommunityHost = "https://steamcommunity.com"
	economyImageBase     = "https://community.cloudflare.steamstatic.com/economy/image/"

	// DefaultAppID is CS2 / CS:GO.
	DefaultAppID = "730"

	inventoryTTL = 2 * time.Hour
)

// caseMarkers classify a description as a tradable container. An item
// matching a marker is still dropped when its name carries one of the
// exclusions (case keys and graffiti boxes share the marker words).
var (
	caseMarkers    = []string{"Case", "Container", "Operation", "eSports Case"}
	caseExclusions = []string{"Key", "Graffiti"}
)

// InventoryItem is one retained container stack from an inventory.
type InventoryItem struct {
	OwnerAccountID uint
	AppID          string
	AssetID        string
	ClassID        string
	InstanceID     string
	Name           string
	MarketHashName string
	IconURL        string
	Quantity       int
	UnitPrice      *float64
}

// InventoryResult makes the partial-failure policy explicit: Items is
// always usable (possibly empty), Private flags a 403, and Failure
// carries the typed reason when the fetch degraded. It is never raised
// to the route layer.
type InventoryResult struct {
	Items   []InventoryItem
	Private bool
	Failure error
}

type inventoryEntry struct {
	items     []InventoryItem
	fetchedAt time.Time
}

// InventoryFetcher pulls the container subset of an account's
// inventory for one app id.
type InventoryFetcher struct {
	client        *Client
	log           *logrus.Logger
	clock         Clock
	CommunityHost string

	cache map[string]inventoryEntry
}

func NewInventoryFetcher(client *Client, log *logrus.Logger, clock Clock) *InventoryFetcher {
	return &InventoryFetcher{
		client:        client,
		log:           log,
		clock:         clock,
		CommunityHost: defaultCommunityHost,
		cache:         make(map[string]inventoryEntry),
	}
}

type inventoryResponse struct {
	Success int `json:"success"`
	Assets  []struct {
		AssetID    string `json:"assetid"`
		ClassID    string `json:"classid"`
		InstanceID string `json:"instanceid"`
		Amount     string `json:"amount"`
	} `json:"assets"`
	Descriptions []struct {
		ClassID        string `json:"classid"`
		InstanceID     string `json:"instanceid"`
		Name           string `json:"name"`
		MarketHashName string `json:"market_hash_name"`
		IconURL        string `json:"icon_url"`
	} `json:"descriptions"`
}

// FetchCases returns the container stacks owned by canonicalID in the
// given app. The cache is keyed by the Steam identity, not the owning
// account row, so a re-added account reuses a fresh entry with the
// owner rebound. Every failure path logs and returns an empty result.
func (f *InventoryFetcher) FetchCases(ctx context.Context, ownerAccountID uint, canonicalID, appID string) InventoryResult {
	if appID == "" {
		appID = DefaultAppID
	}

	cacheKey := canonicalID + "|" + appID
	if entry, ok := f.cache[cacheKey]; ok && f.clock.Now().Sub(entry.fetchedAt) < inventoryTTL {
		return InventoryResult{Items: rebindOwner(entry.items, ownerAccountID)}
	}

	id64, err := LegacyToID64(canonicalID)
	if err != nil {
		f.log.WithFields(logrus.Fields{"steam_id": canonicalID, "error": err}).Error("inventory fetch failed")
		return InventoryResult{Failure: err}
	}

	// Leaving the count parameter off matters: large explicit counts
	// are a known trigger for upstream 400s.
	endpoint := fmt.Sprintf("%s/inventory/%s/%s/2?l=english", f.CommunityHost, id64, appID)

	resp, err := f.client.Dispatch(ctx, endpoint, nil)
	if err != nil {
		f.log.WithFields(logrus.Fields{"steam_id": canonicalID, "app_id": appID, "error": err}).Error("inventory fetch failed")
		return InventoryResult{Failure: err}
	}

	switch {
	case resp.StatusCode() == 403:
		f.log.WithFields(logrus.Fields{"steam_id": canonicalID, "app_id": appID}).Info("inventory is private")
		return InventoryResult{Private: true}
	case resp.StatusCode() != 200:
		failure := &UpstreamError{Path: sanitizeURL(endpoint), Status: resp.StatusCode()}
		f.log.WithFields(logrus.Fields{"steam_id": canonicalID, "app_id": appID, "status": resp.StatusCode()}).Error("inventory fetch failed")
		return InventoryResult{Failure: failure}
	}

	var parsed inventoryResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		f.log.WithFields(logrus.Fields{"steam_id": canonicalID, "app_id": appID, "error": err}).Error("inventory response unreadable")
		return InventoryResult{Failure: &MalformedResponseError{Endpoint: "inventory", Missing: "json body"}}
	}
	if parsed.Success != 1 {
		// A 200 with success != 1 is a degenerate body, not an empty
		// inventory. It must not be cached or supersede stored rows.
		f.log.WithFields(logrus.Fields{"steam_id": canonicalID, "app_id": appID, "success": parsed.Success}).Error("inventory response not successful")
		return InventoryResult{Failure: &MalformedResponseError{Endpoint: "inventory", Missing: "success flag"}}
	}

	items := f.buildItems(parsed, appID)
	f.cache[cacheKey] = inventoryEntry{items: items, fetchedAt: f.clock.Now()}

	f.log.WithFields(logrus.Fields{"steam_id": canonicalID, "app_id": appID, "cases": len(items)}).Info("inventory fetched")
	return InventoryResult{Items: rebindOwner(items, ownerAccountID)}
}

// buildItems joins assets to their descriptions and keeps only the
// container stacks.
func (f *InventoryFetcher) buildItems(parsed inventoryResponse, appID string) []InventoryItem {
	type descKey struct{ classID, instanceID string }

	descriptions := make(map[descKey]int, len(parsed.Descriptions))
	for i, d := range parsed.Descriptions {
		descriptions[descKey{d.ClassID, d.InstanceID}] = i
	}

	var items []InventoryItem
	for _, asset := range parsed.Assets {
		i, ok := descriptions[descKey{asset.ClassID, asset.InstanceID}]
		if !ok {
			continue
		}
		desc := parsed.Descriptions[i]
		if !isCaseDescription(desc.Name, desc.MarketHashName) {
			continue
		}

		quantity, err := strconv.Atoi(asset.Amount)
		if err != nil || quantity < 1 {
			quantity = 1
		}

		iconURL := ""
		if desc.IconURL != "" {
			iconURL = economyImageBase + desc.IconURL
		}

		items = append(items, InventoryItem{
			AppID:          appID,
			AssetID:        asset.AssetID,
			ClassID:        asset.ClassID,
			InstanceID:     asset.InstanceID,
			Name:           desc.Name,
			MarketHashName: desc.MarketHashName,
			IconURL:        iconURL,
			Quantity:       quantity,
		})
	}
	return items
}

func isCaseDescription(name, marketHashName string) bool {
	matches := containsAny(name, caseMarkers) || containsAny(marketHashName, caseMarkers)
	if !matches {
		return false
	}
	return !containsAny(name, caseExclusions) && !containsAny(marketHashName, caseExclusions)
}

func containsAny(s string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}

func rebindOwner(items []InventoryItem, ownerAccountID uint) []InventoryItem {
	out := make([]InventoryItem, len(items))
	copy(out, items)
	for i := range out {
		out[i].OwnerAccountID = ownerAccountID
	}
	return out
}
