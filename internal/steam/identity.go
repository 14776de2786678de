package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultAPIHost = "https://api.steampowered.com"

	profileTTL = 6 * time.Hour
)

// ProfileInfo is the slice of a player summary the tracker cares about.
type ProfileInfo struct {
	DisplayName string
	ProfileURL  string
	AvatarURL   string
	Public      bool
}

type profileEntry struct {
	info      ProfileInfo
	fetchedAt time.Time
}

// Resolver normalizes user-supplied identifiers (legacy STEAM_X:Y:Z,
// 64-bit id, vanity name or full profile URL) to the canonical legacy
// form and fetches profile metadata.
type Resolver struct {
	client   *Client
	settings SettingsProvider
	log      *logrus.Logger
	clock    Clock
	APIHost  string

	profiles map[string]profileEntry
}

func NewResolver(client *Client, settings SettingsProvider, log *logrus.Logger, clock Clock) *Resolver {
	return &Resolver{
		client:   client,
		settings: settings,
		log:      log,
		clock:    clock,
		APIHost:  defaultAPIHost,
		profiles: make(map[string]profileEntry),
	}
}

type vanityResponse struct {
	Response struct {
		Success int    `json:"success"`
		SteamID string `json:"steamid"`
		Message string `json:"message"`
	} `json:"response"`
}

type playerSummariesResponse struct {
	Response struct {
		Players []struct {
			PersonaName              string `json:"personaname"`
			ProfileURL               string `json:"profileurl"`
			AvatarMedium             string `json:"avatarmedium"`
			CommunityVisibilityState int    `json:"communityvisibilitystate"`
		} `json:"players"`
	} `json:"response"`
}

// Resolve turns any accepted identifier form into the canonical legacy
// id. Vanity lookups need the configured API key and go through the
// rate-limited client; everything else is pure arithmetic.
func (r *Resolver) Resolve(ctx context.Context, identifier string) (string, error) {
	trimmed := strings.TrimSpace(identifier)

	if IsLegacyID(trimmed) {
		return trimmed, nil
	}
	if IsID64(trimmed) {
		return ID64ToLegacy(trimmed)
	}

	vanity := vanityFromURL(trimmed)
	id64, err := r.resolveVanity(ctx, vanity)
	if err != nil {
		r.log.WithFields(logrus.Fields{"identifier": identifier, "error": err}).Warn("identity resolution failed")
		return "", err
	}
	return ID64ToLegacy(id64)
}

func (r *Resolver) resolveVanity(ctx context.Context, vanity string) (string, error) {
	key := r.settings.Settings().APIKey
	if key == "" {
		return "", ErrMissingCredential
	}

	endpoint := fmt.Sprintf("%s/ISteamUser/ResolveVanityURL/v1/?key=%s&vanityurl=%s",
		r.APIHost, url.QueryEscape(key), url.QueryEscape(vanity))

	resp, err := r.client.Dispatch(ctx, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIdentityNotFound, err)
	}
	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("%w: vanity lookup returned %d", ErrIdentityNotFound, resp.StatusCode())
	}

	var parsed vanityResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrIdentityNotFound, err)
	}
	if parsed.Response.Success != 1 || parsed.Response.SteamID == "" {
		return "", fmt.Errorf("%w: %q (%s)", ErrIdentityNotFound, vanity, parsed.Response.Message)
	}
	return parsed.Response.SteamID, nil
}

// FetchProfile returns the profile for a canonical id, consulting the
// in-memory cache first. Failures are logged and degrade to nil so a
// batch refresh can keep going.
func (r *Resolver) FetchProfile(ctx context.Context, canonicalID string) *ProfileInfo {
	if entry, ok := r.profiles[canonicalID]; ok && r.clock.Now().Sub(entry.fetchedAt) < profileTTL {
		info := entry.info
		return &info
	}

	key := r.settings.Settings().APIKey
	if key == "" {
		r.log.WithField("steam_id", canonicalID).Warn("profile fetch skipped: no api key")
		return nil
	}

	id64, err := LegacyToID64(canonicalID)
	if err != nil {
		r.log.WithFields(logrus.Fields{"steam_id": canonicalID, "error": err}).Warn("profile fetch failed")
		return nil
	}

	endpoint := fmt.Sprintf("%s/ISteamUser/GetPlayerSummaries/v2/?key=%s&steamids=%s",
		r.APIHost, url.QueryEscape(key), id64)

	resp, err := r.client.Dispatch(ctx, endpoint, nil)
	if err != nil {
		r.log.WithFields(logrus.Fields{"steam_id": canonicalID, "error": err}).Warn("profile fetch failed")
		return nil
	}
	if resp.StatusCode() != 200 {
		r.log.WithFields(logrus.Fields{"steam_id": canonicalID, "status": resp.StatusCode()}).Warn("profile fetch failed")
		return nil
	}

	var parsed playerSummariesResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		r.log.WithFields(logrus.Fields{"steam_id": canonicalID, "error": err}).Warn("profile response unreadable")
		return nil
	}
	if len(parsed.Response.Players) == 0 {
		r.log.WithFields(logrus.Fields{"steam_id": canonicalID}).Warn("profile response empty")
		return nil
	}

	player := parsed.Response.Players[0]
	info := ProfileInfo{
		DisplayName: player.PersonaName,
		ProfileURL:  player.ProfileURL,
		AvatarURL:   player.AvatarMedium,
		Public:      player.CommunityVisibilityState == 3,
	}
	r.profiles[canonicalID] = profileEntry{info: info, fetchedAt: r.clock.Now()}
	return &info
}

// vanityFromURL strips a full steamcommunity profile URL down to the
// vanity segment; bare names pass through untouched.
func vanityFromURL(s string) string {
	s = strings.TrimSuffix(s, "/")
	if idx := strings.LastIndex(s, "/"); idx >= 0 {
		s = s[idx+1:]
	}
	return s
}
