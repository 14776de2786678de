package steam

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(serverURL, apiKey string) (*Resolver, *fakeClock) {
	clock := newFakeClock()
	provider := staticSettings{s: Settings{APIKey: apiKey}}
	client := NewClient(provider, testLogger(), clock, DefaultClientOptions())
	resolver := NewResolver(client, provider, testLogger(), clock)
	resolver.APIHost = serverURL
	return resolver, clock
}

func TestResolvePassesThroughLegacyID(t *testing.T) {
	resolver, _ := newTestResolver("http://unused", "key")

	got, err := resolver.Resolve(context.Background(), "STEAM_0:1:40784507")
	require.NoError(t, err)
	assert.Equal(t, "STEAM_0:1:40784507", got)
}

func TestResolveConvertsID64(t *testing.T) {
	resolver, _ := newTestResolver("http://unused", "key")

	got, err := resolver.Resolve(context.Background(), "76561198041834743")
	require.NoError(t, err)
	assert.Equal(t, "STEAM_0:1:40784507", got)
}

func TestResolveVanityName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ISteamUser/ResolveVanityURL/v1/", r.URL.Path)
		assert.Equal(t, "gaben", r.URL.Query().Get("vanityurl"))
		fmt.Fprint(w, `{"response":{"success":1,"steamid":"76561198041834743"}}`)
	}))
	defer server.Close()

	resolver, _ := newTestResolver(server.URL, "key")

	got, err := resolver.Resolve(context.Background(), "gaben")
	require.NoError(t, err)
	assert.Equal(t, "STEAM_0:1:40784507", got)
}

func TestResolveStripsProfileURLWrapper(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gaben", r.URL.Query().Get("vanityurl"))
		fmt.Fprint(w, `{"response":{"success":1,"steamid":"76561198041834743"}}`)
	}))
	defer server.Close()

	resolver, _ := newTestResolver(server.URL, "key")

	got, err := resolver.Resolve(context.Background(), "https://steamcommunity.com/id/gaben/")
	require.NoError(t, err)
	assert.Equal(t, "STEAM_0:1:40784507", got)
}

func TestResolveVanityWithoutKeyFails(t *testing.T) {
	resolver, _ := newTestResolver("http://unused", "")

	_, err := resolver.Resolve(context.Background(), "gaben")
	assert.ErrorIs(t, err, ErrMissingCredential)
}

func TestResolveUnknownVanityFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response":{"success":42,"message":"No match"}}`)
	}))
	defer server.Close()

	resolver, _ := newTestResolver(server.URL, "key")

	_, err := resolver.Resolve(context.Background(), "nobody-here")
	assert.ErrorIs(t, err, ErrIdentityNotFound)
}

func TestResolveUpstreamErrorBecomesIdentityNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer server.Close()

	resolver, _ := newTestResolver(server.URL, "key")

	_, err := resolver.Resolve(context.Background(), "gaben")
	assert.ErrorIs(t, err, ErrIdentityNotFound)
}

func TestFetchProfileMapsVisibility(t *testing.T) {
	visibility := 3
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ISteamUser/GetPlayerSummaries/v2/", r.URL.Path)
		fmt.Fprintf(w, `{"response":{"players":[{"personaname":"Gabe","profileurl":"https://steamcommunity.com/id/gaben/","avatarmedium":"https://avatars.example/gabe.jpg","communityvisibilitystate":%d}]}}`, visibility)
	}))
	defer server.Close()

	resolver, _ := newTestResolver(server.URL, "key")

	profile := resolver.FetchProfile(context.Background(), "STEAM_0:1:40784507")
	require.NotNil(t, profile)
	assert.Equal(t, "Gabe", profile.DisplayName)
	assert.True(t, profile.Public, "visibility 3 and only 3 is public")

	// Visibility 1 (private) on a fresh resolver maps to not public.
	visibility = 1
	resolver2, _ := newTestResolver(server.URL, "key")
	profile2 := resolver2.FetchProfile(context.Background(), "STEAM_0:1:40784507")
	require.NotNil(t, profile2)
	assert.False(t, profile2.Public)
}

func TestFetchProfileUsesCacheWithinWindow(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"response":{"players":[{"personaname":"Gabe","communityvisibilitystate":3}]}}`)
	}))
	defer server.Close()

	resolver, clock := newTestResolver(server.URL, "key")

	first := resolver.FetchProfile(context.Background(), "STEAM_0:1:40784507")
	require.NotNil(t, first)
	assert.Equal(t, 1, calls)

	second := resolver.FetchProfile(context.Background(), "STEAM_0:1:40784507")
	require.NotNil(t, second)
	assert.Equal(t, 1, calls, "cache hit must not touch the network")
	assert.Equal(t, first.DisplayName, second.DisplayName)

	// Past the freshness window the profile is refetched.
	clock.now = clock.now.Add(profileTTL + 1)
	third := resolver.FetchProfile(context.Background(), "STEAM_0:1:40784507")
	require.NotNil(t, third)
	assert.Equal(t, 2, calls)
}

func TestFetchProfileDegradesToNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer server.Close()

	resolver, _ := newTestResolver(server.URL, "key")
	assert.Nil(t, resolver.FetchProfile(context.Background(), "STEAM_0:1:40784507"))
}

func TestFetchProfileEmptyPlayersDegradesToNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"response":{"players":[]}}`)
	}))
	defer server.Close()

	resolver, _ := newTestResolver(server.URL, "key")
	assert.Nil(t, resolver.FetchProfile(context.Background(), "STEAM_0:1:40784507"))
}
