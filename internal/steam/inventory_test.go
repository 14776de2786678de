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

const testInventoryBody = `{
	"success": 1,
	"assets": [
		{"assetid": "1001", "classid": "10", "instanceid": "0", "amount": "2"},
		{"assetid": "1002", "classid": "20", "instanceid": "0", "amount": "1"},
		{"assetid": "1003", "classid": "30", "instanceid": "0", "amount": "1"},
		{"assetid": "1004", "classid": "40", "instanceid": "0", "amount": "bogus"}
	],
	"descriptions": [
		{"classid": "10", "instanceid": "0", "name": "Chroma 3 Case", "market_hash_name": "Chroma 3 Case", "icon_url": "chroma3"},
		{"classid": "20", "instanceid": "0", "name": "Chroma 3 Case Key", "market_hash_name": "Chroma 3 Case Key", "icon_url": "key"},
		{"classid": "30", "instanceid": "0", "name": "Sticker | Crowbar", "market_hash_name": "Sticker | Crowbar", "icon_url": "sticker"},
		{"classid": "40", "instanceid": "0", "name": "Operation Breakout Weapon Case", "market_hash_name": "Operation Breakout Weapon Case", "icon_url": "breakout"}
	]
}`

func newTestFetcher(serverURL string) (*InventoryFetcher, *fakeClock) {
	clock := newFakeClock()
	client := NewClient(staticSettings{}, testLogger(), clock, DefaultClientOptions())
	fetcher := NewInventoryFetcher(client, testLogger(), clock)
	fetcher.CommunityHost = serverURL
	return fetcher, clock
}

func TestFetchCasesKeepsOnlyContainers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/inventory/76561198041834743/730/2", r.URL.Path)
		assert.Empty(t, r.URL.Query().Get("count"), "count parameter must be omitted")
		fmt.Fprint(w, testInventoryBody)
	}))
	defer server.Close()

	fetcher, _ := newTestFetcher(server.URL)
	result := fetcher.FetchCases(context.Background(), 7, "STEAM_0:1:40784507", "730")

	require.Nil(t, result.Failure)
	assert.False(t, result.Private)
	require.Len(t, result.Items, 2, "key and sticker are excluded")

	chroma := result.Items[0]
	assert.Equal(t, uint(7), chroma.OwnerAccountID)
	assert.Equal(t, "Chroma 3 Case", chroma.Name)
	assert.Equal(t, "1001", chroma.AssetID)
	assert.Equal(t, 2, chroma.Quantity)
	assert.Nil(t, chroma.UnitPrice, "price is unset until the oracle runs")
	assert.Contains(t, chroma.IconURL, "chroma3")

	breakout := result.Items[1]
	assert.Equal(t, "Operation Breakout Weapon Case", breakout.Name)
	assert.Equal(t, 1, breakout.Quantity, "unparsable amount defaults to 1")
}

func TestFetchCasesPrivateInventory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(403)
	}))
	defer server.Close()

	fetcher, _ := newTestFetcher(server.URL)
	result := fetcher.FetchCases(context.Background(), 1, "STEAM_0:1:40784507", "730")

	assert.True(t, result.Private)
	assert.Empty(t, result.Items)
	assert.Nil(t, result.Failure, "private is a soft condition, not a failure")
}

func TestFetchCasesUpstreamErrorDegradesToEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer server.Close()

	fetcher, _ := newTestFetcher(server.URL)
	result := fetcher.FetchCases(context.Background(), 1, "STEAM_0:1:40784507", "730")

	assert.Empty(t, result.Items)
	require.Error(t, result.Failure)

	var upstream *UpstreamError
	require.ErrorAs(t, result.Failure, &upstream)
	assert.Equal(t, 500, upstream.Status)
}

func TestFetchCasesRejectsUnsuccessfulBody(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"success":0}`)
	}))
	defer server.Close()

	fetcher, _ := newTestFetcher(server.URL)
	result := fetcher.FetchCases(context.Background(), 1, "STEAM_0:1:40784507", "730")

	assert.Empty(t, result.Items)
	require.Error(t, result.Failure, "success != 1 is not an empty inventory")

	var malformed *MalformedResponseError
	require.ErrorAs(t, result.Failure, &malformed)

	// The degenerate body must not be cached either: a retry goes back
	// to the upstream instead of serving the bogus empty set.
	again := fetcher.FetchCases(context.Background(), 1, "STEAM_0:1:40784507", "730")
	assert.Error(t, again.Failure)
	assert.Equal(t, 2, calls)
}

func TestFetchCasesInvalidIDFails(t *testing.T) {
	fetcher, _ := newTestFetcher("http://unused")
	result := fetcher.FetchCases(context.Background(), 1, "not-a-steam-id", "730")

	assert.Empty(t, result.Items)
	assert.ErrorIs(t, result.Failure, ErrInvalidFormat)
}

func TestFetchCasesCachesAndRebindsOwner(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, testInventoryBody)
	}))
	defer server.Close()

	fetcher, clock := newTestFetcher(server.URL)

	first := fetcher.FetchCases(context.Background(), 7, "STEAM_0:1:40784507", "730")
	require.Nil(t, first.Failure)
	assert.Equal(t, 1, calls)

	// Same identity, different owning account: served from cache with
	// the owner rewritten.
	second := fetcher.FetchCases(context.Background(), 9, "STEAM_0:1:40784507", "730")
	assert.Equal(t, 1, calls, "cache hit must not touch the network")
	require.Len(t, second.Items, 2)
	for _, item := range second.Items {
		assert.Equal(t, uint(9), item.OwnerAccountID)
	}

	clock.now = clock.now.Add(inventoryTTL + 1)
	third := fetcher.FetchCases(context.Background(), 7, "STEAM_0:1:40784507", "730")
	require.Nil(t, third.Failure)
	assert.Equal(t, 2, calls, "stale entry triggers a refetch")
}

func TestFetchCasesFailedRefetchKeepsOldCacheEntry(t *testing.T) {
	fail := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			w.WriteHeader(500)
			return
		}
		fmt.Fprint(w, testInventoryBody)
	}))
	defer server.Close()

	fetcher, clock := newTestFetcher(server.URL)

	first := fetcher.FetchCases(context.Background(), 7, "STEAM_0:1:40784507", "730")
	require.Len(t, first.Items, 2)

	clock.now = clock.now.Add(inventoryTTL + 1)
	fail = true
	second := fetcher.FetchCases(context.Background(), 7, "STEAM_0:1:40784507", "730")
	assert.Empty(t, second.Items)
	assert.Error(t, second.Failure)

	// The old entry was not invalidated by the failed refetch.
	entry, ok := fetcher.cache["STEAM_0:1:40784507|730"]
	require.True(t, ok)
	assert.Len(t, entry.items, 2)
}

func TestFetchCasesDefaultsAppID(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		fmt.Fprint(w, `{"success":1,"assets":[],"descriptions":[]}`)
	}))
	defer server.Close()

	fetcher, _ := newTestFetcher(server.URL)
	result := fetcher.FetchCases(context.Background(), 1, "STEAM_0:1:40784507", "")

	require.Nil(t, result.Failure)
	assert.Equal(t, "/inventory/76561198041834743/730/2", path)
}

func TestIsCaseDescription(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"Chroma 3 Case", true},
		{"Operation Bravo Case", true},
		{"eSports 2013 Case", true},
		{"Danger Zone Container", true},
		{"Chroma 3 Case Key", false},
		{"Sealed Graffiti | Little Cat", false},
		{"Sticker | Crowbar", false},
		{"AK-47 | Redline", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isCaseDescription(tt.name, tt.name))
		})
	}
}
