package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectCountry(t *testing.T) {
	cases := map[string]string{
		"Berlin":              "de",
		"berlin mitte":        "de",
		"Paris, France":       "fr",
		"Sydney":              "au",
		"New York, USA":       "us",
		"somewhere in Brazil": "br",
		"British remote":      "gb",
		"The Hague":           "nl",
		"Atlantis":            "us", // unknown falls back to the default
		"":                    "us",
	}
	for location, want := range cases {
		assert.Equal(t, want, DetectCountry(location, "us"), "location %q", location)
	}
}

func TestDetectCountryPrefersCityOverCountryName(t *testing.T) {
	// A city match decides the market even when another country is named.
	assert.Equal(t, "de", DetectCountry("Berlin, Germany", "us"))
	assert.Equal(t, "gb", DetectCountry("London, Canada", "us"))
}

func TestCountryName(t *testing.T) {
	assert.Equal(t, "Germany", CountryName("de"))
	assert.Equal(t, "XX", CountryName("xx"))
}

func TestIsSupportedCountry(t *testing.T) {
	assert.True(t, IsSupportedCountry("gb"))
	assert.True(t, IsSupportedCountry("GB"))
	assert.False(t, IsSupportedCountry("xx"))
}

func TestSearchQueriesDetectedMarket(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_ = json.NewEncoder(w).Encode(adzunaResponse{
			Results: []adzunaResult{pageResult("1", "Job 1")},
			Count:   1,
		})
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv.URL) // configured default market is "de"

	_, err := f.Search(context.Background(), SearchParams{Keywords: "go", Location: "Paris"})
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.True(t, strings.HasPrefix(paths[0], "/jobs/fr/"), "got %s", paths[0])

	// No location keeps the configured market.
	_, err = f.Search(context.Background(), SearchParams{Keywords: "go"})
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.True(t, strings.HasPrefix(paths[1], "/jobs/de/"), "got %s", paths[1])
}
