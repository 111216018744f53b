package locations

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleLocations = `[
	{"iata": "HKG", "city": "Hong Kong", "region": "Asia Pacific", "cca2": "HK", "lat": 22.3, "lon": 113.9},
	{"iata": "LAX", "city": "Los Angeles", "region": "North America", "cca2": "US"},
	{"iata": "SJC", "city": "San Jose", "region": "North America", "cca2": "US"},
	{"iata": "", "city": "ignored", "region": "X", "cca2": "XX"}
]`

func writeLocations(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "locations.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFromFile(t *testing.T) {
	db, err := LoadFromFile(writeLocations(t, sampleLocations))
	require.NoError(t, err)

	// IATA 为空的条目被跳过
	assert.Len(t, db.All(), 3)

	loc, ok := db.Get("hkg") // 大小写不敏感
	require.True(t, ok)
	assert.Equal(t, "Hong Kong", loc.City)
	assert.Equal(t, "HK", loc.Country)

	_, ok = db.Get("XXX")
	assert.False(t, ok)
}

func TestFilters(t *testing.T) {
	db, err := LoadFromFile(writeLocations(t, sampleLocations))
	require.NoError(t, err)

	na := db.FilterByRegion("north america")
	assert.Len(t, na, 2)

	us := db.FilterByCountry("us")
	assert.Len(t, us, 2)

	assert.Empty(t, db.FilterByRegion("Atlantis"))
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = LoadFromFile(writeLocations(t, "{not json"))
	assert.Error(t, err)

	// 没有有效条目也视为错误
	_, err = LoadFromFile(writeLocations(t, `[{"iata": "", "city": "x"}]`))
	assert.Error(t, err)
}
