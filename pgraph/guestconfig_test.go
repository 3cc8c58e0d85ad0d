package pgraph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildGuestConfig(t *testing.T) {
	cfg := BuildGuestConfig([]TestID{
		{"Lighting", "spot"},
		{"Lighting", "point"},
		{"Texture Format", "A8R8G8B8"},
	})

	b, err := cfg.Marshal()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))

	settings := doc["settings"].(map[string]any)
	require.Equal(t, true, settings["enable_progress_log"])
	require.Equal(t, false, settings["disable_autorun"])
	require.Equal(t, true, settings["enable_autorun_immediately"])
	require.Equal(t, true, settings["enable_shutdown_on_completion"])
	require.Equal(t, false, settings["enable_pgraph_region_diff"])
	require.Equal(t, false, settings["skip_tests_by_default"])
	require.Equal(t, float64(0), settings["delay_milliseconds_between_tests"])
	require.Equal(t, "c:/nxdk_pgraph_tests", settings["output_directory_path"])

	network := settings["network"].(map[string]any)
	require.Equal(t, false, network["enable"])
	require.Contains(t, network, "ftp")

	require.Equal(t, map[string]any{
		"Lighting": map[string]any{
			"spot":  map[string]any{"skipped": true},
			"point": map[string]any{"skipped": true},
		},
		"Texture Format": map[string]any{
			"A8R8G8B8": map[string]any{"skipped": true},
		},
	}, doc["test_suites"])
}

func TestBuildGuestConfig_NothingSkipped(t *testing.T) {
	b, err := BuildGuestConfig(nil).Marshal()
	require.NoError(t, err)
	require.Contains(t, string(b), `"test_suites": {}`)
}
