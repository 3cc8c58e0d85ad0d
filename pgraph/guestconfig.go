package pgraph

import (
	"encoding/json"
	"fmt"
)

const (
	// GuestConfigDir is the directory on drive E holding the suite config.
	GuestConfigDir = "/nxdk_pgraph_tests"
	// GuestConfigPath is the config file the suite reads at startup.
	GuestConfigPath = GuestConfigDir + "/nxdk_pgraph_tests_config.json"
	// GuestConfigDrive is the drive letter of the config file.
	GuestConfigDrive = "e"
	// GuestOutputDir is where the suite writes its results inside the guest.
	GuestOutputDir = "c:/nxdk_pgraph_tests"
)

// GuestConfig is the JSON configuration read by the in-guest suite.
type GuestConfig struct {
	Settings   Settings                                `json:"settings"`
	TestSuites map[string]map[string]TestConfiguration `json:"test_suites"`
}

// Settings is the settings block of GuestConfig.
type Settings struct {
	EnableProgressLog             bool    `json:"enable_progress_log"`
	DisableAutorun                bool    `json:"disable_autorun"`
	EnableAutorunImmediately      bool    `json:"enable_autorun_immediately"`
	EnableShutdownOnCompletion    bool    `json:"enable_shutdown_on_completion"`
	EnablePgraphRegionDiff        bool    `json:"enable_pgraph_region_diff"`
	SkipTestsByDefault            bool    `json:"skip_tests_by_default"`
	DelayMillisecondsBetweenTests int     `json:"delay_milliseconds_between_tests"`
	Network                       Network `json:"network"`
	OutputDirectoryPath           string  `json:"output_directory_path"`
}

// Network is left disabled; the harness reads results from the disk image.
type Network struct {
	Enable          bool   `json:"enable"`
	ConfigAutomatic bool   `json:"config_automatic"`
	ConfigDHCP      bool   `json:"config_dhcp"`
	StaticIP        string `json:"static_ip"`
	StaticNetmask   string `json:"static_netmask"`
	StaticGateway   string `json:"static_gateway"`
	StaticDNS1      string `json:"static_dns_1"`
	StaticDNS2      string `json:"static_dns_2"`
	FTP             FTP    `json:"ftp"`
}

// FTP is the unused FTP upload block.
type FTP struct {
	IP                  string `json:"ftp_ip"`
	Port                int    `json:"ftp_port"`
	User                string `json:"ftp_user"`
	Password            string `json:"ftp_password"`
	TimeoutMilliseconds int    `json:"ftp_timeout_milliseconds"`
}

// TestConfiguration overrides a single test.
type TestConfiguration struct {
	Skipped bool `json:"skipped"`
}

// BuildGuestConfig returns a config that runs every test immediately,
// shuts down when done and skips the given tests.
func BuildGuestConfig(skip []TestID) GuestConfig {
	cfg := GuestConfig{
		Settings: Settings{
			EnableProgressLog:          true,
			EnableAutorunImmediately:   true,
			EnableShutdownOnCompletion: true,
			OutputDirectoryPath:        GuestOutputDir,
		},
		TestSuites: map[string]map[string]TestConfiguration{},
	}
	for _, id := range skip {
		suite, ok := cfg.TestSuites[id.Suite]
		if !ok {
			suite = map[string]TestConfiguration{}
			cfg.TestSuites[id.Suite] = suite
		}
		suite[id.Name] = TestConfiguration{Skipped: true}
	}
	return cfg
}

// Marshal renders the config as indented JSON.
func (c GuestConfig) Marshal() ([]byte, error) {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal guest config: %w", err)
	}
	return b, nil
}
