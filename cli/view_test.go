package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mborgerson/xemu-test/history"
	"github.com/mborgerson/xemu-test/model"
)

func TestRemoveFirstDashDash(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "empty slice",
			in:   []string{},
			want: []string{},
		},
		{
			name: "starts with --",
			in:   []string{"--", "-1"},
			want: []string{"-1"},
		},
		{
			name: "no --",
			in:   []string{"-1"},
			want: []string{"-1"},
		},
		{
			name: "only --",
			in:   []string{"--"},
			want: []string{},
		},
		{
			name: "-- in middle",
			in:   []string{"abc", "--", "-1"},
			want: []string{"abc", "--", "-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := removeFirstDashDash(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("removeFirstDashDash() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseViewArgs(t *testing.T) {
	tests := []struct {
		name        string
		in          []string
		wantResults string
		wantRef     string
		wantErr     bool
	}{
		{
			name:    "no args",
			in:      []string{},
			wantErr: true,
		},
		{
			name:        "only results - default to 0",
			in:          []string{"results"},
			wantResults: "results",
			wantRef:     "0",
		},
		{
			name:        "negative index",
			in:          []string{"results", "-1"},
			wantResults: "results",
			wantRef:     "-1",
		},
		{
			name:        "negative index after --",
			in:          []string{"results", "--", "-2"},
			wantResults: "results",
			wantRef:     "-2",
		},
		{
			name:        "hex ID",
			in:          []string{"results", "abc123"},
			wantResults: "results",
			wantRef:     "abc123",
		},
		{
			name:        "only -- uses default 0",
			in:          []string{"results", "--"},
			wantResults: "results",
			wantRef:     "0",
		},
		{
			name:    "too many args",
			in:      []string{"results", "abc", "def"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotResults, gotRef, err := parseViewArgs(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseViewArgs() err = %v, wantErr %v", err, tt.wantErr)
			}
			if gotResults != tt.wantResults {
				t.Errorf("parseViewArgs() gotResults = %v, want %v", gotResults, tt.wantResults)
			}
			if gotRef != tt.wantRef {
				t.Errorf("parseViewArgs() gotRef = %v, want %v", gotRef, tt.wantRef)
			}
		})
	}
}

func testEntry() *history.Entry {
	return &history.Entry{
		FullPath: "/results/history/20240301-120000-abcdef12",
		Run: model.Run{
			ID:        "abcdef12-3456",
			Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			Args:      []string{"xemutest", "private", "results"},
			ExitCode:  1,
			Duration:  90 * time.Second,
			Tools:     &model.Tools{Xemu: "/usr/bin/xemu"},
			Tests: []model.TestResult{
				{Name: "TestXBE", Status: model.TestStatusPassed},
				{
					Name:   "TestNxdkPgraphTests",
					Status: model.TestStatusFailed,
					Subtests: []model.TestResult{
						{Name: "opengl::Lighting::spot", Status: model.TestStatusFailed, Message: "Images are visibly different"},
						{Name: "opengl::Lighting::point", Status: model.TestStatusPassed},
					},
				},
			},
			Artifacts: []model.Artifact{
				{Type: model.ArtifactTypeEmulatorLog, File: "TestXBE/xemu.log", Size: 2048},
			},
		},
	}
}

func TestDisplayRun(t *testing.T) {
	var out bytes.Buffer
	app := &App{}
	app.displayRun(&out, testEntry())

	got := out.String()
	require.Contains(t, got, "=== Run: abcdef12 ===")
	require.Contains(t, got, "Exit Code: 1")
	require.Contains(t, got, "ffmpeg: disabled")
	require.Contains(t, got, "FAIL TestNxdkPgraphTests / opengl::Lighting::spot: Images are visibly different")
	require.NotContains(t, got, "Lighting::point:")
	require.Contains(t, got, "xemu-log: TestXBE/xemu.log (2.0 KB)")
}

func TestDisplayEmulatorLogs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "TestXBE"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "TestXBE", "xemu.log"), []byte("booting"), 0644))

	var out bytes.Buffer
	err := displayEmulatorLogs(&out, root, testEntry().Run.Artifacts)
	require.NoError(t, err)
	require.Contains(t, out.String(), "=== TestXBE/xemu.log ===")
	require.Contains(t, out.String(), "booting")

	err = displayEmulatorLogs(&out, t.TempDir(), testEntry().Run.Artifacts)
	require.Error(t, err)
}

func TestPrintEntries(t *testing.T) {
	passed := history.Entry{Run: model.Run{ID: "11111111-aaaa", Args: []string{"xemutest", "p", "r"}}}
	failed := *testEntry()

	var out bytes.Buffer
	printEntries(&out, filterEntries([]history.Entry{failed, passed}, true), 20)
	require.Contains(t, out.String(), "=== History (1 total) ===")
	require.Contains(t, out.String(), "✗")
	require.Contains(t, out.String(), "id=abcdef12")
	require.Contains(t, out.String(), "Tests: TestXBE=passed TestNxdkPgraphTests=failed")
	require.NotContains(t, out.String(), "11111111")

	out.Reset()
	printEntries(&out, []history.Entry{failed, passed}, 1)
	require.Contains(t, out.String(), "=== History (2 total) ===")
	require.NotContains(t, out.String(), "11111111")

	out.Reset()
	printEntries(&out, nil, 20)
	require.Equal(t, "No history entries found\n", out.String())
}
