package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTestResult_Finish(t *testing.T) {
	tests := []struct {
		name     string
		subtests []TestStatus
		want     TestStatus
	}{
		{
			name: "no subtests",
			want: TestStatusPassed,
		},
		{
			name:     "all passed",
			subtests: []TestStatus{TestStatusPassed, TestStatusPassed},
			want:     TestStatusPassed,
		},
		{
			name:     "unverified does not fail",
			subtests: []TestStatus{TestStatusPassed, TestStatusUnverified},
			want:     TestStatusPassed,
		},
		{
			name:     "one failure fails the parent",
			subtests: []TestStatus{TestStatusPassed, TestStatusFailed, TestStatusUnverified},
			want:     TestStatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewTestResult("TestXBE")
			require.Equal(t, TestStatusRunning, r.Status)
			for _, s := range tt.subtests {
				r.AddSubtest("sub", s, "", time.Millisecond)
			}
			r.Finish(time.Second)
			require.Equal(t, tt.want, r.Status)
			require.Equal(t, time.Second, r.Duration)
		})
	}
}

func TestTestResult_Counts(t *testing.T) {
	r := NewTestResult("TestNxdkPgraphTests")
	r.AddSubtest("a", TestStatusPassed, "", 0)
	r.AddSubtest("b", TestStatusFailed, "differs", 0)
	r.AddSubtest("c", TestStatusUnverified, "", 0)
	r.AddSubtest("d", TestStatusUnverified, "", 0)

	passed, failed, unverified := r.Counts()
	require.Equal(t, 1, passed)
	require.Equal(t, 1, failed)
	require.Equal(t, 2, unverified)
}

func TestTestResult_Fail(t *testing.T) {
	r := NewTestResult("TestXBE")
	r.Fail("missing bios.bin", 2*time.Second)
	require.Equal(t, TestStatusFailed, r.Status)
	require.Equal(t, "missing bios.bin", r.Message)
}
