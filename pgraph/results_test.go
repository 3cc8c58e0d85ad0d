package pgraph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mborgerson/xemu-test/model"
)

func TestKeyFromImagePath(t *testing.T) {
	tests := []struct {
		rel    string
		want   Key
		wantOK bool
	}{
		{
			rel:    "opengl/iteration_0/Lighting/spot.png",
			want:   Key{Renderer: "opengl", ID: TestID{"Lighting", "spot"}},
			wantOK: true,
		},
		{
			rel:    "vulkan/iteration_3/Texture Format/A8R8G8B8.v2.png",
			want:   Key{Renderer: "vulkan", ID: TestID{"Texture Format", "A8R8G8B8.v2"}},
			wantOK: true,
		},
		{rel: "opengl/iteration_0/stray.png"},
		{rel: "root.png"},
	}

	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			got, ok := KeyFromImagePath(tt.rel)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestStripRendererIteration(t *testing.T) {
	require.Equal(t, ".", StripRendererIteration("."))
	require.Equal(t, ".", StripRendererIteration("opengl"))
	require.Equal(t, ".", StripRendererIteration("opengl/iteration_0"))
	require.Equal(t, "Lighting", StripRendererIteration("opengl/iteration_0/Lighting"))
	require.Equal(t, "Lighting/extra", StripRendererIteration("vulkan/iteration_2/Lighting/extra"))
}

func TestLedger_RecordKeepsFirstOrder(t *testing.T) {
	l := NewLedger()
	a := Key{"opengl", TestID{"S", "a"}}
	b := Key{"opengl", TestID{"S", "b"}}

	l.Record(a, Result{Status: StatusIncomplete})
	l.Record(b, Result{Status: StatusCompleted})
	l.Record(a, Result{Status: StatusCompleted, Duration: time.Second})

	require.Equal(t, []Key{a, b}, l.Keys())
	got, ok := l.Get(a)
	require.True(t, ok)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, 2, l.Len())
}

func newReportLedger() *Ledger {
	l := NewLedger()
	l.Record(Key{"opengl", TestID{"Lighting", "spot"}}, Result{Status: StatusCompleted, Duration: 43 * time.Millisecond})
	l.Record(Key{"opengl", TestID{"Lighting", "point"}}, Result{Status: StatusCompleted})
	l.Record(Key{"opengl", TestID{"Lighting", "crash"}}, Result{Status: StatusIncomplete, Message: "Test did not complete"})
	l.Record(Key{"vulkan", TestID{"Lighting", "spot"}}, Result{Status: StatusCompleted})
	return l
}

func TestLedger_ReportCompared(t *testing.T) {
	l := newReportLedger()
	l.ApplyComparisons(map[string]string{
		"opengl/iteration_1/Lighting/point.png": "FAIL: Images are visibly different",
		"opengl/iteration_0/unrelated.png":      "ignored",
	}, true)

	tr := model.NewTestResult(SuiteName)
	failed := l.Report(tr)
	require.Equal(t, 2, failed)

	require.Equal(t, []model.TestResult{
		{Name: "opengl::Lighting::spot", Status: model.TestStatusPassed, Duration: 43 * time.Millisecond},
		{Name: "opengl::Lighting::point", Status: model.TestStatusFailed, Message: "FAIL: Images are visibly different"},
		{Name: "opengl::Lighting::crash", Status: model.TestStatusFailed, Message: "Test did not complete"},
		{Name: "vulkan::Lighting::spot", Status: model.TestStatusPassed},
	}, tr.Subtests)
}

func TestLedger_ReportUncompared(t *testing.T) {
	l := newReportLedger()
	l.ApplyComparisons(map[string]string{}, false)

	tr := model.NewTestResult(SuiteName)
	require.Equal(t, 1, l.Report(tr))

	passed, failed, unverified := tr.Counts()
	require.Zero(t, passed)
	require.Equal(t, 1, failed)
	require.Equal(t, 3, unverified)
}
