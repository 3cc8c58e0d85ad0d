package pgraph

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParser_Parse(t *testing.T) {
	tests := []struct {
		name           string
		log            string
		wantCompleted  []Completion
		wantIncomplete []TestID
	}{
		{
			name: "empty",
			log:  "",
		},
		{
			name: "paired lines",
			log: `Starting Lighting::spot
Completed 'spot' in 43ms
Starting Lighting::point
Completed 'point' in 1.5s
Starting Texture Format::A8R8G8B8
Completed 'A8R8G8B8' in 120ms
Testing completed normally, closing log.
`,
			wantCompleted: []Completion{
				{ID: TestID{"Lighting", "spot"}, RawDuration: "43ms", Duration: 43 * time.Millisecond},
				{ID: TestID{"Lighting", "point"}, RawDuration: "1.5s", Duration: 1500 * time.Millisecond},
				{ID: TestID{"Texture Format", "A8R8G8B8"}, RawDuration: "120ms", Duration: 120 * time.Millisecond},
			},
		},
		{
			name: "trailing starting is incomplete",
			log: `Starting Lighting::spot
Completed 'spot' in 43ms
Starting Lighting::point
`,
			wantCompleted: []Completion{
				{ID: TestID{"Lighting", "spot"}, RawDuration: "43ms", Duration: 43 * time.Millisecond},
			},
			wantIncomplete: []TestID{{"Lighting", "point"}},
		},
		{
			name: "noise and blank lines are ignored",
			log: `
some debug output
  Starting Lighting::spot  

Completed 'spot' in about a while
`,
			wantCompleted: []Completion{
				{ID: TestID{"Lighting", "spot"}, RawDuration: "about a while"},
			},
		},
		{
			name: "test names may contain separators",
			log: `Starting Suite::name::with::colons
Completed 'name::with::colons' in 1ms
`,
			wantCompleted: []Completion{
				{ID: TestID{"Suite", "name::with::colons"}, RawDuration: "1ms", Duration: time.Millisecond},
			},
		},
		{
			name: "very long garbage line is ignored",
			log: "Starting A::a\nCompleted 'a' in 1ms\n" +
				strings.Repeat("x", 70000) +
				"\nStarting B::b\nCompleted 'b' in 2ms\n",
			wantCompleted: []Completion{
				{ID: TestID{"A", "a"}, RawDuration: "1ms", Duration: time.Millisecond},
				{ID: TestID{"B", "b"}, RawDuration: "2ms", Duration: 2 * time.Millisecond},
			},
		},
		{
			name: "last line without newline",
			log:  "Starting A::a\nCompleted 'a' in 1ms",
			wantCompleted: []Completion{
				{ID: TestID{"A", "a"}, RawDuration: "1ms", Duration: time.Millisecond},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewParser(zerolog.Nop()).Parse(strings.NewReader(tt.log))
			require.NoError(t, err)
			require.Equal(t, tt.wantCompleted, got.Completed)
			require.Equal(t, tt.wantIncomplete, got.Incomplete)
			require.Equal(t, len(tt.wantCompleted) == 0 && len(tt.wantIncomplete) == 0, got.Empty())
		})
	}
}

func TestParser_ParseUnmatched(t *testing.T) {
	tests := []struct {
		name string
		log  string
	}{
		{
			name: "starting twice",
			log:  "Starting A::one\nStarting A::two\n",
		},
		{
			name: "completed without starting",
			log:  "Completed 'one' in 1ms\n",
		},
		{
			name: "completed for another test",
			log:  "Starting A::one\nCompleted 'two' in 1ms\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(zerolog.Nop()).Parse(strings.NewReader(tt.log))
			require.ErrorIs(t, err, ErrUnmatchedSequence)
		})
	}
}

func TestParser_ParseFileMissing(t *testing.T) {
	_, err := NewParser(zerolog.Nop()).ParseFile(t.TempDir() + "/absent.txt")
	require.Error(t, err)
}
