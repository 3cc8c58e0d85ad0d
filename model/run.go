package model

import "time"

// Run represents a single xemutest invocation.
// It is persisted as run.json in the history directory of the results root.
type Run struct {
	// Unique ID for this invocation (UUID)
	ID string `json:"id"`
	// Timestamp when the invocation started
	Timestamp time.Time `json:"timestamp"`
	// Command-line arguments (including command name)
	Args []string `json:"args"`
	// Working directory holding xemu.toml and the disk image
	WorkDir string `json:"workdir"`
	// Exit code of the invocation (0 when every test was non-failing)
	ExitCode int `json:"exit_code"`
	// Duration of the invocation
	Duration time.Duration `json:"duration"`
	// Target execution environment
	Target *Target `json:"target,omitempty"`
	// Tools used for this invocation
	Tools *Tools `json:"tools,omitempty"`
	// Results of every test case that was executed
	Tests []TestResult `json:"tests,omitempty"`
	// Artifacts generated during this run
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// Target contains information about the execution environment
type Target struct {
	// Operating system of the execution environment
	OS string `json:"os,omitempty"`
	// CPU architecture of the execution environment
	Arch string `json:"arch,omitempty"`
	// Whether the run happened inside GitHub Actions
	CI bool `json:"ci,omitempty"`
}

// Tools records the external binaries that were used
type Tools struct {
	Xemu           string `json:"xemu"`
	Ffmpeg         string `json:"ffmpeg,omitempty"`
	PerceptualDiff string `json:"perceptualdiff,omitempty"`
}

// Failed returns the number of failed test cases in the run.
func (r *Run) Failed() int {
	n := 0
	for i := range r.Tests {
		if r.Tests[i].Status == TestStatusFailed {
			n++
		}
	}
	return n
}

// ArtifactType identifies the type of artifact
type ArtifactType uint8

const (
	ArtifactTypeHarnessLog ArtifactType = iota
	ArtifactTypeEmulatorLog
	ArtifactTypeVideoCapture
	ArtifactTypeResultsTree
	ArtifactTypeDiffImages
)

// String returns a short name used in listings.
func (t ArtifactType) String() string {
	switch t {
	case ArtifactTypeHarnessLog:
		return "log"
	case ArtifactTypeEmulatorLog:
		return "xemu-log"
	case ArtifactTypeVideoCapture:
		return "video"
	case ArtifactTypeResultsTree:
		return "results"
	case ArtifactTypeDiffImages:
		return "diffs"
	}
	return "unknown"
}

// Artifact represents a file or directory generated during execution
type Artifact struct {
	Type ArtifactType `json:"type"`
	Size uint64       `json:"size"`
	Test string       `json:"test,omitempty"`
	File string       `json:"file"` // relative to the results root
}
