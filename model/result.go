package model

import "time"

// TestStatus is the outcome of a test or subtest.
type TestStatus string

const (
	TestStatusRunning    TestStatus = "running"
	TestStatusPassed     TestStatus = "passed"
	TestStatusFailed     TestStatus = "failed"
	TestStatusUnverified TestStatus = "unverified"
)

// TestResult is the structured result of one test case.
//
// A result is created in the running state, receives subtests through
// AddSubtest and is closed exactly once by Finish or Fail.
type TestResult struct {
	Name     string        `json:"name"`
	Status   TestStatus    `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
	Subtests []TestResult  `json:"subtests,omitempty"`
}

// NewTestResult returns a running result for the named test.
func NewTestResult(name string) *TestResult {
	return &TestResult{
		Name:   name,
		Status: TestStatusRunning,
	}
}

// AddSubtest records the result of one sub-check.
func (r *TestResult) AddSubtest(name string, status TestStatus, message string, duration time.Duration) {
	r.Subtests = append(r.Subtests, TestResult{
		Name:     name,
		Status:   status,
		Message:  message,
		Duration: duration,
	})
}

// Fail closes the result as failed with the given message.
func (r *TestResult) Fail(message string, duration time.Duration) {
	r.Status = TestStatusFailed
	r.Message = message
	r.Duration = duration
}

// Finish closes the result. It is failed if any subtest failed and passed
// otherwise; unverified subtests do not fail the parent.
func (r *TestResult) Finish(duration time.Duration) {
	r.Duration = duration
	if r.HasFailures() {
		r.Status = TestStatusFailed
		return
	}
	r.Status = TestStatusPassed
}

// HasFailures reports whether any subtest failed.
func (r *TestResult) HasFailures() bool {
	for i := range r.Subtests {
		if r.Subtests[i].Status == TestStatusFailed {
			return true
		}
	}
	return false
}

// Counts returns the number of passed, failed and unverified subtests.
func (r *TestResult) Counts() (passed, failed, unverified int) {
	for i := range r.Subtests {
		switch r.Subtests[i].Status {
		case TestStatusPassed:
			passed++
		case TestStatusFailed:
			failed++
		case TestStatusUnverified:
			unverified++
		}
	}
	return passed, failed, unverified
}
