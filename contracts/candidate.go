package contracts

// SourceExtension is matched case-sensitively against file names.
const SourceExtension = ".psd"

// Candidate is a discovered source file and the sibling path its output goes to.
type Candidate struct {
	Path       string
	OutputPath string
	Size       int64
}

// Outcome is the result of converting one Candidate. Err is nil on success.
type Outcome struct {
	Candidate
	Err error
}

// Summary aggregates the outcomes of one batch run.
type Summary struct {
	Converted int
	Failed    int
	Skipped   int // never attempted because the run was cancelled
	Outputs   []string
	Failures  []Outcome
}

// Total returns the number of candidates found.
func (s Summary) Total() int {
	return s.Converted + s.Failed + s.Skipped
}

// HasFailures reports whether any candidate failed.
func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

// Add records one outcome.
func (s *Summary) Add(o Outcome) {
	if o.Err != nil {
		s.Failed++
		s.Failures = append(s.Failures, o)
		return
	}
	s.Converted++
	s.Outputs = append(s.Outputs, o.OutputPath)
}
