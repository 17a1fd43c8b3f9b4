package converter

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"time"

	"go.yaml.in/yaml/v3"

	"psd2png/contracts"
)

// Report is the YAML document written by WriteReport.
type Report struct {
	Root      string          `yaml:"root"`
	Finished  time.Time       `yaml:"finished"`
	Converted int             `yaml:"converted"`
	Failed    int             `yaml:"failed"`
	Skipped   int             `yaml:"skipped,omitempty"`
	Outputs   []string        `yaml:"outputs,omitempty"`
	Failures  []ReportFailure `yaml:"failures,omitempty"`
}

type ReportFailure struct {
	Path  string `yaml:"path"`
	Stage string `yaml:"stage"`
	Error string `yaml:"error"`
}

func NewReport(root string, s contracts.Summary) Report {
	r := Report{
		Root:      root,
		Finished:  time.Now().UTC(),
		Converted: s.Converted,
		Failed:    s.Failed,
		Skipped:   s.Skipped,
		Outputs:   slices.Sorted(slices.Values(s.Outputs)),
	}
	for _, f := range s.Failures {
		rf := ReportFailure{Path: f.Path, Error: f.Err.Error()}
		var ce *contracts.ConversionError
		if errors.As(f.Err, &ce) {
			rf.Stage = string(ce.Stage)
			rf.Error = ce.Err.Error()
		}
		r.Failures = append(r.Failures, rf)
	}
	sort.Slice(r.Failures, func(i, j int) bool { return r.Failures[i].Path < r.Failures[j].Path })
	return r
}

// WriteReport stores the batch summary at path as YAML.
func WriteReport(path, root string, s contracts.Summary) error {
	data, err := yaml.Marshal(NewReport(root, s))
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
