package converter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"psd2png/contracts"
	"psd2png/files_manager"
)

type convertTask struct {
	candidate contracts.Candidate
	resultCh  chan<- convertResult
}

// convertResult carries an outcome, or marks a task that was handed out
// after cancellation and never started.
type convertResult struct {
	outcome contracts.Outcome
	skipped bool
}

// Batch converts every candidate under a root directory with a fixed pool
// of workers. Each worker handles one file at a time from read to write.
type Batch struct {
	Converter contracts.Converter
	// Extension is the output extension including the dot.
	Extension string
	Workers   int
	// Report receives one line per file and a closing summary line.
	Report io.Writer
}

func NewBatch(p *Pipeline, workers int, report io.Writer) *Batch {
	return &Batch{
		Converter: p,
		Extension: p.Extension(),
		Workers:   workers,
		Report:    report,
	}
}

// Run walks root and converts every .psd file beside itself. A failing file
// is reported and counted; it never stops the batch. The returned error is
// non-nil only when the walk could not start. Cancelling ctx stops handing
// out new files; files already being converted are finished and the rest
// are counted as skipped.
func (b *Batch) Run(ctx context.Context, root string) (contracts.Summary, error) {
	var summary contracts.Summary
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	candidates, err := files_manager.FindCandidates(root, b.Extension)
	if err != nil {
		return summary, err
	}

	report := b.Report
	if report == nil {
		report = io.Discard
	}

	numWorkers := b.Workers
	if numWorkers < 1 {
		numWorkers = contracts.DefaultWorkers()
	}
	numWorkers = min(numWorkers, max(len(candidates), 1))

	taskChan := make(chan convertTask)
	resultChan := make(chan convertResult, numWorkers)

	wg := &sync.WaitGroup{}
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go b.convertWorker(ctx, taskChan, wg)
	}

	done := make(chan struct{})
	go func() {
		for r := range resultChan {
			if r.skipped {
				summary.Skipped++
				continue
			}
			result := r.outcome
			summary.Add(result)
			if result.Err != nil {
				fmt.Fprintf(report, "failed: %s: %v\n", result.Path, result.Err)
			} else {
				fmt.Fprintf(report, "converted: %s -> %s\n", result.Path, result.OutputPath)
			}
		}
		close(done)
	}()

	sent := 0
feed:
	for _, c := range candidates {
		select {
		case <-ctx.Done():
			break feed
		case taskChan <- convertTask{candidate: c, resultCh: resultChan}:
			sent++
		}
	}
	close(taskChan)

	wg.Wait()
	close(resultChan)
	<-done

	summary.Skipped += len(candidates) - sent
	if summary.Skipped > 0 {
		fmt.Fprintf(report, "interrupted: %d files not attempted\n", summary.Skipped)
	}
	fmt.Fprintf(report, "\nBatch summary: %d converted, %d failed (total: %d)\n",
		summary.Converted, summary.Failed, summary.Total())
	return summary, nil
}

func (b *Batch) convertWorker(ctx context.Context, taskChan <-chan convertTask, wg *sync.WaitGroup) {
	defer wg.Done()

	for task := range taskChan {
		if ctx.Err() != nil {
			task.resultCh <- convertResult{skipped: true}
			continue
		}
		task.resultCh <- convertResult{outcome: contracts.Outcome{
			Candidate: task.candidate,
			Err:       b.convertFile(task.candidate),
		}}
	}
}

// convertFile reads, converts and writes one candidate. The output file is
// only created after encoding succeeded.
func (b *Batch) convertFile(c contracts.Candidate) error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		return contracts.NewConversionError(contracts.StageRead, c.Path, err)
	}

	out, err := b.convert(data)
	if err != nil {
		var convErr *contracts.ConversionError
		if errors.As(err, &convErr) {
			return convErr.WithPath(c.Path)
		}
		return contracts.NewConversionError(contracts.StageDecode, c.Path, err)
	}

	if err := files_manager.WriteFileAtomic(c.OutputPath, out); err != nil {
		return contracts.NewConversionError(contracts.StageWrite, c.Path, err)
	}
	return nil
}

// convert shields the worker from a panicking converter so one bad
// document cannot take down the batch.
func (b *Batch) convert(data []byte) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("converter panic: %v", r)
		}
	}()
	return b.Converter.Convert(data)
}
