package delivery

import (
	"context"
	"sync"
	"time"
)

// File is one entry of a batch delivery
type File struct {
	Content  interface{}
	Filename string
	Options  *Options
}

// BatchResult reports the outcome for the file at Index
type BatchResult struct {
	Index    int      `json:"index"`
	Filename string   `json:"filename"`
	Success  bool     `json:"success"`
	Receipt  *Receipt `json:"receipt,omitempty"`
	Error    string   `json:"error,omitempty"`
	Err      error    `json:"-"`
}

// ProgressFunc is called after each file completes
type ProgressFunc func(result BatchResult, completed, total int)

// BatchOptions controls DownloadMultipleFiles
type BatchOptions struct {
	Sequential bool
	Delay      time.Duration
	OnProgress ProgressFunc
	Defaults   Options
}

// DownloadMultipleFiles delivers every file. Sequential mode waits Delay
// between items; concurrent mode starts all at once. Results keep the input
// order in both modes and a failed file never aborts the rest.
func (d *Deliverer) DownloadMultipleFiles(ctx context.Context, files []File, opts BatchOptions) []BatchResult {
	results := make([]BatchResult, len(files))
	if opts.Sequential {
		d.downloadSequential(ctx, files, opts, results)
	} else {
		d.downloadConcurrent(ctx, files, opts, results)
	}
	return results
}

func (d *Deliverer) downloadSequential(ctx context.Context, files []File, opts BatchOptions, results []BatchResult) {
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(files); j++ {
				results[j] = failed(j, files[j].Filename, err)
			}
			return
		}

		results[i] = d.downloadOne(ctx, i, f, opts.Defaults)
		if opts.OnProgress != nil {
			opts.OnProgress(results[i], i+1, len(files))
		}

		if opts.Delay > 0 && i < len(files)-1 {
			timer := time.NewTimer(opts.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
	}
}

func (d *Deliverer) downloadConcurrent(ctx context.Context, files []File, opts BatchOptions, results []BatchResult) {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
	)

	for i, f := range files {
		wg.Add(1)
		go func(i int, f File) {
			defer wg.Done()

			res := d.downloadOne(ctx, i, f, opts.Defaults)
			results[i] = res

			if opts.OnProgress != nil {
				mu.Lock()
				completed++
				opts.OnProgress(res, completed, len(files))
				mu.Unlock()
			}
		}(i, f)
	}

	wg.Wait()
}

func (d *Deliverer) downloadOne(ctx context.Context, index int, f File, defaults Options) BatchResult {
	opts := defaults
	if f.Options != nil {
		opts = *f.Options
	}

	receipt, err := d.DownloadFile(ctx, f.Content, f.Filename, opts)
	if err != nil {
		return failed(index, f.Filename, err)
	}
	return BatchResult{
		Index:    index,
		Filename: receipt.Filename,
		Success:  true,
		Receipt:  receipt,
	}
}

func failed(index int, filename string, err error) BatchResult {
	return BatchResult{
		Index:    index,
		Filename: filename,
		Error:    err.Error(),
		Err:      err,
	}
}
