package stowr

import (
	"context"
	"time"
)

// BatchFailure pairs a path with why it failed during a batch operation.
type BatchFailure struct {
	Path string
	Err  error
}

// BatchSummary collects the per-item outcome of a batch operation.
// Per-item failures never abort the batch (spec §4.5). The batch calls
// have no separate error return: every failure, including OweAllFiles
// failing to list the index (recorded as one Failed item with an empty
// Path), is reported in Failed.
type BatchSummary struct {
	Succeeded []string
	Failed    []BatchFailure
}

// StoreFilesFromList runs StoreFile over every path source supplies,
// across the Engine's worker pool. sink and cancel may be nil (treated
// as DiscardProgressSink and "never cancelled").
func (e *Engine) StoreFilesFromList(source PathSource, keepOriginal bool, sink ProgressSink, cancel CancelSignal) BatchSummary {
	paths := drainPathSource(source)
	return e.runBatch(paths, sink, cancel, func(path string) error {
		return e.StoreFile(path, keepOriginal)
	})
}

// OweFilesFromList runs OweFile over every path source supplies.
func (e *Engine) OweFilesFromList(source PathSource, sink ProgressSink, cancel CancelSignal) BatchSummary {
	paths := drainPathSource(source)
	return e.runBatch(paths, sink, cancel, e.OweFile)
}

// OweAllFiles runs OweFile over every currently-tracked entry.
func (e *Engine) OweAllFiles(sink ProgressSink, cancel CancelSignal) BatchSummary {
	entries, err := e.idx.List()
	if err != nil {
		return BatchSummary{Failed: []BatchFailure{{Path: "", Err: newErr(KindIndex, "owe_all_files", "", err)}}}
	}
	paths := make([]string, len(entries))
	for i, ent := range entries {
		paths[i] = ent.Path
	}
	return e.runBatch(paths, sink, cancel, e.OweFile)
}

func drainPathSource(source PathSource) []string {
	var paths []string
	for {
		p, ok := source.Next()
		if !ok {
			break
		}
		paths = append(paths, p)
	}
	return paths
}

func (e *Engine) runBatch(paths []string, sink ProgressSink, cancel CancelSignal, op func(path string) error) BatchSummary {
	if sink == nil {
		sink = DiscardProgressSink{}
	}
	if cancel == nil {
		cancel = neverCancel{}
	}

	ctx, stop := contextFromCancel(cancel)
	defer stop()

	n := len(paths)
	results := e.pool.Run(ctx, n, func(_ context.Context, i int) error {
		return op(paths[i])
	})

	summary := BatchSummary{}
	for i, err := range results {
		if err != nil {
			summary.Failed = append(summary.Failed, BatchFailure{Path: paths[i], Err: err})
			sink.Report(i+1, n, paths[i], ProgressFailed)
		} else {
			summary.Succeeded = append(summary.Succeeded, paths[i])
			sink.Report(i+1, n, paths[i], ProgressSucceeded)
		}
	}
	return summary
}

// contextFromCancel derives a context that is cancelled once signal
// reports Cancelled() == true, polled at a short interval — the
// mechanism spec §5 describes as "a cancellation flag ... checked
// between items in a batch".
func contextFromCancel(signal CancelSignal) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if signal.Cancelled() {
					cancel()
					return
				}
			}
		}
	}()
	return ctx, cancel
}
