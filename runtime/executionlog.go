package runtime

import (
	"fmt"
	"os"

	"github.com/isgasho/fantoch/executor/basicexec"
	"github.com/isgasho/fantoch/wire"
)

// executionLog appends every ExecutionInfo this node's executors apply to
// path, as length-delimited gob frames — an append-only record meant for
// offline replay validation. It is fed from a channel rather than written
// to directly by executor workers, so concurrent appends from several
// executors never interleave mid-frame.
type executionLog struct {
	ch   chan basicexec.ExecutionInfo
	done chan struct{}
}

func newExecutionLog(path string) (*executionLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("runtime: open execution log %q: %w", path, err)
	}

	el := &executionLog{
		ch:   make(chan basicexec.ExecutionInfo, 1024),
		done: make(chan struct{}),
	}
	go el.run(f)
	return el, nil
}

func (el *executionLog) append(info basicexec.ExecutionInfo) {
	el.ch <- info
}

func (el *executionLog) run(f *os.File) {
	defer close(el.done)
	defer f.Close()

	fw := wire.NewFrameWriter(f)
	for info := range el.ch {
		if err := fw.WriteFrame(info); err != nil {
			// a failing execution log is a diagnostics concern, not a
			// correctness one: drop the record and keep running
			// rather than aborting command execution over it.
			continue
		}
		_ = fw.Flush()
	}
}

func (el *executionLog) close() {
	close(el.ch)
	<-el.done
}
