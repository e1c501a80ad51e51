package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

// InterruptHandler turns SIGINT and SIGTERM into context cancellation for a
// batch run and reports how far the batch got.
type InterruptHandler struct {
	writer      io.Writer
	stop        func()
	total       atomic.Int64
	done        atomic.Int64
	saving      bool
	interrupted bool
	mu          sync.Mutex
}

// NewInterruptHandler creates a handler writing its message to writer.
func NewInterruptHandler(writer io.Writer) *InterruptHandler {
	if writer == nil {
		writer = os.Stderr
	}
	return &InterruptHandler{writer: writer}
}

// HandleInterrupts returns a context canceled on the first interrupt signal.
// When saving is set the message tells the user finished receipts were kept.
func (h *InterruptHandler) HandleInterrupts(ctx context.Context, saving bool) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	h.saving = saving

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	h.stop = func() {
		signal.Stop(sigChan)
		cancel()
	}

	go func() {
		select {
		case <-sigChan:
			h.interrupt()
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx
}

// Track sets the number of documents in the batch.
func (h *InterruptHandler) Track(total int) {
	h.total.Store(int64(total))
	h.done.Store(0)
}

// Done records one finished document. It is safe for concurrent use.
func (h *InterruptHandler) Done() {
	h.done.Add(1)
}

// Stop releases the signal subscription.
func (h *InterruptHandler) Stop() {
	if h.stop != nil {
		h.stop()
	}
}

// WasInterrupted reports whether a signal canceled the run.
func (h *InterruptHandler) WasInterrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupted
}

func (h *InterruptHandler) interrupt() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.interrupted {
		return
	}
	h.interrupted = true
	if _, err := fmt.Fprint(h.writer, h.message()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write interrupt message: %v\n", err)
	}
}

func (h *InterruptHandler) message() string {
	msg := "\n\n" + FormatWarning("Processing interrupted!")
	if total := h.total.Load(); total > 0 {
		msg += " " + SubtleStyle.Render(fmt.Sprintf("(%d of %d documents finished)", h.done.Load(), total))
	}
	if h.saving {
		msg += "\n" + FormatInfo("Receipts finished so far have been saved; rerun to process the rest.")
	}
	return msg + "\n"
}
