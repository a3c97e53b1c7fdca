package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Spinner is a one-line activity indicator on stderr. Once SetProgress has
// been called it draws a progress bar next to the message instead of a
// rotating glyph.
type Spinner struct {
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	stopped chan struct{}
	frames  []string
	out     io.Writer

	mu       sync.Mutex
	message  string
	progress float64 // negative until SetProgress
	width    int     // widest line drawn, for clearing
}

// newSpinnerWithContext creates a spinner that will stop when the context is cancelled.
func newSpinnerWithContext(ctx context.Context, message string) *Spinner {
	spinnerCtx, cancel := context.WithCancel(ctx)
	return &Spinner{
		message:  message,
		progress: -1,
		ctx:      spinnerCtx,
		cancel:   cancel,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		frames:   []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		out:      os.Stderr,
	}
}

// SetMessage replaces the message shown next to the indicator.
func (s *Spinner) SetMessage(msg string) {
	s.mu.Lock()
	s.message = msg
	s.mu.Unlock()
}

// SetProgress switches to a progress bar showing frac in [0, 1].
func (s *Spinner) SetProgress(frac float64) {
	s.mu.Lock()
	s.progress = frac
	s.mu.Unlock()
}

// line renders the indicator for animation step i.
func (s *Spinner) line(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progress >= 0 {
		return fmt.Sprintf("%s %3.0f%% %s", progressBar(s.progress, 24), s.progress*100, StyleDim.Render(s.message))
	}
	return styleIconSpinner.Render(s.frames[i%len(s.frames)]) + " " + StyleDim.Render(s.message)
}

// Start begins the animation.
func (s *Spinner) Start() {
	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		i := 0
		for {
			select {
			case <-s.ctx.Done():
				s.clearLine()
				return
			case <-s.done:
				return
			case <-ticker.C:
				l := s.line(i)
				s.mu.Lock()
				s.width = max(s.width, len(l))
				fmt.Fprintf(s.out, "\r%s", l)
				s.mu.Unlock()
				i++
			}
		}
	}()
}

// Stop stops the spinner and clears the line.
func (s *Spinner) Stop() {
	s.cancel()
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	<-s.stopped
	s.clearLine()
}

func (s *Spinner) clearLine() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.width > 0 {
		fmt.Fprintf(s.out, "\r%*s\r", s.width, "")
	}
}

// StopWithSuccess stops the spinner and shows a success message.
func (s *Spinner) StopWithSuccess(message string) {
	s.Stop()
	printSuccess("%s", message)
}

// StopWithError stops the spinner and shows an error message.
func (s *Spinner) StopWithError(message string) {
	s.Stop()
	printError("%s", message)
}

// Cancelled returns true if the spinner was stopped due to context cancellation.
func (s *Spinner) Cancelled() bool {
	return s.ctx.Err() != nil
}
