package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/imgajeed76/gridsync/internal/ui/styles"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner animates a one-line progress marker on a terminal while a
// command waits for a backend.
type Spinner struct {
	out     io.Writer
	message string
	tty     bool
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewSpinner creates a spinner writing to stderr.
func NewSpinner(message string) *Spinner {
	return NewSpinnerTo(os.Stderr, message, term.IsTerminal(int(os.Stderr.Fd())))
}

// NewSpinnerTo creates a spinner writing to out. Without a tty only the
// message is printed.
func NewSpinnerTo(out io.Writer, message string, tty bool) *Spinner {
	return &Spinner{out: out, message: message, tty: tty, done: make(chan struct{})}
}

// Start begins the spinner animation in the background
func (s *Spinner) Start() {
	if styles.IsAccessible() || !s.tty {
		fmt.Fprintln(s.out, s.message+"...")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		style := lipgloss.NewStyle().Foreground(styles.Accent)
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for i := 0; ; i++ {
			select {
			case <-s.done:
				fmt.Fprint(s.out, "\r\033[K")
				return
			case <-ticker.C:
				fmt.Fprintf(s.out, "\r%s %s", styles.Render(style, spinnerFrames[i%len(spinnerFrames)]), s.message)
			}
		}
	}()
}

// Stop stops the spinner and waits for the line to be cleared.
func (s *Spinner) Stop() {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
}

// Success stops the spinner and shows a success message
func (s *Spinner) Success(msg string) {
	s.Stop()
	fmt.Fprintln(s.out, styles.SuccessMsg(msg))
}

// Error stops the spinner and shows an error message
func (s *Spinner) Error(msg string) {
	s.Stop()
	fmt.Fprintln(s.out, styles.ErrorMsg(msg))
}
