// Package subproc wraps external command-line tools as event channels.
//
// A Channel spawns one process with an explicit argument vector (no shell
// interpolation), wires its standard input/output as streams suitable for
// piping, and classifies its diagnostic (stderr) stream into structured
// events. Abnormal termination surfaces as typed errors.
package subproc

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// EventKind discriminates diagnostic-stream events.
type EventKind int

const (
	// EventPosition reports elapsed media time processed so far.
	EventPosition EventKind = iota
	// EventTotalDuration reports the media length, parsed once per process.
	EventTotalDuration
	// EventPercent reports a completion percentage.
	EventPercent
)

// Event is one structured observation from a process's diagnostic stream.
type Event struct {
	Kind    EventKind
	Millis  int64   // position or duration in milliseconds
	Percent float64 // for EventPercent
}

// Classifier turns one diagnostic line into zero or more events.
// Returning nil means the line carried no structured information.
type Classifier func(line string) []Event

// stderrTailSize bounds the retained diagnostic lines used in errors.
const stderrTailSize = 20

// eventBufferSize bounds the events channel. Position updates beyond it are
// dropped rather than blocking the stderr reader.
const eventBufferSize = 64

// termGrace is how long a signalled process may linger before it is killed.
const termGrace = 5 * time.Second

// Channel owns one spawned process's streams and lifecycle.
type Channel struct {
	name          string
	binary        string
	args          []string
	classify      Classifier
	fatalPatterns []string
	logger        *slog.Logger

	stdin  io.Reader
	stdout io.Writer

	mu         sync.Mutex
	cmd        *exec.Cmd
	terminated bool
	fatal      *FatalDiagnosticError
	tail       []string

	events     chan Event
	stderrDone chan struct{}
	procDone   chan struct{}
	reapOnce   sync.Once
}

// Option configures a Channel.
type Option func(*Channel)

// WithClassifier sets the diagnostic line classifier.
func WithClassifier(fn Classifier) Option {
	return func(c *Channel) { c.classify = fn }
}

// WithFatalPatterns sets substrings that indicate failure even before exit.
func WithFatalPatterns(patterns []string) Option {
	return func(c *Channel) { c.fatalPatterns = patterns }
}

// WithStdin connects the process's standard input to r.
func WithStdin(r io.Reader) Option {
	return func(c *Channel) { c.stdin = r }
}

// WithStdout connects the process's standard output to w.
func WithStdout(w io.Writer) Option {
	return func(c *Channel) { c.stdout = w }
}

// WithLogger sets the channel's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Channel) { c.logger = logger }
}

// New creates a Channel for one invocation of binary with args.
// Each argument is passed as a discrete token; nothing is shell-interpreted.
func New(name, binary string, args []string, opts ...Option) *Channel {
	c := &Channel{
		name:       name,
		binary:     binary,
		args:       args,
		logger:     slog.Default(),
		events:     make(chan Event, eventBufferSize),
		stderrDone: make(chan struct{}),
		procDone:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("process", name))
	return c
}

// String returns the command line for logging.
func (c *Channel) String() string {
	return c.binary + " " + strings.Join(c.args, " ")
}

// StdoutPipe returns the process's standard output as a stream for piping.
// Must be called before Start and is mutually exclusive with WithStdout.
func (c *Channel) StdoutPipe() (io.ReadCloser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureCmd()
	return c.cmd.StdoutPipe()
}

func (c *Channel) ensureCmd() {
	if c.cmd == nil {
		// Built without a context so callers can grab pipes before Start;
		// Start wires cancellation through watchContext.
		c.cmd = exec.Command(c.binary, c.args...)
		if c.stdin != nil {
			c.cmd.Stdin = c.stdin
		}
		if c.stdout != nil {
			c.cmd.Stdout = c.stdout
		}
	}
}

// Start spawns the process and begins classifying its diagnostic stream.
// Cancelling ctx sends the process a termination signal even when it emits
// no diagnostic output, escalating to a kill after termGrace.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	c.ensureCmd()
	cmd := c.cmd

	stderr, err := cmd.StderrPipe()
	if err != nil {
		c.mu.Unlock()
		return &SpawnError{Name: c.name, Err: err}
	}

	if err := cmd.Start(); err != nil {
		c.mu.Unlock()
		return &SpawnError{Name: c.name, Err: err}
	}
	c.mu.Unlock()

	c.logger.Debug("process started", slog.String("cmd", c.String()))

	go c.scanStderr(ctx, stderr)
	go c.watchContext(ctx)
	return nil
}

// watchContext terminates the process when ctx is cancelled, without relying
// on the diagnostic stream: a silent or stalled process still gets the
// signal. Returns as soon as the process is reaped.
func (c *Channel) watchContext(ctx context.Context) {
	select {
	case <-c.procDone:
		return
	case <-ctx.Done():
	}

	c.Terminate()

	select {
	case <-c.procDone:
	case <-time.After(termGrace):
		c.logger.Warn("process ignored termination signal, killing")
		c.kill()
	}
}

func (c *Channel) kill() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
}

// Events returns the structured diagnostic events. Closed when the
// diagnostic stream ends.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// scanStderr reads diagnostic lines, watches for fatal patterns, and emits
// classified events. Cancellation is observed once per line so a stuck
// consumer cannot delay it past one diagnostic-event interval.
func (c *Channel) scanStderr(ctx context.Context, stderr io.Reader) {
	defer close(c.events)
	defer close(c.stderrDone)

	scanner := bufio.NewScanner(stderr)
	// Progress lines from media tools use carriage returns to repaint a
	// single status line; split on CR as well as LF.
	scanner.Split(scanCRLFLines)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		c.recordTail(line)

		if ctx.Err() != nil {
			c.Terminate()
			return
		}

		if pattern := c.matchFatal(line); pattern != "" {
			c.mu.Lock()
			c.fatal = &FatalDiagnosticError{Name: c.name, Pattern: pattern, Line: line}
			c.mu.Unlock()
			c.logger.Warn("fatal diagnostic matched", slog.String("line", line))
			c.Terminate()
			return
		}

		if c.classify == nil {
			continue
		}
		for _, ev := range c.classify(line) {
			select {
			case c.events <- ev:
			default:
				// Never block the diagnostic reader on a slow consumer;
				// position updates are safe to drop.
			}
		}
	}
}

func (c *Channel) recordTail(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tail) >= stderrTailSize {
		c.tail = c.tail[1:]
	}
	c.tail = append(c.tail, line)
}

func (c *Channel) matchFatal(line string) string {
	for _, p := range c.fatalPatterns {
		if strings.Contains(line, p) {
			return p
		}
	}
	return ""
}

// StderrTail returns the most recent diagnostic lines.
func (c *Channel) StderrTail() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.tail))
	copy(out, c.tail)
	return out
}

// Terminate sends the process a termination signal. Idempotent.
func (c *Channel) Terminate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.terminated || c.cmd == nil || c.cmd.Process == nil {
		return
	}
	c.terminated = true
	if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		// Already gone, or not signalable; force it.
		_ = c.cmd.Process.Kill()
	}
}

// Wait blocks until the process closes and returns its terminal state:
// nil on exit code 0, *FatalDiagnosticError when a fatal pattern fired, and
// *ExitError otherwise. The diagnostic stream is fully drained before Wait
// inspects the outcome.
func (c *Channel) Wait() error {
	c.mu.Lock()
	cmd := c.cmd
	c.mu.Unlock()
	if cmd == nil {
		return &SpawnError{Name: c.name, Err: errors.New("process not started")}
	}

	// Drain the diagnostic stream before reaping; Wait closes the pipes.
	<-c.stderrDone
	waitErr := cmd.Wait()
	c.reapOnce.Do(func() { close(c.procDone) })

	c.mu.Lock()
	fatal := c.fatal
	terminated := c.terminated
	tail := make([]string, len(c.tail))
	copy(tail, c.tail)
	c.mu.Unlock()

	// A fatal diagnostic takes precedence over the exit status it caused.
	if fatal != nil {
		return fatal
	}

	if waitErr == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		code := exitErr.ExitCode()
		signal := ""
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			// Canonical names ("SIGTERM", "SIGPIPE"), not the prose forms
			// Signal.String returns ("terminated", "broken pipe").
			signal = unix.SignalName(status.Signal())
		}
		if terminated && signal != "" {
			// We asked for this; the caller maps it to its own cause.
			c.logger.Debug("process terminated on request", slog.String("signal", signal))
		}
		return &ExitError{Name: c.name, Code: code, Signal: signal, StderrTail: tail}
	}

	// I/O plumbing errors (stdout copy into a sink, stdin feed) surface here.
	return &ExitError{Name: c.name, Code: -1, StderrTail: append(tail, waitErr.Error())}
}

// scanCRLFLines is a bufio.SplitFunc treating both \n and \r as terminators.
func scanCRLFLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, dropTrailingCR(data[:i]), nil
		}
	}
	if atEOF {
		return len(data), dropTrailingCR(data), nil
	}
	return 0, nil, nil
}

func dropTrailingCR(data []byte) []byte {
	if len(data) > 0 && data[len(data)-1] == '\r' {
		return data[:len(data)-1]
	}
	return data
}
