// Package sandbox abstracts the isolated execution environment that hosts a
// session's working copy, dev server, and coding agent.
package sandbox

import (
	"bufio"
	"context"
	"io"
	"os/exec"
)

// CreateOptions configures a new sandbox.
type CreateOptions struct {
	SessionID string
	Image     string   // runtime image
	Env       []string // additional environment variables ("KEY=VALUE")
}

// ExecOptions configures a command execution inside a sandbox.
type ExecOptions struct {
	// Background starts the command detached and returns immediately with
	// empty output. Used for long-lived processes such as dev servers.
	Background bool
	// Dir is the working directory inside the sandbox. Empty means the
	// runtime default.
	Dir string
}

// ExecResult is the outcome of a foreground command.
type ExecResult struct {
	SandboxID string
	Output    string
	ExitCode  int
}

// GenerateOptions configures an agent run inside a sandbox.
type GenerateOptions struct {
	// SystemPrompt steers the agent; usually the template's system prompt.
	SystemPrompt string
	// Resume continues the agent's previous conversation in this sandbox.
	Resume bool
}

// Runtime is the sandbox lifecycle and execution interface.
type Runtime interface {
	// Create provisions a sandbox and returns its ID.
	Create(ctx context.Context, opts CreateOptions) (string, error)
	// Resume reconnects to an existing sandbox, restarting it if stopped.
	Resume(ctx context.Context, sandboxID string) error
	// Exec runs a shell command in the sandbox.
	Exec(ctx context.Context, sandboxID, command string, opts ExecOptions) (*ExecResult, error)
	// Host returns the externally reachable "host:port" for a sandbox port.
	Host(ctx context.Context, sandboxID string, port int) (string, error)
	// Generate runs the coding agent with the given prompt and returns a
	// line stream of its JSON events. The caller must Close the stream.
	Generate(ctx context.Context, sandboxID, prompt string, opts GenerateOptions) (*LineScanner, error)
	// Kill stops and removes a sandbox. Killing an unknown sandbox is not
	// an error.
	Kill(ctx context.Context, sandboxID string) error
}

// LineScanner reads a process's merged output line by line.
type LineScanner struct {
	scanner *bufio.Scanner
	cmd     *exec.Cmd
}

// NewLineScanner wraps a started command and its merged output reader.
func NewLineScanner(cmd *exec.Cmd, merged io.Reader) *LineScanner {
	scanner := bufio.NewScanner(merged)
	scanner.Buffer(make([]byte, 0, 256*1024), 1024*1024)
	return &LineScanner{scanner: scanner, cmd: cmd}
}

// Scan advances to the next line. Returns false when done.
func (ls *LineScanner) Scan() bool {
	return ls.scanner.Scan()
}

// Text returns the current line.
func (ls *LineScanner) Text() string {
	return ls.scanner.Text()
}

// Err returns any error from scanning.
func (ls *LineScanner) Err() error {
	return ls.scanner.Err()
}

// Close terminates the underlying process.
func (ls *LineScanner) Close() error {
	if ls.cmd == nil {
		return nil
	}
	if ls.cmd.Process != nil {
		_ = ls.cmd.Process.Kill()
	}
	return ls.cmd.Wait()
}
