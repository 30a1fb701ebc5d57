// Package docker implements sandbox.Runtime on the Docker CLI. Each sandbox
// is one long-lived container that commands are exec'd into.
package docker

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/superagent-ai/vibe0/sandbox"
)

// DefaultImage is used when a template does not name a runtime image.
const DefaultImage = "superagentai/vibekit-claude:1.0"

// Runtime manages Docker-backed sandboxes.
type Runtime struct {
	// AgentCommand launches the coding agent inside the container. The
	// prompt is passed on stdin and events are emitted as JSON lines.
	AgentCommand string
	// AgentEnv is passed to every agent run (API keys and the like).
	AgentEnv []string
	// Image overrides DefaultImage for templates that do not name one.
	Image string

	log *logrus.Logger
}

// New creates a Docker runtime.
func New(agentCommand string, agentEnv []string, log *logrus.Logger) *Runtime {
	if agentCommand == "" {
		agentCommand = `claude -p --output-format stream-json --verbose --dangerously-skip-permissions`
	}
	return &Runtime{
		AgentCommand: agentCommand,
		AgentEnv:     agentEnv,
		log:          log,
	}
}

// Create starts a keep-alive container and returns its ID.
func (r *Runtime) Create(ctx context.Context, opts sandbox.CreateOptions) (string, error) {
	image := opts.Image
	if image == "" {
		image = r.Image
	}
	if image == "" {
		image = DefaultImage
	}
	args := runArgs(opts.SessionID, image, opts.Env)

	cmd := exec.CommandContext(ctx, "docker", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("starting container: %w\noutput: %s", err, string(output))
	}
	return strings.TrimSpace(string(output)), nil
}

// Resume restarts a stopped container. Running containers are left alone.
func (r *Runtime) Resume(ctx context.Context, sandboxID string) error {
	cmd := exec.CommandContext(ctx, "docker", "start", sandboxID)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("resuming container: %w\noutput: %s", err, string(output))
	}
	return nil
}

// Exec runs a shell command inside the container.
func (r *Runtime) Exec(ctx context.Context, sandboxID, command string, opts sandbox.ExecOptions) (*sandbox.ExecResult, error) {
	args := execArgs(sandboxID, command, opts)

	cmd := exec.CommandContext(ctx, "docker", args...)
	output, err := cmd.CombinedOutput()
	res := &sandbox.ExecResult{
		SandboxID: sandboxID,
		Output:    string(output),
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
			return res, fmt.Errorf("command exited %d: %s", res.ExitCode, strings.TrimSpace(res.Output))
		}
		return nil, fmt.Errorf("executing command: %w", err)
	}
	return res, nil
}

// Host returns the host address mapped to a container port.
func (r *Runtime) Host(ctx context.Context, sandboxID string, port int) (string, error) {
	cmd := exec.CommandContext(ctx, "docker", "port", sandboxID, fmt.Sprintf("%d/tcp", port))
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("resolving port %d: %w\noutput: %s", port, err, string(output))
	}
	// docker port may print one mapping per address family; use the first.
	host := strings.TrimSpace(strings.SplitN(string(output), "\n", 2)[0])
	if host == "" {
		return "", fmt.Errorf("port %d is not published", port)
	}
	return host, nil
}

// Generate launches the coding agent in the container and streams its JSON
// event lines. The prompt is written to the agent's stdin.
func (r *Runtime) Generate(ctx context.Context, sandboxID, prompt string, opts sandbox.GenerateOptions) (*sandbox.LineScanner, error) {
	agent := r.AgentCommand
	if opts.Resume {
		agent += " --continue"
	}
	if opts.SystemPrompt != "" {
		agent += fmt.Sprintf(" --append-system-prompt %q", opts.SystemPrompt)
	}

	args := []string{"exec", "-i"}
	for _, e := range r.AgentEnv {
		args = append(args, "-e", e)
	}
	args = append(args, sandboxID, "sh", "-lc", agent)

	cmd := exec.CommandContext(ctx, "docker", args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("attaching stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("attaching stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("attaching stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting agent: %w", err)
	}

	go func() {
		defer stdin.Close()
		_, _ = io.WriteString(stdin, prompt)
	}()

	merged := io.MultiReader(stdout, stderr)
	return sandbox.NewLineScanner(cmd, merged), nil
}

// Kill stops and removes the container. Unknown containers are ignored.
func (r *Runtime) Kill(ctx context.Context, sandboxID string) error {
	_ = exec.CommandContext(ctx, "docker", "kill", sandboxID).Run()

	cmd := exec.CommandContext(ctx, "docker", "rm", "-f", sandboxID)
	if output, err := cmd.CombinedOutput(); err != nil {
		out := string(output)
		if strings.Contains(out, "No such container") {
			return nil
		}
		return fmt.Errorf("removing container: %w\noutput: %s", err, out)
	}
	return nil
}

// runArgs builds the docker run argument list for a new sandbox.
func runArgs(sessionID, image string, env []string) []string {
	args := []string{
		"run", "-d",
		"--name", fmt.Sprintf("vibe0-%s", sessionID),
		"--label", "vibe0.session=" + sessionID,
		"-P",
	}
	for _, e := range env {
		args = append(args, "-e", e)
	}
	args = append(args, image, "sleep", "infinity")
	return args
}

// execArgs builds the docker exec argument list for a command.
func execArgs(sandboxID, command string, opts sandbox.ExecOptions) []string {
	args := []string{"exec"}
	if opts.Background {
		args = append(args, "-d")
	}
	if opts.Dir != "" {
		args = append(args, "-w", opts.Dir)
	}
	args = append(args, sandboxID, "sh", "-lc", command)
	return args
}
