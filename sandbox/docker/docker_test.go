package docker

import (
	"strings"
	"testing"

	"github.com/superagent-ai/vibe0/sandbox"
)

func TestRunArgs(t *testing.T) {
	args := runArgs("abc123", "superagentai/vibekit-claude:1.0", []string{"FOO=bar"})

	joined := strings.Join(args, " ")
	for _, want := range []string{
		"--name vibe0-abc123",
		"--label vibe0.session=abc123",
		"-e FOO=bar",
		"-P",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("run args missing %q: %v", want, args)
		}
	}
	if args[len(args)-2] != "sleep" || args[len(args)-1] != "infinity" {
		t.Fatalf("container must be kept alive: %v", args)
	}
}

func TestExecArgsForeground(t *testing.T) {
	args := execArgs("sbx1", "npm install", sandbox.ExecOptions{Dir: "/app"})
	joined := strings.Join(args, " ")

	if strings.Contains(joined, " -d ") {
		t.Fatalf("foreground exec must not be detached: %v", args)
	}
	if !strings.Contains(joined, "-w /app") {
		t.Fatalf("working dir missing: %v", args)
	}
	if args[len(args)-1] != "npm install" {
		t.Fatalf("command must be final argument: %v", args)
	}
}

func TestExecArgsBackground(t *testing.T) {
	args := execArgs("sbx1", "npm run dev", sandbox.ExecOptions{Background: true})
	if args[1] != "-d" {
		t.Fatalf("background exec must be detached: %v", args)
	}
}
