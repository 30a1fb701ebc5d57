package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	createTemplate string
	createRepo     string
	createUser     string
	createDetach   bool
)

var createCmd = &cobra.Command{
	Use:   "create [message]",
	Short: "Create a new session",
	Long: `Create a session that provisions a sandbox from a template, starts the
dev server behind a tunnel, and optionally runs the coding agent on an
initial message.

Example:
  vibe0 create --template nextjs "a todo app with dark mode"
  vibe0 create --template nextjs --repo myorg/myapp`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCreate,
}

func init() {
	createCmd.Flags().StringVarP(&createTemplate, "template", "t", "", "Template ID (see: vibe0 templates)")
	createCmd.Flags().StringVarP(&createRepo, "repo", "r", "", "Existing GitHub repository (owner/repo) to clone instead of the template scaffold")
	createCmd.Flags().StringVarP(&createUser, "user", "u", "", "Creator identity recorded on the session")
	createCmd.Flags().BoolVarP(&createDetach, "detach", "d", false, "Do not stream events after creating")
	createCmd.MarkFlagRequired("template")
	rootCmd.AddCommand(createCmd)
}

func runCreate(cmd *cobra.Command, args []string) error {
	reqPayload := map[string]string{
		"template_id": createTemplate,
	}
	if len(args) == 1 {
		reqPayload["message"] = args[0]
	}
	if createRepo != "" {
		reqPayload["repository"] = createRepo
	}
	if createUser != "" {
		reqPayload["created_by"] = createUser
	}
	body, _ := json.Marshal(reqPayload)

	resp, err := http.Post(serverURL+"/api/sessions", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("connecting to server: %w\nIs the server running? Start it with: vibe0 serve", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(respBody))
	}

	var sess sessionJSON
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	fmt.Printf("Session %s created (template: %s)\n", sess.ID, sess.TemplateID)
	if createDetach {
		return nil
	}
	fmt.Printf("Streaming events...\n\n")

	return streamEvents(sess.ID, true)
}

// streamEvents follows a session's SSE stream and prints events. When
// untilRunning is set it returns once the session reaches RUNNING (or fails).
func streamEvents(sessionID string, untilRunning bool) error {
	req, _ := http.NewRequest("GET", serverURL+"/api/sessions/"+sessionID+"/events", nil)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to event stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(respBody))
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()

		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		data := strings.TrimPrefix(line, "data: ")
		var msg struct {
			Topic   string `json:"topic"`
			Payload struct {
				Phase    string `json:"phase"`
				Message  string `json:"message"`
				Role     string `json:"role"`
				Kind     string `json:"kind"`
				Content  string `json:"content"`
				Edits    *struct {
					FilePath string `json:"filePath"`
				} `json:"edits"`
				Read *struct {
					FilePath string `json:"filePath"`
				} `json:"read"`
			} `json:"payload"`
		}
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}

		switch msg.Topic {
		case "status":
			p := msg.Payload
			if p.Message != "" {
				fmt.Printf("\033[36m[status]\033[0m %s: %s\n", p.Phase, p.Message)
			} else {
				fmt.Printf("\033[36m[status]\033[0m %s\n", p.Phase)
			}
			switch p.Phase {
			case "RUNNING":
				if untilRunning {
					printTunnel(sessionID)
					return nil
				}
			case "FAILED":
				fmt.Fprintf(os.Stderr, "\033[31m[failed]\033[0m %s\n", p.Message)
				if untilRunning {
					return fmt.Errorf("session failed")
				}
			}
		case "update":
			p := msg.Payload
			switch {
			case p.Edits != nil:
				fmt.Printf("\033[33m[edit]\033[0m %s\n", p.Edits.FilePath)
			case p.Read != nil:
				fmt.Printf("\033[33m[read]\033[0m %s\n", p.Read.FilePath)
			case p.Kind == "todos":
				fmt.Printf("\033[33m[todos]\033[0m updated\n")
			case p.Content != "":
				fmt.Printf("[%s] %s\n", p.Role, p.Content)
			}
		}
	}

	return scanner.Err()
}

func printTunnel(sessionID string) {
	resp, err := http.Get(serverURL + "/api/sessions/" + sessionID)
	if err != nil {
		return
	}
	defer resp.Body.Close()

	var sess sessionJSON
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return
	}
	if sess.TunnelURL != "" {
		fmt.Printf("\n\033[32m✓ Ready:\033[0m %s\n", sess.TunnelURL)
	}
}
