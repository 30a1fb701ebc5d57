package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

// sessionJSON is the wire shape of a session as the API returns it.
type sessionJSON struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	TemplateID string `json:"template_id"`
	Repository string `json:"repository"`
	TunnelURL  string `json:"tunnel_url"`
	Status     struct {
		Phase   string `json:"phase"`
		Message string `json:"message"`
	} `json:"status"`
	PullRequest *struct {
		URL    string `json:"url"`
		Number int    `json:"number"`
	} `json:"pull_request"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

var listUser string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	RunE:  runList,
}

var statusCmd = &cobra.Command{
	Use:   "status [session-id]",
	Short: "Get the status of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var logsCmd = &cobra.Command{
	Use:   "logs [session-id]",
	Short: "Stream session events",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogs,
}

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List available templates",
	RunE:  runTemplates,
}

func init() {
	listCmd.Flags().StringVarP(&listUser, "user", "u", "", "Only sessions created by this user")
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(templatesCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	url := serverURL + "/api/sessions"
	if listUser != "" {
		url += "?created_by=" + listUser
	}

	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("connecting to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))
	}

	var sessions []sessionJSON
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions")
		return nil
	}
	for _, s := range sessions {
		fmt.Printf("%-10s %-24s %-24s %s\n", s.ID, statusLabel(s), truncate(s.Name, 24), s.TunnelURL)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	id := args[0]

	resp, err := http.Get(serverURL + "/api/sessions/" + id)
	if err != nil {
		return fmt.Errorf("connecting to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))
	}

	var sess sessionJSON
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	fmt.Printf("Session:   %s\n", sess.ID)
	fmt.Printf("Name:      %s\n", sess.Name)
	fmt.Printf("Template:  %s\n", sess.TemplateID)
	fmt.Printf("Status:    %s\n", statusLabel(sess))
	if sess.Repository != "" {
		fmt.Printf("Repo:      %s\n", sess.Repository)
	}
	if sess.TunnelURL != "" {
		fmt.Printf("Preview:   %s\n", sess.TunnelURL)
	}
	if sess.PullRequest != nil {
		fmt.Printf("PR:        %s (#%d)\n", sess.PullRequest.URL, sess.PullRequest.Number)
	}
	fmt.Printf("Created:   %s\n", sess.CreatedAt)
	fmt.Printf("Updated:   %s\n", sess.UpdatedAt)

	return nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	return streamEvents(args[0], false)
}

func runTemplates(cmd *cobra.Command, args []string) error {
	resp, err := http.Get(serverURL + "/api/templates")
	if err != nil {
		return fmt.Errorf("connecting to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))
	}

	var templates []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&templates); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}

	for _, t := range templates {
		fmt.Printf("%-16s %-24s %s\n", t.ID, t.Name, t.Description)
	}
	return nil
}

func statusLabel(s sessionJSON) string {
	if s.Status.Message != "" {
		return s.Status.Phase + ": " + s.Status.Message
	}
	return s.Status.Phase
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
