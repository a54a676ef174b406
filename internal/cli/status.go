package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/iris-network/iris/internal/daemon"
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(nodesCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running coordinator's health and pool counts",
	RunE:  runStatus,
}

var nodesCmd = &cobra.Command{
	Use:   "nodes",
	Short: "List workers connected to the running coordinator",
	RunE:  runNodes,
}

// apiGet queries the locally running coordinator over HTTP.
func apiGet(path string, out any) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	url := fmt.Sprintf("http://%s:%d%s", cfg.API.Host, cfg.API.Port, path)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("coordinator not reachable at %s (is 'iris serve' running?)", url)
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func runStatus(cmd *cobra.Command, args []string) error {
	var health struct {
		Healthy bool `json:"healthy"`
		Checks  []struct {
			Name    string `json:"name"`
			Healthy bool   `json:"healthy"`
			Error   string `json:"error"`
		} `json:"checks"`
	}
	if err := apiGet("/health", &health); err != nil {
		return err
	}
	var stats struct {
		NodesConnected int            `json:"nodes_connected"`
		NodesOnline    int            `json:"nodes_online"`
		StreamSessions int            `json:"stream_sessions"`
		Breakers       map[string]int `json:"breakers"`
	}
	if err := apiGet("/stats", &stats); err != nil {
		return err
	}

	state := "healthy"
	if !health.Healthy {
		state = "unhealthy"
	}
	fmt.Printf("Status:   %s\n", state)
	for _, c := range health.Checks {
		if !c.Healthy {
			fmt.Printf("  %s: %s\n", c.Name, c.Error)
		}
	}
	fmt.Printf("Workers:  %d connected, %d online\n", stats.NodesConnected, stats.NodesOnline)
	fmt.Printf("Streams:  %d active\n", stats.StreamSessions)
	if open := stats.Breakers["open"]; open > 0 {
		fmt.Printf("Breakers: %d open\n", open)
	}
	return nil
}

func runNodes(cmd *cobra.Command, args []string) error {
	var resp struct {
		Nodes []struct {
			NodeID     string  `json:"node_id"`
			Tier       string  `json:"tier"`
			Model      string  `json:"model"`
			Vision     bool    `json:"vision"`
			Reputation float64 `json:"reputation"`
			Load       int     `json:"current_load"`
			LatencyMS  float64 `json:"latency_ms"`
		} `json:"nodes"`
	}
	if err := apiGet("/nodes", &resp); err != nil {
		return err
	}
	if len(resp.Nodes) == 0 {
		fmt.Println("No workers connected.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NODE\tTIER\tMODEL\tVISION\tLOAD\tREPUTATION\tLATENCY")
	for _, n := range resp.Nodes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\t%.1f\t%.0fms\n",
			n.NodeID, n.Tier, n.Model, n.Vision, n.Load, n.Reputation, n.LatencyMS)
	}
	return w.Flush()
}
