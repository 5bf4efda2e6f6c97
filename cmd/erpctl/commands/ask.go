package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"erpinsight/internal/agents"
	agentsapi "erpinsight/internal/api/agents"
	"erpinsight/pkg/errors"
)

var (
	askServer      string
	askUser        string
	askBearer      string
	askRealm       string
	askAccessToken string
	askAgent       string
	askMulti       bool
	askJSON        bool
	askTimeout     time.Duration
)

var askCmd = &cobra.Command{
	Use:   "ask <query>",
	Short: "Send a question to a running erpinsight server",
	Long: `ask posts the query to /api/agents/query, or /api/agents/multi-query
with --multi, and prints the analysis and recommendations.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]interface{}{"query": strings.Join(args, " ")}
		path := "/api/agents/query"
		if askMulti {
			path = "/api/agents/multi-query"
		} else if askAgent != "" {
			body["agent_id"] = askAgent
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), askTimeout)
		defer cancel()

		var result agents.AgentResult
		if err := postJSON(ctx, path, body, &result); err != nil {
			return err
		}

		if askJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}
		printResult(cmd.OutOrStdout(), &result)
		return nil
	},
}

func init() {
	f := askCmd.Flags()
	f.StringVar(&askServer, "server", envOr("ERPINSIGHT_URL", "http://localhost:8000"), "Server base URL")
	f.StringVar(&askUser, "user", os.Getenv("ERPINSIGHT_USER"), "User id sent as X-User-Id when the server runs without JWT auth")
	f.StringVar(&askBearer, "token", os.Getenv("ERPINSIGHT_TOKEN"), "API bearer token")
	f.StringVar(&askRealm, "realm", os.Getenv("QB_REALM_ID"), "QuickBooks realm id")
	f.StringVar(&askAccessToken, "access-token", os.Getenv("QB_ACCESS_TOKEN"), "QuickBooks access token")
	f.StringVar(&askAgent, "agent", "", "Force a specific agent instead of routing")
	f.BoolVar(&askMulti, "multi", false, "Run the multi-agent pipeline")
	f.BoolVar(&askJSON, "json", false, "Print the raw result")
	f.DurationVar(&askTimeout, "timeout", 3*time.Minute, "Request timeout")
}

func postJSON(ctx context.Context, path string, body, dst interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(askServer, "/")+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if askBearer != "" {
		req.Header.Set("Authorization", "Bearer "+askBearer)
	}
	if askUser != "" {
		req.Header.Set(agentsapi.HeaderUserID, askUser)
	}
	if askAccessToken != "" {
		req.Header.Set(agentsapi.HeaderAccessToken, askAccessToken)
	}
	if askRealm != "" {
		req.Header.Set(agentsapi.HeaderRealmID, askRealm)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response")
	}
	if resp.StatusCode >= 300 {
		return errors.Newf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return json.Unmarshal(data, dst)
}

func printResult(out io.Writer, r *agents.AgentResult) {
	fmt.Fprintf(out, "[%s]\n\n%s\n", r.AgentID, r.Response)
	if r.Error != "" {
		fmt.Fprintf(out, "\nerror: %s\n", r.Error)
	}
	if len(r.Recommendations) > 0 {
		fmt.Fprintln(out, "\nRecommendations:")
		for i, rec := range r.Recommendations {
			fmt.Fprintf(out, "  %d. %s\n", i+1, rec)
		}
	}
	if len(r.MultiAgentResults) > 0 {
		ids := make([]string, 0, len(r.MultiAgentResults))
		for id := range r.MultiAgentResults {
			ids = append(ids, id)
		}
		fmt.Fprintf(out, "\nAgents: %s\n", strings.Join(ids, ", "))
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
