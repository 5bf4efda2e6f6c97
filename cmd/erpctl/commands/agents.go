package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"erpinsight/internal/agents"
)

var (
	agentsJSON     bool
	routeJSON      bool
	routeThreshold float64
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the built-in specialist agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		descs := agents.DefaultRegistry().All()
		if agentsJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(descs)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTHRESHOLD\tCAPABILITIES")
		for _, d := range descs {
			fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\n", d.ID, d.Name, d.ConfidenceThreshold, strings.Join(d.Capabilities, ", "))
		}
		return w.Flush()
	},
}

var routeCmd = &cobra.Command{
	Use:   "route <query>",
	Short: "Show how a query would be routed, without calling any agent",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		registry := agents.DefaultRegistry()
		if routeThreshold > 0 {
			registry = registry.WithThreshold(routeThreshold)
		}
		router := agents.NewRouter(registry)

		decision := router.Decide(query)
		selected := router.SelectAgents(query)

		if routeJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]interface{}{
				"decision":        decision,
				"selected_agents": selected,
			})
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "agent:       %s\n", decision.AgentID)
		fmt.Fprintf(out, "confidence:  %.2f\n", decision.Confidence)
		fmt.Fprintf(out, "recommended: %t\n", decision.Recommended)
		fmt.Fprintf(out, "multi-agent: %s\n", strings.Join(selected, ", "))

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "\nAGENT\tKEYWORD HITS")
		for _, id := range registry.IDs() {
			fmt.Fprintf(w, "%s\t%d\n", id, decision.Scores[id])
		}
		return w.Flush()
	},
}

func init() {
	agentsCmd.Flags().BoolVar(&agentsJSON, "json", false, "Output as JSON")
	routeCmd.Flags().BoolVar(&routeJSON, "json", false, "Output as JSON")
	routeCmd.Flags().Float64Var(&routeThreshold, "threshold", 0, "Override the recommendation threshold")
}
