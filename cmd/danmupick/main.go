package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"danmustream/danmuservice/internal/client"
	"danmustream/danmuservice/internal/domain"
	"danmustream/danmuservice/internal/tui"
)

type options struct {
	server   string
	provider string
	timeout  time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "danmupick [query]",
		Short: "Pick a danmu episode from the danmu search service",
		Long: "danmupick searches the danmu service for a title, lets you open one source and\n" +
			"choose an episode, then prints the chosen episode id.",
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(opts)
			if err != nil {
				return err
			}
			model := tui.New(cmd.Context(), c, opts.provider, strings.Join(args, " "))
			if _, err := tea.NewProgram(model, tea.WithContext(cmd.Context())).Run(); err != nil {
				return err
			}
			if id, ok := model.Chosen(); ok {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&opts.server, "server", "s", envOr("DANMU_SERVER_URL", "http://localhost:8091"), "Base URL of the danmu search service")
	root.PersistentFlags().StringVarP(&opts.provider, "provider", "p", "", "Provider key sent as resourceId (empty uses the server default)")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 20*time.Second, "HTTP timeout per request")

	root.AddCommand(newSearchCmd(opts), newProvidersCmd(opts))
	return root
}

func newSearchCmd(opts *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Print matching danmu sources without the interactive picker",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(opts)
			if err != nil {
				return err
			}
			results, err := c.Search(cmd.Context(), strings.Join(args, " "), opts.provider)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(domain.DanmuSearchResponse{Results: results})
			}
			for _, line := range formatResults(results) {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON envelope")
	return cmd
}

func newProvidersCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the providers the server can search",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(opts)
			if err != nil {
				return err
			}
			items, err := c.Providers(cmd.Context())
			if err != nil {
				return err
			}
			for _, item := range items {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", item.Key, item.Name)
			}
			return nil
		},
	}
}

func newClient(opts *options) (*client.Client, error) {
	return client.New(client.Config{
		BaseURL:    opts.server,
		HTTPClient: &http.Client{Timeout: opts.timeout},
	})
}

func formatResults(results []domain.DanmuResult) []string {
	if len(results) == 0 {
		return []string{"no danmu sources found"}
	}
	return lo.FlatMap(results, func(result domain.DanmuResult, _ int) []string {
		lines := []string{fmt.Sprintf("%d\t%s (%d episodes)", result.ID, result.Title, len(result.Episodes))}
		return append(lines, lo.Map(result.Episodes, func(episode domain.EpisodeItem, _ int) string {
			return fmt.Sprintf("  %d\t%s", episode.EpisodeID, episode.EpisodeTitle)
		})...)
	})
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
