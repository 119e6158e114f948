package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ppiankov/petitionlens/internal/index"
	"github.com/ppiankov/petitionlens/internal/pipeline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var refreshTimeout time.Duration

// refreshCmd represents the refresh command
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch every petition and rebuild the constituency store",
	Long: `Refresh crawls the petitions API:
- Follow the paginated petition list to every detail resource
- Fetch details in parallel under a per-host rate limit
- Write the raw petitions file and rebuild the constituency store
- Optionally classify new petitions by topic

Responses are cached, so an interrupted refresh resumes without refetching.

Example:
  petitionlens refresh
  petitionlens refresh --workers 8 --no-cache
  petitionlens refresh --topics`,
	Args: cobra.NoArgs,
	RunE: runRefresh,
}

// processCmd represents the process command
var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Rebuild the constituency store from the raw petitions file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(func(ctx context.Context, p *pipeline.Pipeline) (*pipeline.RunResult, error) {
			return p.Process(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(processCmd)

	refreshCmd.Flags().DurationVar(&refreshTimeout, "timeout", 0, "overall refresh timeout (0 = none)")
	refreshCmd.Flags().Int("workers", 0, "concurrent detail fetches")
	refreshCmd.Flags().Float64("rps", 0, "requests per second to the petitions host")
	refreshCmd.Flags().Bool("no-cache", false, "disable cache (force fresh fetch)")
	refreshCmd.Flags().Bool("topics", false, "classify new petitions after the store is rebuilt")
	refreshCmd.Flags().String("start-url", "", "petition list URL to start crawling from")
	refreshCmd.Flags().Bool("insecure", false, "skip TLS certificate verification")
	refreshCmd.Flags().String("http-proxy", "", "HTTP proxy URL (overrides HTTP_PROXY env var)")
	refreshCmd.Flags().String("https-proxy", "", "HTTPS proxy URL (overrides HTTPS_PROXY env var)")

	_ = viper.BindPFlag("fetch.workers", refreshCmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("fetch.requests_per_second", refreshCmd.Flags().Lookup("rps"))
	_ = viper.BindPFlag("topics.enabled", refreshCmd.Flags().Lookup("topics"))
	_ = viper.BindPFlag("fetch.start_url", refreshCmd.Flags().Lookup("start-url"))
	_ = viper.BindPFlag("http.insecure_tls", refreshCmd.Flags().Lookup("insecure"))
	_ = viper.BindPFlag("http.http_proxy", refreshCmd.Flags().Lookup("http-proxy"))
	_ = viper.BindPFlag("http.https_proxy", refreshCmd.Flags().Lookup("https-proxy"))
}

func runRefresh(cmd *cobra.Command, args []string) error {
	noCache, _ := cmd.Flags().GetBool("no-cache")
	if noCache {
		viper.Set("cache.enabled", false)
	}

	fmt.Fprintln(os.Stderr, oglNotice)
	return runJob(func(ctx context.Context, p *pipeline.Pipeline) (*pipeline.RunResult, error) {
		if refreshTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, refreshTimeout)
			defer cancel()
		}
		return p.Refresh(ctx)
	})
}

// runJob builds a pipeline and runs one job until it finishes or the process is interrupted
func runJob(job func(ctx context.Context, p *pipeline.Pipeline) (*pipeline.RunResult, error)) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	p, err := pipeline.New(cfg, logger, pipeline.WithProgress(os.Stderr))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := job(ctx, p)
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		return fmt.Errorf("run failed: %w", err)
	}

	printRunSummary(res)
	return nil
}

func printRunSummary(res *pipeline.RunResult) {
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Run %s\n", res.RunID)
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	if res.Fetch != nil {
		fmt.Fprintf(os.Stderr, "  Pages:           %d\n", res.Fetch.Pages)
		fmt.Fprintf(os.Stderr, "  Fetched:         %d (%d from cache)\n", res.Fetch.Fetched, res.Fetch.FromCache)
		fmt.Fprintf(os.Stderr, "  Failed:          %d\n", res.Fetch.Failed)
	}
	if res.CachePruned > 0 {
		fmt.Fprintf(os.Stderr, "  Cache pruned:    %d expired entries\n", res.CachePruned)
	}
	fmt.Fprintf(os.Stderr, "  Petitions:       %d\n", res.Petitions)
	fmt.Fprintf(os.Stderr, "  Constituencies:  %d\n", res.Constituencies)
	if res.Index != nil && len(res.Index.Issues) > 0 {
		fmt.Fprintf(os.Stderr, "  Issues:          %d (%d unknown constituency, %d missing data)\n",
			len(res.Index.Issues), res.Index.Count(index.IssueUnknownConstituency), res.Index.Count(index.IssueMissingData))
	}
	if res.Topics != nil {
		fmt.Fprintf(os.Stderr, "  Classified:      %d of %d queued (%d failed)\n",
			res.Topics.Classified, res.Topics.Queued, res.Topics.Failed)
		fmt.Fprintf(os.Stderr, "  Ledger:          %d petitions labelled\n", res.Topics.Recorded)
	}
	fmt.Fprintf(os.Stderr, "  Duration:        %v\n", res.Duration.Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "\n")
}
