package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ppiankov/petitionlens/internal/ledger"
	"github.com/ppiankov/petitionlens/internal/model"
	"github.com/ppiankov/petitionlens/internal/pipeline"
	"github.com/ppiankov/petitionlens/internal/store"
	"github.com/ppiankov/petitionlens/internal/topics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// classifyCmd represents the classify command
var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Label petitions in the store with a topic",
	Long: `Classify asks the configured language model for one topic per petition.

Petitions already recorded in the ledger are skipped, so classification can be
stopped and resumed at any time. The topic map is exported after every run.

Example:
  petitionlens classify
  petitionlens classify --limit 100
  petitionlens classify --llm-provider ollama --llm-model llama3`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runJob(func(ctx context.Context, p *pipeline.Pipeline) (*pipeline.RunResult, error) {
			return p.Classify(ctx)
		})
	},
}

// topicsCmd groups topic inspection commands
var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Inspect topic labels",
}

var topicsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the topic distribution by petitions and by signatures",
	Args:  cobra.NoArgs,
	RunE:  runTopicsStats,
}

var topicsPetitionsCmd = &cobra.Command{
	Use:   "petitions <topic|group>",
	Short: "List the petitions about a topic or topic group",
	Long: `List the petitions labelled with a topic, or with any topic of a group,
largest UK total first.

Example:
  petitionlens topics petitions transport
  petitionlens topics petitions "Social policy" --limit 20`,
	Args: cobra.ExactArgs(1),
	RunE: runTopicsPetitions,
}

var topicsShowCmd = &cobra.Command{
	Use:   "show <petition-id>",
	Short: "Show the recorded classification of one petition",
	Args:  cobra.ExactArgs(1),
	RunE:  runTopicsShow,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(topicsCmd)
	topicsCmd.AddCommand(topicsStatsCmd)
	topicsCmd.AddCommand(topicsPetitionsCmd)
	topicsCmd.AddCommand(topicsShowCmd)

	classifyCmd.Flags().Int("limit", 0, "classify at most this many petitions (0 = no limit)")
	classifyCmd.Flags().Int("rpm", 0, "requests per minute to the provider")
	classifyCmd.Flags().String("llm-provider", "", "LLM provider (openai, anthropic, ollama)")
	classifyCmd.Flags().String("llm-model", "", "LLM model name")

	_ = viper.BindPFlag("topics.limit", classifyCmd.Flags().Lookup("limit"))
	_ = viper.BindPFlag("topics.requests_per_minute", classifyCmd.Flags().Lookup("rpm"))
	_ = viper.BindPFlag("llm.provider", classifyCmd.Flags().Lookup("llm-provider"))
	_ = viper.BindPFlag("llm.model", classifyCmd.Flags().Lookup("llm-model"))

	topicsStatsCmd.Flags().Bool("groups", false, "aggregate topics into their groups")
	topicsPetitionsCmd.Flags().Int("limit", 0, "show at most this many petitions (0 = all)")
}

func runTopicsPetitions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	tm, err := topics.LoadTopicMap(cfg.Data.TopicsPath())
	if err != nil {
		return err
	}
	s, err := store.Load(cfg.Data.StorePath())
	if err != nil {
		return fmt.Errorf("load store: %w", err)
	}

	limit, _ := cmd.Flags().GetInt("limit")
	return writeTopicPetitions(cmd.OutOrStdout(), topics.Petitions(s, tm, args[0]), limit)
}

func runTopicsShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	l, err := ledger.Open(cfg.Data.LedgerPath())
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() { _ = l.Close() }()

	c, err := l.Get(context.Background(), model.PetitionID(args[0]))
	if errors.Is(err, ledger.ErrNotFound) {
		return fmt.Errorf("petition %s has not been classified", args[0])
	}
	if err != nil {
		return err
	}
	return writeClassification(cmd.OutOrStdout(), c)
}

func writeClassification(out io.Writer, c *ledger.Classification) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Petition:\t%s\n", c.PetitionID)
	fmt.Fprintf(w, "Topic:\t%s (AI-generated, may not be accurate)\n", c.Topic)
	if group := topics.GroupOf(c.Topic); group != "" {
		fmt.Fprintf(w, "Group:\t%s\n", group)
	}
	fmt.Fprintf(w, "Provider:\t%s\n", orNA(c.Provider))
	fmt.Fprintf(w, "Model:\t%s\n", orNA(c.Model))
	if c.ClassifiedAt.IsZero() {
		fmt.Fprintf(w, "Classified:\tN/A\n")
	} else {
		fmt.Fprintf(w, "Classified:\t%s (%s)\n", c.ClassifiedAt.UTC().Format(time.RFC3339), humanize.Time(c.ClassifiedAt))
	}
	return w.Flush()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// writeTopicPetitions prints an overview line followed by a table of the selection
func writeTopicPetitions(out io.Writer, sel topics.Selection, limit int) error {
	fmt.Fprintf(out, "Petitions about %s (%s): %s petitions, %s signatures\n\n",
		sel.Name, sel.Kind,
		humanize.Comma(int64(len(sel.Petitions))), humanize.Comma(int64(sel.Signatures)))
	if len(sel.Petitions) == 0 {
		fmt.Fprintln(out, "No petitions found for this selection.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSIGNATURES\tPETITION")
	for i, p := range sel.Petitions {
		if limit > 0 && i >= limit {
			break
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, humanize.Comma(int64(p.UKTotal())), truncate(p.Attributes.Action, 80))
	}
	return w.Flush()
}

func runTopicsStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	tm, err := topics.LoadTopicMap(cfg.Data.TopicsPath())
	if err != nil {
		return err
	}
	if len(tm) == 0 {
		return fmt.Errorf("no topics in %s, run petitionlens classify first", cfg.Data.TopicsPath())
	}

	s, err := store.Load(cfg.Data.StorePath())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	dist := topics.Compute(s, tm)
	labelled, total := topics.NewJoiner(tm, s).Coverage()

	fmt.Printf("Topics for %s petitions", humanize.Comma(int64(len(tm))))
	if s != nil {
		fmt.Printf(" (%s of %s petitions in the store)", humanize.Comma(int64(labelled)), humanize.Comma(int64(total)))
	}
	fmt.Println()
	fmt.Println()

	groups, _ := cmd.Flags().GetBool("groups")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	if groups {
		printShares(w, "GROUP", toGroupShares(topics.Grouped(dist.Petitions)), toGroupShares(topics.Grouped(dist.Signatures)))
	} else {
		printShares(w, "TOPIC", dist.Petitions, dist.Signatures)
	}
	return w.Flush()
}

func toGroupShares(groups []topics.GroupShare) []topics.Share {
	out := make([]topics.Share, 0, len(groups))
	for _, g := range groups {
		out = append(out, topics.Share{Topic: g.Name, Percentage: g.Percentage, RawCount: g.RawCount})
	}
	return out
}

// printShares joins petition and signature shares on the topic, ordered by petition share
func printShares(w *tabwriter.Writer, label string, petitions, signatures []topics.Share) {
	bySignatures := make(map[string]topics.Share, len(signatures))
	for _, s := range signatures {
		bySignatures[s.Topic] = s
	}

	fmt.Fprintf(w, "%s\tPETITIONS\t%%\tSIGNATURES\t%%\n", label)
	for _, p := range petitions {
		sig := bySignatures[p.Topic]
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\t%.2f\n",
			p.Topic, humanize.Comma(int64(p.RawCount)), p.Percentage,
			humanize.Comma(int64(sig.RawCount)), sig.Percentage)
	}
}
