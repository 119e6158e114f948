package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/ppiankov/petitionlens/internal/report"
	"github.com/ppiankov/petitionlens/internal/store"
	"github.com/ppiankov/petitionlens/internal/topics"
	"github.com/spf13/cobra"
)

var (
	reportFormat string
	reportOut    string
	reportSort   string
	reportAsc    bool
	reportLimit  int

	filterName     string
	filterMin      int
	filterAfter    string
	filterBand     string
	filterResponse string
	filterDebated  string
	filterTopic    string
)

// constituencyCmd represents the constituency command
var constituencyCmd = &cobra.Command{
	Use:   "constituency <name>",
	Short: "Report the petitions signed in one constituency",
	Long: `Constituency lists every petition signed in a Westminster constituency with
its local count, UK total and salience ratio. A ratio above 1 means the
constituency signed more than an even share of the UK total.

Example:
  petitionlens constituency "Holborn and St Pancras"
  petitionlens constituency "Holborn and St Pancras" --sort salience --band more
  petitionlens constituency "Islington North" --format csv --out petition_data.csv
  petitionlens constituency "Islington North" --format html --out report.html`,
	Args: cobra.ExactArgs(1),
	RunE: runConstituency,
}

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List constituencies in the store",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(constituencyCmd)
	rootCmd.AddCommand(listCmd)

	constituencyCmd.Flags().StringVar(&reportFormat, "format", "table", "output format (table, csv, markdown, html, json)")
	constituencyCmd.Flags().StringVarP(&reportOut, "out", "o", "", "output path (default: stdout)")
	constituencyCmd.Flags().StringVar(&reportSort, "sort", "count", "sort column (petition, count, salience, uk_total, state, topic, created)")
	constituencyCmd.Flags().BoolVar(&reportAsc, "asc", false, "sort ascending")
	constituencyCmd.Flags().IntVar(&reportLimit, "limit", 0, "show at most this many rows (0 = all)")

	constituencyCmd.Flags().StringVar(&filterName, "name", "", "only petitions whose action contains this text")
	constituencyCmd.Flags().IntVar(&filterMin, "min", 0, "minimum local signatures")
	constituencyCmd.Flags().StringVar(&filterAfter, "created-after", "", "only petitions created on or after YYYY-MM-DD")
	constituencyCmd.Flags().StringVar(&filterBand, "band", "all", "salience band (more, about, less, all)")
	constituencyCmd.Flags().StringVar(&filterResponse, "response", "all", "written government response (yes, no, all)")
	constituencyCmd.Flags().StringVar(&filterDebated, "debated", "all", "debated in Parliament (yes, no, all)")
	constituencyCmd.Flags().StringVar(&filterTopic, "topic", "", "only petitions with this topic")

	listCmd.Flags().Bool("counts", false, "show the number of petitions per constituency")
}

func runConstituency(cmd *cobra.Command, args []string) (err error) {
	name := args[0]

	filter, err := buildFilter()
	if err != nil {
		return err
	}
	col, err := report.ParseColumn(reportSort)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := store.Load(cfg.Data.StorePath())
	if err != nil {
		return fmt.Errorf("%w (run petitionlens refresh to rebuild it)", err)
	}
	tm, err := topics.LoadTopicMap(cfg.Data.TopicsPath())
	if err != nil {
		return err
	}

	rows, ok := report.Build(s, topics.NewJoiner(tm, s), name)
	if !ok {
		return fmt.Errorf("unknown constituency %q (see petitionlens list)", name)
	}
	rows = filter.Apply(rows)
	report.Sort(rows, col, !reportAsc)
	if reportLimit > 0 && len(rows) > reportLimit {
		rows = rows[:reportLimit]
	}

	var w io.Writer = os.Stdout
	if reportOut != "" {
		f, createErr := os.Create(reportOut)
		if createErr != nil {
			return fmt.Errorf("create output: %w", createErr)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("close output: %w", closeErr)
			}
		}()
		w = f
	}
	bw := bufio.NewWriter(w)

	if err := writeReport(bw, name, rows); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	if reportOut != "" {
		fmt.Fprintf(os.Stderr, "✓ Wrote %d rows to %s\n", len(rows), reportOut)
	}
	fmt.Fprintln(os.Stderr, oglNotice)
	return nil
}

func buildFilter() (report.Filter, error) {
	band, err := report.ParseBand(filterBand)
	if err != nil {
		return report.Filter{}, err
	}
	response, err := report.ParseChoice(filterResponse)
	if err != nil {
		return report.Filter{}, fmt.Errorf("--response: %w", err)
	}
	debated, err := report.ParseChoice(filterDebated)
	if err != nil {
		return report.Filter{}, fmt.Errorf("--debated: %w", err)
	}

	f := report.Filter{
		Name:            filterName,
		MinSignatures:   filterMin,
		CreatedAfter:    filterAfter,
		Band:            band,
		WrittenResponse: response,
		Debated:         debated,
		Topic:           filterTopic,
	}
	return f, f.Validate()
}

func writeReport(w io.Writer, name string, rows []report.Row) error {
	switch strings.ToLower(reportFormat) {
	case "csv":
		return report.WriteCSV(w, rows)
	case "markdown", "md":
		return report.WriteMarkdown(w, name, rows)
	case "html":
		return report.WriteHTML(w, name, rows)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rows); err != nil {
			return fmt.Errorf("encode rows: %w", err)
		}
		return nil
	case "table", "":
		return writeTable(w, rows)
	}
	return fmt.Errorf("unknown format %q (want table, csv, markdown, html or json)", reportFormat)
}

func writeTable(w io.Writer, rows []report.Row) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tCOUNT\tUK TOTAL\tRATIO\tTOPIC\tPETITION\n")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\t%s\n",
			r.PetitionID, humanize.Comma(int64(r.Count)), humanize.Comma(int64(r.UKTotal)),
			r.Salience.Ratio, r.Topic, truncate(r.Action, 70))
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, err := store.Load(cfg.Data.StorePath())
	if err != nil {
		return fmt.Errorf("%w (run petitionlens refresh to rebuild it)", err)
	}

	names := s.Constituencies()
	sort.Strings(names)

	counts, _ := cmd.Flags().GetBool("counts")
	if !counts {
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, n := range names {
		cp, _ := s.Index.Get(n)
		fmt.Fprintf(tw, "%s\t%s\n", n, humanize.Comma(int64(cp.Len())))
	}
	return tw.Flush()
}
