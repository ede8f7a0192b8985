package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"mts/internal/search"
	"mts/internal/utils"
	"mts/internal/validation"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search medieteknik.com",
	Long: `Search the medieteknik.com backend. Results younger than the freshness
window (cache.freshness, default 5m) are served from the local cache.

Examples:
  mts search sittning                         # Table of matching items
  mts search -f type=event -f lang=sv sittning
  mts search --max-age 30s val                # Accept at most 30s old results
  mts search --select 'items.#.title' val     # Project results with a gjson path
  mts search --format json val                # Raw backend JSON`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

var (
	searchFilters      []string
	searchMaxAge       time.Duration
	searchNoCache      bool
	searchStaleIfError bool
	searchSelect       string
	searchFormat       string
)

func init() {
	rootCmd.AddCommand(searchCmd)

	flags := searchCmd.Flags()
	flags.StringArrayVarP(&searchFilters, "filter", "f", nil, "Backend filter as name=value (repeatable)")
	flags.DurationVar(&searchMaxAge, "max-age", 0, "Maximum age of a cached result (default: cache.freshness)")
	flags.BoolVar(&searchNoCache, "no-cache", false, "Skip the cache read; the fresh result is still cached")
	flags.BoolVar(&searchStaleIfError, "stale-if-error", false, "Serve an expired cached result when the backend fails")
	flags.StringVar(&searchSelect, "select", "", "gjson path applied to the response")
	flags.StringVar(&searchFormat, "format", "table", "Output format: table, json")
}

func runSearch(cmd *cobra.Command, args []string) error {
	q := search.Query{
		Text:    strings.Join(args, " "),
		MaxAge:  searchMaxAge,
		NoCache: searchNoCache,
	}
	for _, arg := range searchFilters {
		name, value, err := validation.ParseFilter(arg)
		if err != nil {
			return err
		}
		if q.Filters == nil {
			q.Filters = make(map[string]string)
		}
		q.Filters[name] = value
	}

	c := openCache()
	defer c.Close()

	client := search.NewClient(cfg, c, search.WithStaleIfError(cfg.Cache.StaleIfError || searchStaleIfError))
	res, err := client.Search(cmd.Context(), q)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if searchSelect != "" {
		return printSelection(out, res.Raw, searchSelect)
	}

	switch searchFormat {
	case "json":
		fmt.Fprint(out, string(pretty.Pretty(res.Raw)))
	case "table":
		renderSearchTable(out, res, time.Now())
	default:
		return fmt.Errorf("unsupported format: %s (supported: table, json)", searchFormat)
	}
	return nil
}

func printSelection(w io.Writer, raw []byte, path string) error {
	result := gjson.GetBytes(raw, path)
	if !result.Exists() {
		return fmt.Errorf("path %q matched nothing", path)
	}
	if result.IsObject() || result.IsArray() {
		fmt.Fprint(w, string(pretty.Pretty([]byte(result.Raw))))
		return nil
	}
	fmt.Fprintln(w, result.String())
	return nil
}

// itemColumns are tried in order for each table column
var itemColumns = []struct {
	title string
	paths []string
}{
	{"Title", []string{"title", "name", "title_sv", "title_en"}},
	{"Type", []string{"type", "kind", "category"}},
	{"Link", []string{"url", "slug", "id"}},
}

func renderSearchTable(w io.Writer, res *search.Result, now time.Time) {
	if len(res.Items) == 0 {
		fmt.Fprintf(w, "No results for %s\n", strings.TrimPrefix(res.Key, search.KeyPrefix))
		return
	}

	t := prettytable.NewWriter()
	t.SetStyle(prettytable.StyleRounded)

	header := prettytable.Row{"#"}
	for _, col := range itemColumns {
		header = append(header, col.title)
	}
	t.AppendHeader(header)

	for i, item := range res.Items {
		row := prettytable.Row{i + 1}
		for _, col := range itemColumns {
			row = append(row, firstString(item, col.paths))
		}
		t.AppendRow(row)
	}

	fmt.Fprintln(w, t.Render())
	fmt.Fprintf(w, "%s of %s results • %s • fetched %s\n",
		utils.FormatCount(len(res.Items)), utils.FormatCount(res.Total), res.Source, utils.FormatAge(res.FetchedAt, now))
}

func firstString(item []byte, paths []string) string {
	for _, p := range paths {
		if v := gjson.GetBytes(item, p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
