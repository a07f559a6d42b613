package cmd

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-osu-download/index"
)

var (
	searchQuery string
	searchLimit int
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search downloaded beatmapsets",
	Long: `Runs a Bleve query string against the index of downloaded beatmapsets.
Fields include setId, title, artist, creator, tags, versions and files.
Examples:
  osu-downloader search camellia
  osu-downloader search '+artist:camellia +versions:extra'`,
	Args: cobra.ArbitraryArgs,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringVarP(&searchQuery, "query", "q", "", "Search query (Bleve query string syntax)")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 20, "Maximum number of hits to show")
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := searchQuery
	if query == "" {
		query = strings.Join(args, " ")
	}
	if strings.TrimSpace(query) == "" {
		return errors.New("search query cannot be empty (use --query or pass it as arguments)")
	}
	indexPath := globalConfig.IndexPath
	if indexPath == "" {
		return errors.New("index path is not configured")
	}

	// Open rather than create; searching must not leave an empty index behind.
	bleveIndex, err := bleve.Open(indexPath)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		return fmt.Errorf("no search index at %s, download some beatmapsets first", indexPath)
	} else if err != nil {
		return fmt.Errorf("failed to open index at %s: %w", indexPath, err)
	}
	defer func() {
		if err := bleveIndex.Close(); err != nil {
			log.Errorf("Error closing Bleve index: %v", err)
		}
	}()

	log.Debugf("Performing search with query: %s", query)
	results, err := index.SearchIndex(bleveIndex, query, searchLimit)
	if err != nil {
		return fmt.Errorf("error performing search: %w", err)
	}
	log.Debugf("Search finished. Hits: %d, Total: %d, Took: %s", len(results.Hits), results.Total, results.Took)

	printSearchResults(cmd.OutOrStdout(), results)
	return nil
}

// searchFieldOrder controls which stored fields are printed and in what order.
var searchFieldOrder = []string{"setId", "artist", "title", "creator", "versions", "filePath", "torrentPath"}

func printSearchResults(w io.Writer, results *bleve.SearchResult) {
	if results.Total == 0 {
		fmt.Fprintln(w, "No results found matching your query.")
		return
	}
	fmt.Fprintf(w, "Showing %d of %d result(s)\n", len(results.Hits), results.Total)
	for i, hit := range results.Hits {
		fmt.Fprintf(w, "[%d] %v (score %.2f)\n", i+1, displayName(hit.Fields, hit.ID), hit.Score)
		for _, field := range searchFieldOrder {
			if v, ok := hit.Fields[field]; ok {
				fmt.Fprintf(w, "  %s: %s\n", field, formatField(v))
			}
		}
	}
}

func displayName(fields map[string]interface{}, fallback string) interface{} {
	if name, ok := fields["name"]; ok {
		return name
	}
	return fallback
}

// formatField flattens multi-valued fields that bleve returns as []interface{}.
func formatField(v interface{}) string {
	list, ok := v.([]interface{})
	if !ok {
		return fmt.Sprint(v)
	}
	parts := make([]string, 0, len(list))
	for _, item := range list {
		parts = append(parts, fmt.Sprint(item))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}
