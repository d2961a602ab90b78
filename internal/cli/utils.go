// Package cli provides CLI output formatting for pulpit.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hyperjump/pulpit/internal/models"
	"github.com/hyperjump/pulpit/internal/partition"
	"github.com/hyperjump/pulpit/pkg/utils"
)

// OutputFormat is the format for CLI output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one line per result.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const previewChars = 200

// ParseOutputFormat validates a format name; empty means text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", OutputText:
		return OutputText, nil
	case OutputCompact, OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (supported: text, compact, json)", s)
	}
}

// WriteQueryResults writes query results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteQueryResults(w io.Writer, response *models.QueryResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return writeJSON(w, response)
	case OutputCompact:
		writeQueryResultsCompact(w, response)
		return nil
	default:
		writeQueryResultsText(w, response)
		return nil
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeQueryResultsText(w io.Writer, response *models.QueryResponse) {
	fmt.Fprintf(w, "\nFound %d results in %dms (partition %s, metric %s)\n",
		len(response.Results), response.QueryTime, response.PastorSlug, response.Metric)
	if response.DroppedUnmapped > 0 || response.MissingMetadata > 0 {
		fmt.Fprintf(w, "(%d unmapped rows dropped, %d results without metadata)\n",
			response.DroppedUnmapped, response.MissingMetadata)
	}
	fmt.Fprintln(w)
	for i, result := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", i+1, result.Score)
		fmt.Fprintf(w, "Chunk: %s\n", result.ChunkID)
		if result.Title != nil && *result.Title != "" {
			fmt.Fprintf(w, "Title: %s\n", *result.Title)
		}
		if result.TranscriptionDate != nil {
			fmt.Fprintf(w, "Date: %s\n", result.TranscriptionDate.Format("2006-01-02"))
		}
		if result.SourceURL != nil && *result.SourceURL != "" {
			fmt.Fprintf(w, "Source: %s\n", *result.SourceURL)
		}
		if result.Chunk == nil {
			fmt.Fprintf(w, "\n(no metadata)\n")
		} else {
			fmt.Fprintf(w, "\n%s\n", utils.Truncate(utils.CollapseWhitespace(result.Text()), previewChars))
		}
		fmt.Fprintln(w)
	}
}

func writeQueryResultsCompact(w io.Writer, response *models.QueryResponse) {
	for i, result := range response.Results {
		fmt.Fprintf(w, "%d\t%.4f\t%s\t%s\n", i+1, result.Score, result.ChunkID,
			utils.Truncate(result.TitleOr("-"), 60))
	}
}

// WritePartitions writes the partition catalog to w in the given format.
func WritePartitions(w io.Writer, entries []partition.Entry, format OutputFormat) error {
	if format == OutputJSON {
		if entries == nil {
			entries = []partition.Entry{}
		}
		return writeJSON(w, map[string]interface{}{"partitions": entries})
	}
	for _, e := range entries {
		var flags []string
		if e.Local {
			flags = append(flags, "local")
		}
		if e.Remote {
			flags = append(flags, "remote")
		}
		if e.Loaded {
			flags = append(flags, "loaded")
		}
		fmt.Fprintf(w, "%s\t%s\n", e.Slug, strings.Join(flags, ","))
	}
	return nil
}

// PrintQueryResults prints query results to stdout in text format.
func PrintQueryResults(response *models.QueryResponse) {
	_ = WriteQueryResults(os.Stdout, response, OutputText)
}
