package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hnrck/librle/internal/server"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// requestTimeout bounds the stats HTTP round trip.
const requestTimeout = 5 * time.Second

// errUnsupportedFormat is returned when the requested output format is
// not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// errUnexpectedStatus is returned on a non-200 response from the daemon.
var errUnexpectedStatus = errors.New("unexpected HTTP status")

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show per-fragment-ID link counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := fetchStats(cmd.Context())
			if err != nil {
				return err
			}

			out, err := formatStats(resp, outputFormat)
			if err != nil {
				return err
			}
			cmd.Println(out)
			return nil
		},
	}
}

// fetchStats retrieves the counter snapshots from the rled admin API.
func fetchStats(ctx context.Context) (*server.StatsResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	url := "http://" + serverAddr + "/api/v1/stats"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build stats request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("query %s: %w: %s", url, errUnexpectedStatus, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read stats response: %w", err)
	}

	stats := &server.StatsResponse{}
	if err := json.Unmarshal(body, stats); err != nil {
		return nil, fmt.Errorf("decode stats response: %w", err)
	}
	return stats, nil
}

// formatStats renders the counter snapshots in the requested format.
func formatStats(stats *server.StatsResponse, format string) (string, error) {
	switch format {
	case formatJSON:
		out, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal stats: %w", err)
		}
		return string(out), nil
	case formatTable:
		return formatStatsTable(stats), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatStatsTable renders both directions as aligned tables.
func formatStatsTable(stats *server.StatsResponse) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "DIR\tFRAG\tIN\tOK\tDROPPED\tLOST\tBYTES IN\tBYTES OK\tBYTES DROPPED")
	for _, fs := range stats.Tx {
		writeStatsRow(w, "tx", fs)
	}
	for _, fs := range stats.Rx {
		writeStatsRow(w, "rx", fs)
	}
	_ = w.Flush()

	fmt.Fprintf(&sb, "\nrx unattributed drops: %d\n", stats.RxUnattributedDrop)
	return sb.String()
}

// writeStatsRow writes one fragment-ID counter line.
func writeStatsRow(w io.Writer, direction string, fs server.FragStats) {
	fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
		direction, fs.FragID, fs.SDUsIn, fs.SDUsOk, fs.SDUsDropped,
		fs.SDUsLost, fs.BytesIn, fs.BytesOk, fs.BytesDropped)
}
