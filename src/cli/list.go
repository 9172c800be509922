package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"servo-backup/src/backend"
	dir "servo-backup/src/backend/directory"
)

func newListCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list [all|snapshots|latest]",
		Short: "List backup files in the backup directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := backend.KindAll
			if len(args) == 1 {
				kind = strings.ToLower(args[0])
			}
			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			b, err := dir.New(cfg.Backup.Dir)
			if err != nil {
				return err
			}
			var be backend.StorageBackend = b
			entries, err := be.List(kind)
			if err != nil {
				return err
			}
			switch strings.ToLower(output) {
			case "json":
				return printEntriesJSON(cmd.OutOrStdout(), entries)
			case "", "table":
				printEntriesTable(cmd.OutOrStdout(), entries, time.Now())
				return nil
			default:
				return fmt.Errorf("unknown output format %q (want table or json)", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table|json")
	return cmd
}

func printEntriesTable(out io.Writer, entries []backend.Entry, now time.Time) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No backups found")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tTIMESTAMP\tSIZE\tAGE")
	for _, e := range entries {
		ts := e.Timestamp
		if ts == "" {
			ts = "-"
		}
		age := "-"
		if !e.ModTime.IsZero() {
			age = humanize.RelTime(e.ModTime, now, "ago", "from now")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Name, e.Kind, ts, humanize.Bytes(uint64(e.Size)), age)
	}
	_ = tw.Flush()
}

func printEntriesJSON(out io.Writer, entries []backend.Entry) error {
	if entries == nil {
		entries = []backend.Entry{}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}
