package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/pders01/feedq/internal/admin"
)

const titleWidth = 48

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Show the publication queue of a running feedq",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		entries, err := admin.NewClient(cfg.Admin.Listen, cfg.Admin.User).Queue(cmd.Context())
		if err != nil {
			return err
		}
		return renderQueue(cmd.OutOrStdout(), entries, time.Now())
	},
}

func init() {
	rootCmd.AddCommand(queueCmd)
}

func renderQueue(w io.Writer, entries []admin.QueueEntry, now time.Time) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "Queue is empty")
		return err
	}

	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoWrap: tw.WrapNone},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
			Header: tw.CellConfig{
				Formatting: tw.CellFormatting{AutoFormat: tw.On},
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			},
		}),
		tablewriter.WithRendition(tw.Rendition{
			Borders: tw.BorderNone,
			Settings: tw.Settings{
				Separators: tw.Separators{ShowHeader: tw.Off},
			},
		}),
	)

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		at := time.Unix(e.PublishAt, 0)
		rows = append(rows, []string{
			e.GUID,
			truncateEnd(e.Title, titleWidth),
			at.Format("2006-01-02 15:04:05"),
			untilLabel(at, now),
		})
	}

	table.Header([]string{"guid", "title", "publish at", "in"})
	if err := table.Bulk(rows); err != nil {
		return fmt.Errorf("building table: %w", err)
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("rendering table: %w", err)
	}

	_, err := fmt.Fprintf(w, "\n%d queued\n", len(entries))
	return err
}

// untilLabel renders the time left before at; overdue records are
// highlighted since they are waiting on a failed delivery.
func untilLabel(at, now time.Time) string {
	d := at.Sub(now)
	if d <= 0 {
		return color.RedString("overdue")
	}
	return color.GreenString(d.Truncate(time.Second).String())
}

// truncateEnd shortens s to at most limit characters, appending an
// ellipsis if truncation occurs.
func truncateEnd(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit <= 1 {
		return "…"
	}
	return string(r[:limit-1]) + "…"
}
