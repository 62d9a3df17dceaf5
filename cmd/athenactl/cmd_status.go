package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kuuji/athena/internal/control"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show forwarder status",
	Long:  `Query a running athenad and display its links, FIB/PIT/content-store counters, and uptime.`,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	status, err := control.FetchStatus(resolvedSocketPath())
	if err != nil {
		return fmt.Errorf("is athenad running? %w", err)
	}

	fmt.Fprintf(os.Stdout, "Name:        %s\n", status.Name)
	fmt.Fprintf(os.Stdout, "Management:  %s\n", status.ManagementPrefix)
	fmt.Fprintf(os.Stdout, "Uptime:      %s\n", formatDuration(time.Duration(status.UptimeSeconds*float64(time.Second))))
	fmt.Fprintf(os.Stdout, "FIB routes:  %d\n", status.FIBRoutes)
	fmt.Fprintf(os.Stdout, "PIT entries: %d\n", status.PITEntries)
	fmt.Fprintf(os.Stdout, "Content store: %d/%d MB, %d entries\n",
		status.ContentStore.SizeBytes/(1<<20), status.ContentStore.CapacityMB, status.ContentStore.Entries)
	fmt.Println()

	if len(status.Links) == 0 {
		fmt.Println("No links open.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tLOCAL\tROUTABLE\tMTU")
	for _, l := range status.Links {
		fmt.Fprintf(w, "%d\t%s\t%v\t%v\t%d\n", l.ID, l.Name, l.Local, l.Routable, l.MTU)
	}
	w.Flush()

	return nil
}

// formatDuration formats a duration into a human-readable string like "2h15m" or "45s".
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
