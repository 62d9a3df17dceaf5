package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kuuji/athena/internal/control"
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Add or remove FIB routes",
}

var routeLinks string

var routeAddCmd = &cobra.Command{
	Use:   "add <prefix>",
	Short: "Add a route for a name prefix",
	Args:  cobra.ExactArgs(1),
	RunE:  runRouteAdd,
}

var routeDelCmd = &cobra.Command{
	Use:   "del <prefix>",
	Short: "Remove a route for a name prefix",
	Args:  cobra.ExactArgs(1),
	RunE:  runRouteDel,
}

func init() {
	routeAddCmd.Flags().StringVar(&routeLinks, "links", "", "comma-separated egress link names")
	routeDelCmd.Flags().StringVar(&routeLinks, "links", "", "comma-separated egress link names")
	routeCmd.AddCommand(routeAddCmd)
	routeCmd.AddCommand(routeDelCmd)
}

func runRouteAdd(cmd *cobra.Command, args []string) error {
	entry, err := routeEntry(args[0])
	if err != nil {
		return err
	}
	if err := control.SendRoute(resolvedSocketPath(), "POST", entry); err != nil {
		return fmt.Errorf("adding route: %w", err)
	}
	fmt.Printf("added route %s -> %v\n", entry.Prefix, entry.Links)
	return nil
}

func runRouteDel(cmd *cobra.Command, args []string) error {
	entry, err := routeEntry(args[0])
	if err != nil {
		return err
	}
	if err := control.SendRoute(resolvedSocketPath(), "DELETE", entry); err != nil {
		return fmt.Errorf("removing route: %w", err)
	}
	fmt.Printf("removed route %s -> %v\n", entry.Prefix, entry.Links)
	return nil
}

func routeEntry(prefix string) (control.RouteEntry, error) {
	if routeLinks == "" {
		return control.RouteEntry{}, fmt.Errorf("--links is required")
	}
	links := strings.Split(routeLinks, ",")
	for i, l := range links {
		links[i] = strings.TrimSpace(l)
	}
	return control.RouteEntry{Prefix: prefix, Links: links}, nil
}
