package main

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/kuuji/athena/internal/control"
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Open or close links",
}

var linkOpenURI string

var linkOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "Open a new link",
	Long: `Open a new link on a running athenad. Without --uri, prompts
interactively for a transport scheme and connection parameters.`,
	RunE: runLinkOpen,
}

var linkCloseCmd = &cobra.Command{
	Use:   "close <name>",
	Short: "Close an open link by name",
	Args:  cobra.ExactArgs(1),
	RunE:  runLinkClose,
}

func init() {
	linkOpenCmd.Flags().StringVar(&linkOpenURI, "uri", "", "connection URI, e.g. udp://10.0.0.2:4567/name=wan0")
	linkCmd.AddCommand(linkOpenCmd)
	linkCmd.AddCommand(linkCloseCmd)
}

func runLinkOpen(cmd *cobra.Command, args []string) error {
	uri := linkOpenURI
	if uri == "" {
		var err error
		uri, err = promptLinkURI()
		if err != nil {
			return err
		}
	}

	if err := control.SendOpenLink(resolvedSocketPath(), uri); err != nil {
		return fmt.Errorf("opening link: %w", err)
	}
	fmt.Printf("opened link %s\n", uri)
	return nil
}

func runLinkClose(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := control.SendCloseLink(resolvedSocketPath(), name); err != nil {
		return fmt.Errorf("closing link %q: %w", name, err)
	}
	fmt.Printf("closed link %s\n", name)
	return nil
}

// promptLinkURI interactively builds a connection URI (scheme://addr/name=...).
func promptLinkURI() (string, error) {
	scheme := "udp"
	var addr, name string

	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Transport").
				Options(
					huh.NewOption("udp", "udp"),
					huh.NewOption("tcp", "tcp"),
					huh.NewOption("ws", "ws"),
					huh.NewOption("wss", "wss"),
					huh.NewOption("eth", "eth"),
				).
				Value(&scheme),
			huh.NewInput().
				Title("Address").
				Description("host:port for udp/tcp/ws/wss, interface name for eth").
				Value(&addr),
			huh.NewInput().
				Title("Link name").
				Description("local name used for FIB routes and status (optional)").
				Value(&name),
		),
	).Run()
	if err != nil {
		return "", fmt.Errorf("form cancelled: %w", err)
	}

	uri := fmt.Sprintf("%s://%s", scheme, addr)
	if name != "" {
		uri = fmt.Sprintf("%s/name=%s", uri, name)
	}
	return uri, nil
}
