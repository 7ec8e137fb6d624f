package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var psPeer string

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List live processes on the local daemon (or a remote peer with --peer)",
	Args:  cobra.NoArgs,
	RunE:  runPs,
}

func init() {
	psCmd.Flags().StringVar(&psPeer, "peer", "", "Peer id to list instead of the local daemon")
}

func runPs(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	client, err := dialDaemon(ctx, socketPath)
	if err != nil {
		return err
	}
	defer client.Close()

	target := client.peerID
	if psPeer != "" {
		target, _, err = parsePid(psPeer + ":0")
		if err != nil {
			return err
		}
	}

	store, err := client.processStoreFor(ctx, target)
	if err != nil {
		return err
	}
	procs, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("listing processes: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PID\tSTATE\tNAME")
	for _, p := range procs {
		fmt.Fprintf(w, "%d\t%s\t%s\n", p.ID, p.State, p.Name)
	}
	return w.Flush()
}
