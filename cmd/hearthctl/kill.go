package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var killCmd = &cobra.Command{
	Use:   "kill <pid>",
	Short: "Kill a process by pid (local, or peer:local for a remote peer)",
	Args:  cobra.ExactArgs(1),
	RunE:  runKill,
}

func runKill(cmd *cobra.Command, args []string) error {
	targetPeer, localID, err := parsePid(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	client, err := dialDaemon(ctx, socketPath)
	if err != nil {
		return err
	}
	defer client.Close()

	store, err := client.processStoreFor(ctx, targetPeer)
	if err != nil {
		return err
	}
	if err := store.Kill(ctx, localID); err != nil {
		return fmt.Errorf("killing %s: %w", args[0], err)
	}

	fmt.Printf("killed %s\n", args[0])
	return nil
}
