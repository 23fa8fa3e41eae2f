package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gdanezis/dlsconsensus-go/client"
	"github.com/gdanezis/dlsconsensus-go/peer"
	"github.com/gdanezis/dlsconsensus-go/transport"
)

func simCmd() *cobra.Command {
	var n, blocks int
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Run an in-process N-peer simulation to a target block height",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSim(cmd, n, blocks)
		},
	}
	cmd.Flags().IntVar(&n, "n", 4, "committee size")
	cmd.Flags().IntVar(&blocks, "blocks", 10, "target block number every peer should reach")
	return cmd
}

// buildCommittee wires n peer.Drivers together over a shared
// transport.Loopback, each one registered under its own address.
func buildCommittee(n int) ([]*peer.Driver, *transport.Loopback, error) {
	lb := transport.NewLoopback()
	drivers := make([]*peer.Driver, n)
	for i := 0; i < n; i++ {
		cfg, err := syntheticSession(n, i)
		if err != nil {
			return nil, nil, err
		}
		d, err := peer.New(cfg)
		if err != nil {
			return nil, nil, err
		}
		drivers[i] = d
		lb.Register(d.MyAddr(), d)
	}
	return drivers, lb, nil
}

func runSim(cmd *cobra.Command, n, blocks int) error {
	drivers, lb, err := buildCommittee(n)
	if err != nil {
		return err
	}

	for i, d := range drivers {
		c := client.NewInproc(d)
		if err := c.PutSequence([]byte(fmt.Sprintf("seed-%d", i))); err != nil {
			return err
		}
	}

	ctx := context.Background()
	const maxRounds = 10000
	for round := 0; round < maxRounds; round++ {
		allDone := true
		for _, d := range drivers {
			if err := d.AdvanceRound(); err != nil {
				return err
			}
			for _, out := range d.GetMessages() {
				if err := lb.Send(ctx, out.Dest, out.Msg); err != nil {
					return err
				}
			}
			if d.CurrentBlockNo() < uint64(blocks) {
				allDone = false
			}
		}
		if allDone {
			break
		}
	}

	out := cmd.OutOrStdout()
	for i, d := range drivers {
		c := client.NewInproc(d)
		seq, err := c.GetSequence()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "peer %d (block %d): %d items committed\n", i, d.CurrentBlockNo(), len(seq))
	}
	return nil
}
