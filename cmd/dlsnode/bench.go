package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func benchCmd() *cobra.Command {
	var n, rounds int
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark in-process round throughput for a fixed round budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(cmd, n, rounds)
		},
	}
	cmd.Flags().IntVar(&n, "n", 4, "committee size")
	cmd.Flags().IntVar(&rounds, "rounds", 500, "number of rounds to advance per peer")
	return cmd
}

func runBench(cmd *cobra.Command, n, rounds int) error {
	drivers, lb, err := buildCommittee(n)
	if err != nil {
		return err
	}
	for i, d := range drivers {
		d.PutSequence([]byte(fmt.Sprintf("bench-%d", i)))
	}

	ctx := context.Background()
	startBlocks := drivers[0].CurrentBlockNo()
	start := time.Now()
	for round := 0; round < rounds; round++ {
		for _, d := range drivers {
			if err := d.AdvanceRound(); err != nil {
				return err
			}
			for _, out := range d.GetMessages() {
				if err := lb.Send(ctx, out.Dest, out.Msg); err != nil {
					return err
				}
			}
		}
	}
	elapsed := time.Since(start)

	totalRounds := float64(rounds * n)
	decided := float64(drivers[0].CurrentBlockNo() - startBlocks)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "elapsed: %s\n", elapsed)
	fmt.Fprintf(out, "rounds/sec: %.1f\n", totalRounds/elapsed.Seconds())
	fmt.Fprintf(out, "decisions/sec: %.1f\n", decided/elapsed.Seconds())
	return nil
}
