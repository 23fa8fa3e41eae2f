package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gdanezis/dlsconsensus-go/config"
	"github.com/gdanezis/dlsconsensus-go/dls"
)

func checkCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate a session config for N peers and report its fault tolerance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, n)
		},
	}
	cmd.Flags().IntVar(&n, "n", 4, "committee size")
	return cmd
}

func runCheck(cmd *cobra.Command, n int) error {
	cfg, err := syntheticSession(n, 0)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "N = %d\n", cfg.N())
	fmt.Fprintf(out, "f = %d (tolerated Byzantine peers)\n", cfg.F())
	fmt.Fprintf(out, "quorum = N - f = %d\n", cfg.N()-cfg.F())
	return nil
}

// syntheticSession builds a config.Session for an N-peer loopback
// committee with deterministic addresses and key material, used by all
// three subcommands so "check" validates exactly what "sim"/"bench" run.
func syntheticSession(n, myID int) (config.Session, error) {
	addrs := make([]string, n)
	pubs := make([][]byte, n)
	for i := 0; i < n; i++ {
		addrs[i] = fmt.Sprintf("peer-%d", i)
		pubs[i] = []byte(fmt.Sprintf("key-%d", i))
	}
	return config.New(config.Session{
		MyID:        myID,
		PrivateKey:  pubs[myID],
		PublicKeys:  pubs,
		Addrs:       addrs,
		Channel:     "sim",
		StartRound:  0,
		BackupSinks: []dls.Sink{dls.NewMemSink()},
	})
}
