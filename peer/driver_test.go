package peer

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/gdanezis/dlsconsensus-go/config"
	"github.com/gdanezis/dlsconsensus-go/dls"
	"github.com/gdanezis/dlsconsensus-go/message"
	"github.com/gdanezis/dlsconsensus-go/metrics"
	"github.com/gdanezis/dlsconsensus-go/signer"
)

func fourPeerConfigs(t *testing.T) []config.Session {
	t.Helper()
	addrs := []string{"A", "B", "C", "D"}
	pubs := [][]byte{[]byte("kA"), []byte("kB"), []byte("kC"), []byte("kD")}

	cfgs := make([]config.Session, 4)
	for i := range cfgs {
		c, err := config.New(config.Session{
			MyID:        i,
			PrivateKey:  pubs[i],
			PublicKeys:  pubs,
			Addrs:       addrs,
			Channel:     "Shard0",
			StartRound:  0,
			BackupSinks: []dls.Sink{dls.NewMemSink()},
		})
		require.NoError(t, err)
		cfgs[i] = c
	}
	return cfgs
}

func TestNewDriverStartsAtBlockZero(t *testing.T) {
	cfgs := fourPeerConfigs(t)
	d, err := New(cfgs[0])
	require.NoError(t, err)
	require.Equal(t, "A", d.MyAddr())
	require.Equal(t, uint64(0), d.CurrentBlockNo())
}

// TestMultiPeerConverges mirrors the reference implementation's
// test_many_load: four fully connected peers, each with its own pending
// item, advance rounds and route messages until every peer has
// committed at least targetBlocks blocks.
func TestMultiPeerConverges(t *testing.T) {
	cfgs := fourPeerConfigs(t)
	addrs := []string{"A", "B", "C", "D"}
	drivers := make(map[string]*Driver, 4)
	for i, addr := range addrs {
		d, err := New(cfgs[i])
		require.NoError(t, err)
		drivers[addr] = d
	}

	for i, addr := range addrs {
		drivers[addr].PutSequence([]byte("M" + string(rune('A'+i))))
	}

	const targetBlocks = 3
	for round := 0; round < 400; round++ {
		var allDone = true
		for _, addr := range addrs {
			d := drivers[addr]
			require.NoError(t, d.AdvanceRound())
			for _, out := range d.GetMessages() {
				require.NoError(t, drivers[out.Dest].PutMessages([]message.Wire{out.Msg}))
			}
			if d.CurrentBlockNo() < targetBlocks {
				allDone = false
			}
		}
		if allDone {
			break
		}
	}

	for _, addr := range addrs {
		require.GreaterOrEqual(t, drivers[addr].CurrentBlockNo(), uint64(targetBlocks))
	}
}

// TestPutMessagesReplaysDecisionForPastBlock drives spec.md S5: a peer
// that has already committed old_blocks=[(1,2,3),(4,5,6)] (mirroring the
// reference implementation's test_decision, which seeds peer.seq.old_blocks
// the same way) and receives an ASK naming bno=1 replies with exactly one
// decision for that block, carrying block=(4,5,6), rather than routing
// the ASK into the active state machine.
func TestPutMessagesReplaysDecisionForPastBlock(t *testing.T) {
	cfgs := fourPeerConfigs(t)
	d, err := New(cfgs[0])
	require.NoError(t, err)

	blockA := [][]byte{[]byte("1"), []byte("2"), []byte("3")}
	blockB := [][]byte{[]byte("4"), []byte("5"), []byte("6")}
	require.NoError(t, d.seq.SetBlock(0, blockA))
	require.NoError(t, d.seq.SetBlock(1, blockB))
	d.currentBlockNo = 2

	ask := &message.Ask{Channel: d.channel, Sender: "C", Bno: 1}
	require.NoError(t, d.PutMessages([]message.Wire{ask}))

	out := d.GetMessages()
	require.Len(t, out, 1)
	require.Equal(t, "C", out[0].Dest)
	dec, ok := out[0].Msg.(*message.Decision)
	require.True(t, ok)
	require.Equal(t, blockB, dec.Block)
}

// TestPutMessagesReplaysDecisionForFutureBlockNoOpsWithoutOne covers the
// other half of the replay predicate: a wire message naming a block number
// ahead of the current one (this peer is behind the sender) is answered by
// whatever decisions this peer has already recorded for that block, rather
// than being fed to the active machine, which only ever processes
// currentBlockNo. With none recorded, nothing is sent.
func TestPutMessagesReplaysDecisionForFutureBlockNoOpsWithoutOne(t *testing.T) {
	cfgs := fourPeerConfigs(t)
	d, err := New(cfgs[0])
	require.NoError(t, err)

	ask := &message.Ask{Channel: d.channel, Sender: "C", Bno: 5}
	require.NoError(t, d.PutMessages([]message.Wire{ask}))
	require.Empty(t, d.GetMessages())
}

func TestHasQuorumRequiresNMinusFVotes(t *testing.T) {
	cfgs := fourPeerConfigs(t)
	d, err := New(cfgs[0])
	require.NoError(t, err)

	require.Nil(t, d.HasQuorum(0))

	block := [][]byte{[]byte("x")}
	d.decisions[0] = map[string]*message.Decision{
		"A": {Sender: "A", Bno: 0, Block: block},
		"B": {Sender: "B", Bno: 0, Block: block},
	}
	require.Nil(t, d.HasQuorum(0), "N=4, f=1: two votes is short of the N-f=3 quorum")

	d.decisions[0]["C"] = &message.Decision{Sender: "C", Bno: 0, Block: block}
	require.Equal(t, block, d.HasQuorum(0))
}

func TestHasQuorumIgnoresMinorityDissent(t *testing.T) {
	cfgs := fourPeerConfigs(t)
	d, err := New(cfgs[0])
	require.NoError(t, err)

	majority := [][]byte{[]byte("majority")}
	minority := [][]byte{[]byte("minority")}
	d.decisions[0] = map[string]*message.Decision{
		"A": {Sender: "A", Bno: 0, Block: majority},
		"B": {Sender: "B", Bno: 0, Block: majority},
		"C": {Sender: "C", Bno: 0, Block: majority},
		"D": {Sender: "D", Bno: 0, Block: minority},
	}
	require.Equal(t, majority, d.HasQuorum(0))
}

// TestDecodeRawDropsBadSignature exercises decodeRaw's verification path
// directly through PutMessages: a message claiming to be from peer B but
// signed with the wrong key is dropped, counted in metrics, and never
// reaches the state machine.
func TestDecodeRawDropsBadSignature(t *testing.T) {
	cfgs := fourPeerConfigs(t)
	met, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	d, err := New(cfgs[0], WithMetrics(met))
	require.NoError(t, err)

	forged := &message.Acceptable{
		Channel: d.channel,
		Sender:  "B",
		Bno:     0,
		Phase:   0,
		Blocks:  [][][]byte{{[]byte("x")}},
	}
	require.NoError(t, signer.Sign(signer.Key("not-B-s-key"), forged))

	require.NoError(t, d.PutMessages([]message.Wire{forged}))
	require.Empty(t, d.GetMessages())
	require.Equal(t, float64(1), testutil.ToFloat64(met.MessagesDropped.WithLabelValues(metrics.ReasonBadSignature)))
}

// TestDecodeRawDropsUnknownSender exercises the other decodeRaw drop
// path: a sender address not in the committee's address table.
func TestDecodeRawDropsUnknownSender(t *testing.T) {
	cfgs := fourPeerConfigs(t)
	met, err := metrics.New(prometheus.NewRegistry())
	require.NoError(t, err)
	d, err := New(cfgs[0], WithMetrics(met))
	require.NoError(t, err)

	ghost := &message.Ack{Channel: d.channel, Sender: "ghost", Bno: 0, Phase: 0, Block: [][]byte{[]byte("x")}}
	require.NoError(t, signer.Sign(signer.Key("anything"), ghost))

	require.NoError(t, d.PutMessages([]message.Wire{ghost}))
	require.Empty(t, d.GetMessages())
	require.Equal(t, float64(1), testutil.ToFloat64(met.MessagesDropped.WithLabelValues(metrics.ReasonMalformed)))
}
