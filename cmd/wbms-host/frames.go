package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muurk/wbms/internal/protocol"
	"github.com/muurk/wbms/internal/ui"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <hex>",
	Short: "Decode a protocol frame",
	Long: `Decode a protocol frame given as hex and show its header, sub-frame
fields and check status. Spaces, colons and a 0x prefix are ignored.`,
	Example: `  wbms-host decode f0ff0705 0c 0000000000000003 00000000 d44fd038
  wbms-host decode "03:f0:00:06:02:de:ad:..."`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDecode,
}

func runDecode(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	raw, err := parseHex(strings.Join(args, ""))
	if err == nil {
		var d *protocol.Description
		if d, err = protocol.Describe(raw); err == nil {
			if ui.IsTerminal() {
				fmt.Fprintln(out, ui.RenderFrame(d, ui.GetTerminalWidth()))
			} else {
				fmt.Fprint(out, ui.FormatFramePlain(d))
			}
			return nil
		}
	}

	if ui.IsTerminal() {
		fmt.Fprintln(out, ui.RenderFailure("Decode failed", err, []string{
			"Frames are [src][dst][seq][type][len][payload][check]",
			fmt.Sprintf("A frame is %d to %d bytes long", protocol.MinFrameSize, protocol.MaxFrameSize),
		}))
	}
	return err
}

// parseHex decodes hex input, ignoring separators and a 0x prefix
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	s = strings.NewReplacer(" ", "", ":", "", "-", "", "\n", "", "\t", "").Replace(s)
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return raw, nil
}

// Encode-heartbeat flags
var (
	heartbeatSeq       uint8
	heartbeatConnected string
)

var encodeHeartbeatCmd = &cobra.Command{
	Use:   "encode-heartbeat",
	Short: "Encode a heartbeat frame",
	Long: `Encode the broadcast heartbeat frame the host sends with the given
sequence number and connected-node bitmap, and print it as hex.`,
	Example: `  wbms-host encode-heartbeat --seq 7 --connected 0x3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		connected, err := strconv.ParseUint(heartbeatConnected, 0, 64)
		if err != nil {
			return fmt.Errorf("invalid --connected: %w", err)
		}
		frame, err := encodeHeartbeat(heartbeatSeq, connected)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(frame))
		return nil
	},
}

func init() {
	encodeHeartbeatCmd.Flags().Uint8Var(&heartbeatSeq, "seq", 0, "Heartbeat sequence number")
	encodeHeartbeatCmd.Flags().StringVar(&heartbeatConnected, "connected", "0", "Connected-node bitmap (decimal or 0x hex)")
}

func encodeHeartbeat(seq uint8, connected uint64) ([]byte, error) {
	payload := make([]byte, protocol.HeartbeatSize)
	if _, err := protocol.EncodeHeartbeat(connected, payload); err != nil {
		return nil, err
	}
	return protocol.BuildFrame(protocol.Header{
		Source:      protocol.AllNodes,
		Sequence:    seq,
		MessageType: protocol.MsgTypeHeartbeat,
	}, payload)
}
