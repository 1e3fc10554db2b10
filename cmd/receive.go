package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/beamdrop/beamdrop/internal/events"
	"github.com/beamdrop/beamdrop/internal/session"
	"github.com/beamdrop/beamdrop/internal/store"
	"github.com/beamdrop/beamdrop/internal/ui"
	"github.com/beamdrop/beamdrop/internal/utils"
)

var flagOutputDir string

var receiveCmd = &cobra.Command{
	Use:     "receive",
	Aliases: []string{"r"},
	Short:   "Wait in the room and receive files and messages",
	Long: `Join the room and accept incoming transfers until interrupted.

Examples:
  beamdrop receive
  beamdrop receive --output ~/Downloads
  beamdrop receive --no-rtc`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return receiveFiles()
	},
}

func receiveFiles() error {
	engine, err := NewEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	engine.Bus.On(events.FileReceived, func(detail any) {
		rf, ok := detail.(session.ReceivedFile)
		if !ok {
			return
		}
		path, err := store.Save(flagOutputDir, rf.Artifact)
		if err != nil {
			ui.PrintErrorf("saving %s: %v", rf.Artifact.Name, err)
			return
		}
		ui.PrintSuccessf("%s %s (%s) from %s -> %s",
			ui.IconReceive, rf.Artifact.Name, utils.FormatSize(rf.Artifact.Size), rf.Sender, path)
	})

	engine.Bus.On(events.TextReceived, func(detail any) {
		rt, ok := detail.(session.ReceivedText)
		if !ok {
			return
		}
		fmt.Printf("%s %s: %s\n", ui.IconText, rt.Sender, rt.Text)
	})

	engine.Bus.On(events.NotifyUser, func(detail any) {
		if msg, ok := detail.(string); ok {
			ui.PrintWarning(msg)
		}
	})

	roomPeers, err := WaitForPeers(engine, 30*time.Second)
	if err != nil {
		return err
	}

	items := make([]ui.PeerTableItem, len(roomPeers))
	for i, p := range roomPeers {
		transport := "relay"
		if engine.Config.RTCSupported() && p.RTCSupported {
			transport = "webrtc"
		}
		items[i] = ui.PeerTableItem{Index: i + 1, ID: p.ID, Transport: transport}
	}
	ui.RenderPeerTable(items)
	ui.PrintInfo("Waiting for transfers. Press Ctrl+C to leave.")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
	return nil
}

func init() {
	rootCmd.AddCommand(receiveCmd)
	receiveCmd.Flags().StringVarP(&flagOutputDir, "output", "o", "", "Directory for received files")
}
