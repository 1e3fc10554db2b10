package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/beamdrop/beamdrop/internal/version"
)

// CLI flags shared by all commands
var (
	flagHost     string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagInsecure bool
	flagNoRTC    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "beamdrop",
	Short: "Peer-to-peer file and text sharing between devices in the same room",
	Long: `BeamDrop shares files and text directly between devices. A rendezvous
server groups devices into a room and relays the WebRTC handshake; the
bytes themselves travel over a direct data channel, falling back to a
server relay when a direct connection cannot be established.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		for s := range sig {
			fmt.Println(s.String())
			os.Exit(0)
		}
	}()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagHost, "host", "H", "", "Rendezvous server host")
	rootCmd.PersistentFlags().StringVarP(&flagSTUN, "stun", "s", "", "Custom STUN server")
	rootCmd.PersistentFlags().StringVarP(&flagTURN, "turn", "t", "", "Custom TURN server")
	rootCmd.PersistentFlags().StringVarP(&flagTURNUser, "turn-user", "u", "", "TURN username")
	rootCmd.PersistentFlags().StringVarP(&flagTURNPass, "turn-pass", "p", "", "TURN password")
	rootCmd.PersistentFlags().BoolVar(&flagInsecure, "insecure", false, "Use ws:// instead of wss://")
	rootCmd.PersistentFlags().BoolVar(&flagNoRTC, "no-rtc", false, "Skip WebRTC and use the server relay")
}
