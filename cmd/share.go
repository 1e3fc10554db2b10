package cmd

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/beamdrop/beamdrop/internal/events"
	"github.com/beamdrop/beamdrop/internal/peers"
	"github.com/beamdrop/beamdrop/internal/session"
	"github.com/beamdrop/beamdrop/internal/transfer"
	"github.com/beamdrop/beamdrop/internal/ui"
	"github.com/beamdrop/beamdrop/internal/utils"
)

var flagTo string

var shareCmd = &cobra.Command{
	Use:     "share <files...>",
	Aliases: []string{"s"},
	Short:   "Send files to a peer in the room",
	Long: `Send files directly to another device in the room.

Examples:
  beamdrop share file1.txt file2.pdf
  beamdrop share --to 3f2a91 file.txt
  beamdrop share --no-rtc file.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return shareFiles(args)
	},
}

func shareFiles(paths []string) error {
	files, closeFiles, err := openFiles(paths)
	if err != nil {
		return err
	}
	defer closeFiles()

	displayFileTable(files)

	engine, err := NewEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	tracker := ui.NewTracker(fileNames(files), fileSizes(files))
	watchProgress(engine, tracker, len(files))

	stopSpinner := ui.RunWaitingSpinner("Looking for peers in the room...")
	roomPeers, err := WaitForPeers(engine, 30*time.Second)
	stopSpinner()
	if err != nil {
		return err
	}
	if len(roomPeers) == 0 {
		return transfer.WrapError("share", transfer.ErrPeerDisconnected, "room is empty")
	}

	target := flagTo
	if target == "" {
		target = roomPeers[0].ID
	}

	ui.PrintInfof("Sending %d file(s) to %s", len(files), target)
	engine.Bus.Fire(events.FilesSelected, peers.FilesSelected{To: target, Files: files})

	if err := tracker.Run(); err != nil {
		return transfer.NewError("progress display", err)
	}

	renderSummary(files, tracker.Duration())
	return nil
}

// watchProgress maps the session's per-peer progress stream onto the
// per-file bars. Transfers complete in queue order, so a bar is done when
// its fraction reaches 1 and the next file takes over.
func watchProgress(engine *Engine, tracker *ui.Tracker, files int) {
	var mu sync.Mutex
	index := 0
	engine.Bus.On(events.FileProgress, func(detail any) {
		p, ok := detail.(session.Progress)
		if !ok {
			return
		}
		mu.Lock()
		i := index
		if p.Progress >= 1 {
			index++
		}
		mu.Unlock()
		if i < files {
			tracker.Update(i, p.Progress)
		}
	})
}

func openFiles(paths []string) ([]*transfer.File, func(), error) {
	var files []*transfer.File
	var handles []*os.File
	closeAll := func() {
		for _, h := range handles {
			h.Close()
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			closeAll()
			return nil, nil, transfer.NewFileError("stat", path, err)
		}
		if info.IsDir() {
			closeAll()
			return nil, nil, transfer.NewFileError("open", path, fmt.Errorf("is a directory"))
		}
		f, err := os.Open(path)
		if err != nil {
			closeAll()
			return nil, nil, transfer.NewFileError("open", path, err)
		}
		handles = append(handles, f)
		files = append(files, &transfer.File{
			Name:   filepath.Base(path),
			Mime:   mime.TypeByExtension(filepath.Ext(path)),
			Size:   info.Size(),
			Source: f,
		})
	}
	return files, closeAll, nil
}

func displayFileTable(files []*transfer.File) {
	items := make([]ui.FileTableItem, len(files))
	for i, f := range files {
		items[i] = ui.FileTableItem{Index: i + 1, Name: f.Name, Size: f.Size, Type: f.Mime}
	}
	fmt.Println()
	ui.RenderFileTable(items)
}

func fileNames(files []*transfer.File) []string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return names
}

func fileSizes(files []*transfer.File) []int64 {
	sizes := make([]int64, len(files))
	for i, f := range files {
		sizes[i] = f.Size
	}
	return sizes
}

func renderSummary(files []*transfer.File, duration time.Duration) {
	var total int64
	for _, f := range files {
		total += f.Size
	}
	seconds := duration.Seconds()
	if seconds <= 0 {
		seconds = 1
	}

	fmt.Println()
	ui.RenderTransferSummary(ui.TransferSummary{
		Status:    "Complete",
		Files:     len(files),
		TotalSize: utils.FormatSize(total),
		Duration:  utils.FormatTimeDuration(duration),
		Speed:     utils.FormatSpeed(float64(total) / seconds),
	})
}

func init() {
	rootCmd.AddCommand(shareCmd)
	shareCmd.Flags().StringVar(&flagTo, "to", "", "Target peer id (defaults to the first peer)")
}
