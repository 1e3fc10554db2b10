package ui

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/beamdrop/beamdrop/internal/utils"
)

// FileTableItem is one row of the outbound file listing.
type FileTableItem struct {
	Index int
	Name  string
	Size  int64
	Type  string
}

// RenderFileTable prints the files queued for sending.
func RenderFileTable(items []FileTableItem) {
	if len(items) == 0 {
		fmt.Println(MutedStyle.Render("No files"))
		return
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "Name", "Size", "Type"})
	for _, item := range items {
		tw.AppendRow(table.Row{item.Index, item.Name, utils.FormatSize(item.Size), item.Type})
	}
	tw.Render()
}

// PeerTableItem is one row of the room member listing.
type PeerTableItem struct {
	Index     int
	ID        string
	Transport string
}

// RenderPeerTable prints the peers currently in the room.
func RenderPeerTable(items []PeerTableItem) {
	if len(items) == 0 {
		fmt.Println(MutedStyle.Render("No peers in the room yet"))
		return
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "Peer", "Transport"})
	for _, item := range items {
		tw.AppendRow(table.Row{item.Index, item.ID, item.Transport})
	}
	tw.Render()
}

// TransferSummary is the closing report of a share run.
type TransferSummary struct {
	Status    string
	Files     int
	TotalSize string
	Duration  string
	Speed     string
}

// RenderTransferSummary prints the summary table.
func RenderTransferSummary(summary TransferSummary) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleRounded)
	tw.AppendRow(table.Row{"Status", summary.Status})
	tw.AppendRow(table.Row{"Files", summary.Files})
	tw.AppendRow(table.Row{"Total Size", summary.TotalSize})
	tw.AppendRow(table.Row{"Duration", summary.Duration})
	tw.AppendRow(table.Row{"Avg Speed", summary.Speed})
	tw.Render()
}
