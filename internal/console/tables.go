package console

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/OpenTraceLab/OpenTraceKNX/pkg/checkpoint"
	"github.com/OpenTraceLab/OpenTraceKNX/pkg/knx"
)

// InterfaceTable renders the detected bus interfaces.
func InterfaceTable(infos []knx.InterfaceInfo) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"#", "Kind", "Interface", "VID:PID", "Connection"})
	for i, info := range infos {
		ids := "-"
		if info.Kind == knx.InterfaceKindUSB {
			ids = fmt.Sprintf("%04X:%04X", info.VendorID, info.ProductID)
		}
		tbl.AppendRow(table.Row{
			fmt.Sprint(i + 1),
			string(info.Kind),
			info.Label(),
			ids,
			info.Parameters().String(),
		})
	}
	return tbl.Render()
}

// CheckpointTable renders the stored checkpoints of one identity.
func CheckpointTable(recs []checkpoint.Record) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Stage", "Level", "Index", "Seed", "State"})
	for _, r := range recs {
		index, state := "-", "exhausted"
		if !r.Done() {
			index, state = fmt.Sprint(r.Index), "in progress"
		}
		seed := "-"
		if r.HasSeed {
			seed = fmt.Sprint(r.Seed)
		}
		tbl.AppendRow(table.Row{
			r.Stage.String(),
			fmt.Sprint(uint8(r.Stage)),
			index,
			seed,
			state,
		})
	}
	return tbl.Render()
}

// Checkpoints prints the checkpoint table of the identity name.
func (p *Printer) Checkpoints(name string, recs []checkpoint.Record) {
	if len(recs) == 0 {
		fmt.Fprintf(p.w, "No checkpoints for %s\n", name)
		return
	}
	fmt.Fprintf(p.w, "Checkpoints for %s\n", name)
	fmt.Fprintln(p.w, CheckpointTable(recs))
}

// Interfaces prints the interface table.
func (p *Printer) Interfaces(infos []knx.InterfaceInfo) {
	if len(infos) == 0 {
		fmt.Fprintln(p.w, "No interfaces found.")
		return
	}
	fmt.Fprintln(p.w, "Detected KNX interfaces:")
	fmt.Fprintln(p.w, InterfaceTable(infos))
}
