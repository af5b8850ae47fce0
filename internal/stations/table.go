package stations

import (
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// WriteTable renders records as a text table.
func WriteTable(w io.Writer, recs []Record) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Station", "Vendor", "Model", "Firmware", "Status", "Connected", "Last seen", "Connectors"})
	for _, r := range recs {
		t.AppendRow(table.Row{
			r.ID,
			r.VendorName,
			r.Model,
			r.FirmwareVersion,
			r.Registration,
			yesNo(r.Connected),
			since(r.LastSeen),
			connectors(r.Connectors),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "Total", len(recs)})
	t.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func since(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return time.Since(ts).Truncate(time.Second).String() + " ago"
}

func connectors(m map[string]string) string {
	if len(m) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + m[k]
	}
	return strings.Join(parts, " ")
}
