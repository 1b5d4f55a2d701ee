package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/exiloncms/exiloncms/internal/services"
)

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printExtensions(out io.Writer, items []services.ExtensionDTO) error {
	tw := newTable(out)
	fmt.Fprintln(tw, "ID\tNAME\tVERSION\tSTATE\tSOURCE")
	for _, item := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", item.ID, item.Name, item.Version, extensionState(item), item.Source)
	}
	return tw.Flush()
}

func extensionState(item services.ExtensionDTO) string {
	switch {
	case item.Error != "":
		return "error"
	case item.Missing:
		return "missing"
	case !item.Compatible:
		return "incompatible"
	case item.Enabled:
		return "enabled"
	default:
		return "disabled"
	}
}
