package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"boq-estimator/internal/prompt"
)

func listTemplates(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPURPOSE\tSYSTEM\tIMAGE")
	for _, t := range prompt.DefaultCatalog().List() {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%t\n", t.ID(), t.Purpose, t.System != "", t.Image)
	}
	return tw.Flush()
}
