package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/farm-seeder/internal/leads"
)

var leadsFile string

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Print the validated lead list without touching any backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		file := cfg.Seed.LeadsFile
		if leadsFile != "" {
			file = leadsFile
		}
		batch, err := leads.Resolve(file)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "#\tNAME\tADDRESS\tPRODUCTS\tPHONE")
		for i, l := range batch {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", i+1, l.Name, l.Address, strings.Join(l.Products, ", "), l.Phone)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d leads\n", len(batch))
		return nil
	},
}

func init() {
	leadsCmd.Flags().StringVar(&leadsFile, "file", "", "lead file (.yaml, .csv, .xlsx); default from config, else the built-in leads")
	rootCmd.AddCommand(leadsCmd)
}
