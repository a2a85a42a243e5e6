package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/use-agent/strata/store"
)

var exportDir string

func init() {
	exportCmd.Flags().StringVarP(&exportDir, "out", "o", "", "output directory (default store.export_dir)")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Copy the latest datasets to fixed file names for a static API mirror",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := exportDir
		if out == "" {
			out = cfg.Store.ExportDir
		}
		written, err := store.New(cfg.Store.ResultDir).Export(out, store.DefaultExports)
		for _, p := range written {
			fmt.Println("wrote", p)
		}
		return err
	},
}
