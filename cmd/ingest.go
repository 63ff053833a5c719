package main

import (
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "CRM ingestion pipeline",
	Long:  "Incrementally syncs leads, contacts, owners, form submissions, and sales truth totals into crm_data.* Postgres tables.",
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}
