package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tabulardb/tabular"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Ingest a spreadsheet file as a new dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]

		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer func() {
			_ = file.Close()
		}()

		sheet, err := tabular.ParseSheet(path, file)
		if err != nil {
			return err
		}

		svc, store, err := openService()
		if err != nil {
			return err
		}
		defer func() {
			svc.Close()
			_ = store.Close()
		}()

		datasetID, _ := cmd.Flags().GetString("id")
		if datasetID == "" {
			datasetID = uuid.NewString()
		}

		result, err := svc.Ingest(cmd.Context(), datasetID, sheet)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(map[string]any{
			"id":             datasetID,
			"processedCount": result.ProcessedCount,
			"errorCount":     result.ErrorCount,
			"totalColumns":   len(sheet.Header),
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("id", "", "dataset id (default: a new UUID)")
}
