package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/ragingest/internal/models"
)

var (
	statusTenant string
	statusFilter string
	statusLimit  int
	statusJSON   bool
)

var statusCmd = &cobra.Command{
	Use:   "status [asset-id]",
	Short: "Show document processing status",
	Long: `With an asset id, prints that document's metadata record. Without one, lists
the tenant's documents newest first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusTenant, "tenant", "t", "", "tenant id")
	statusCmd.Flags().StringVar(&statusFilter, "status", "", "only documents in this status (uploaded, processed, failed)")
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 50, "maximum number of documents")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	_ = statusCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var docs []models.Document
	if len(args) == 1 {
		doc, err := a.pipeline.GetDocument(ctx, statusTenant, args[0])
		if err != nil {
			return err
		}
		docs = []models.Document{*doc}
	} else {
		docs, err = a.pipeline.ListDocuments(ctx, models.ListQuery{
			TenantID: statusTenant,
			Status:   models.Status(strings.ToUpper(statusFilter)),
			Limit:    statusLimit,
		})
		if err != nil {
			return err
		}
	}

	if statusJSON {
		data, err := json.MarshalIndent(docs, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal documents: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	printDocuments(cmd, docs)
	return nil
}

func statusColor(s models.Status) func(format string, a ...any) string {
	switch s {
	case models.StatusProcessed:
		return color.GreenString
	case models.StatusFailed:
		return color.RedString
	}
	return color.YellowString
}

func printDocuments(cmd *cobra.Command, docs []models.Document) {
	if len(docs) == 0 {
		cmd.Println("No documents found.")
		return
	}
	for _, d := range docs {
		cmd.Printf("%-10s %s  %s  %d chunks  %s\n",
			statusColor(d.Status)("%s", d.Status),
			d.AssetID,
			d.FileName,
			d.ChunkCount,
			d.CreatedAt.Format("2006-01-02 15:04:05"))
		if d.ErrorMessage != "" {
			cmd.Printf("           %s\n", color.RedString(d.ErrorMessage))
		}
	}
}
