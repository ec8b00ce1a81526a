// cmd/qcp/cmd/activity.go
package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"qcpsync/internal/activity"
)

var activityLimit int

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Показать журнал операций push/pull",
	RunE: func(cmd *cobra.Command, args []string) error {
		entries := app.Activity()
		if len(entries) == 0 {
			fmt.Println("Журнал операций пуст")
			return nil
		}
		if activityLimit > 0 && len(entries) > activityLimit {
			entries = entries[:activityLimit]
		}

		success := color.New(color.FgGreen)
		failure := color.New(color.FgRed)

		for _, entry := range entries {
			marker := success.Sprint("✅")
			if entry.Status == activity.StatusError {
				marker = failure.Sprint("❌")
			}

			subject := entry.RecordName
			if subject == "" {
				subject = entry.FileName
			}

			fmt.Printf("%s %s  %-4s  %s", marker, entry.Timestamp, entry.Action, subject)
			if entry.Error != "" {
				fmt.Printf("  (%s)", entry.Error)
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	activityCmd.Flags().IntVarP(&activityLimit, "limit", "n", 20, "сколько записей показать, 0 - все")

	rootCmd.AddCommand(activityCmd)
}
