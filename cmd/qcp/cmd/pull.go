// cmd/qcp/cmd/pull.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"qcpsync/internal/domain/script"
)

var (
	pullRecordID     string
	pullOverwriteAll bool
)

var pullCmd = &cobra.Command{
	Use:   "pull [файл]",
	Short: "Выгрузить скрипты из организации в src",
	Long: `Без аргументов выгружает все записи организации и заменяет
таблицу сопоставлений выгруженным набором. С аргументом-файлом или
флагом --record-id выгружается одна запись.

Для файлов, содержимое которых отличается от организации,
запрашивается решение: backup, overwrite, skip, их варианты "для
всех" или отмена операции.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			saved []script.CustomScript
			err   error
		)
		switch {
		case len(args) == 1:
			saved, err = app.PullFile(cmd.Context(), args[0])
		case pullRecordID != "":
			saved, err = app.PullRecord(cmd.Context(), pullRecordID)
		default:
			saved, err = app.PullAll(cmd.Context(), pullOverwriteAll)
		}
		if err != nil {
			return err
		}

		fmt.Println()
		if len(saved) == 1 {
			fmt.Printf("✅ Скачан и сохранён 1 файл из Salesforce\n")
		} else {
			fmt.Printf("✅ Скачано и сохранено %d файлов из Salesforce\n", len(saved))
		}
		return nil
	},
}

func init() {
	pullCmd.Flags().StringVar(&pullRecordID, "record-id", "", "Id записи для выгрузки")
	pullCmd.Flags().BoolVar(&pullOverwriteAll, "overwrite-all", false, "перезаписывать локальные файлы без вопросов")

	rootCmd.AddCommand(pullCmd)
}
