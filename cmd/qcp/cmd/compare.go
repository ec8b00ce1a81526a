// cmd/qcp/cmd/compare.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	compareRecordA string
	compareRecordB string
	compareField   string
)

var compareCmd = &cobra.Command{
	Use:   "compare [файл] [файл]",
	Short: "Сравнить скрипты между собой и с организацией",
	Long: `Варианты сравнения:
  qcp compare <файл>                      - файл с его записью по сопоставлению
  qcp compare <файл> --record-a <id>      - файл с произвольной записью
  qcp compare <файл> <файл>               - два локальных файла
  qcp compare --record-a <id> --record-b <id> - две записи организации

Флаг --field выбирает поле записи, по умолчанию тело кода
(SBQQ__Code__c); SBQQ__TranspiledCode__c - скомпилированная версия.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		switch {
		case len(args) == 2:
			return app.CompareLocalFiles(ctx, args[0], args[1])
		case len(args) == 1 && compareRecordA != "":
			return app.CompareWithRemote(ctx, args[0], compareRecordA, compareField)
		case len(args) == 1:
			return app.CompareWithMapped(ctx, args[0])
		case compareRecordA != "" && compareRecordB != "":
			return app.CompareRemoteRecords(ctx, compareRecordA, compareRecordB, compareField)
		default:
			return fmt.Errorf("укажите файлы или записи для сравнения, см. qcp compare --help")
		}
	},
}

func init() {
	compareCmd.Flags().StringVar(&compareRecordA, "record-a", "", "Id первой записи организации")
	compareCmd.Flags().StringVar(&compareRecordB, "record-b", "", "Id второй записи организации")
	compareCmd.Flags().StringVar(&compareField, "field", "", "поле записи для сравнения")

	rootCmd.AddCommand(compareCmd)
}
