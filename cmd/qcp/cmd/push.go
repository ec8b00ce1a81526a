// cmd/qcp/cmd/push.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pushCmd = &cobra.Command{
	Use:   "push [файлы...]",
	Short: "Отправить локальные файлы в организацию",
	Long: `Отправляет перечисленные файлы в организацию, без аргументов -
все файлы src. Файлы без сопоставления ищутся в организации по
имени: одно совпадение обновляется, при нескольких обновляется
первое с предупреждением о дубликатах, без совпадений создается
новая запись.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		files := args
		if len(files) == 0 {
			var err error
			files, err = app.SrcFiles()
			if err != nil {
				return err
			}
		}
		if len(files) == 0 {
			return fmt.Errorf("в src нет файлов для отправки")
		}

		pushed, err := app.Push(cmd.Context(), files)
		if err != nil {
			return err
		}

		fmt.Println()
		switch {
		case len(pushed) == len(files) && len(pushed) == 1:
			fmt.Printf("✅ Запись %s отправлена в Salesforce\n", pushed[0].Name)
		case len(pushed) == len(files):
			fmt.Printf("✅ Отправлено %d записей в Salesforce\n", len(pushed))
		default:
			fmt.Printf("⚠️  Отправлено %d из %d файлов, подробности в журнале (qcp activity)\n", len(pushed), len(files))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pushCmd)
}
