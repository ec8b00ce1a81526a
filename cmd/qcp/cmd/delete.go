// cmd/qcp/cmd/delete.go
package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	deleteRemote bool
	deleteYes    bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete <файл>",
	Short: "Убрать файл из-под синхронизации",
	Long: `Удаляет сопоставление файла из конфигурации проекта. С флагом
--remote удаляется и сама запись из организации. Локальный файл
не трогается.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if deleteRemote && !deleteYes {
			ok, err := confirm(fmt.Sprintf("Удалить запись для %s из организации?", args[0]))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Отменено")
				return nil
			}
		}

		removed, err := app.DeleteMapping(cmd.Context(), args[0], deleteRemote)
		if err != nil {
			return err
		}
		if removed == nil {
			return fmt.Errorf("для файла %s нет сопоставления", args[0])
		}

		fmt.Printf("✅ Сопоставление файла %s удалено\n", args[0])
		if deleteRemote {
			fmt.Printf("✅ Запись %s удалена из Salesforce\n", removed.Record.ID)
		}
		return nil
	},
}

func confirm(prompt string) (bool, error) {
	fmt.Printf("%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("ошибка чтения ввода: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func init() {
	deleteCmd.Flags().BoolVar(&deleteRemote, "remote", false, "удалить и запись из организации")
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "не спрашивать подтверждение")

	rootCmd.AddCommand(deleteCmd)
}
