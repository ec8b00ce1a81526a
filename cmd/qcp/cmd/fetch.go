// cmd/qcp/cmd/fetch.go
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var fetchFileName string

var fetchCmd = &cobra.Command{
	Use:   "fetch <quoteId>",
	Short: "Скачать модель квоты в data",
	Long: `Запрашивает модель квоты через SBQQ.QuoteAPI.QuoteReader и
сохраняет отформатированный JSON в директорию data проекта.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if fetchFileName != "" && !strings.HasSuffix(strings.ToLower(fetchFileName), ".json") {
			return fmt.Errorf("имя файла должно заканчиваться на .json")
		}

		target, err := app.FetchQuoteModel(cmd.Context(), args[0], fetchFileName)
		if err != nil {
			return err
		}

		fmt.Printf("✅ Модель квоты сохранена в %s\n", target)
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchFileName, "out", "", "имя файла результата (расширение json)")

	rootCmd.AddCommand(fetchCmd)
}
