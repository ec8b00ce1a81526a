// cmd/qcp/cmd/mockorg.go
package cmd

import (
	"github.com/spf13/cobra"

	"qcpsync/internal/mockorg"
)

var (
	mockorgAddr string
	mockorgDB   string
)

var mockorgCmd = &cobra.Command{
	Use:   "mockorg",
	Short: "Запустить локальную организацию-заглушку",
	Long: `Поднимает локальный HTTP-сервер с минимальным срезом REST API
организации: oauth-токены, SOQL-запросы по скриптам, CRUD записей и
QuoteReader. Удобен для разработки без настоящей организации.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("addr") && cfg.MockOrgAddr != "" {
			mockorgAddr = cfg.MockOrgAddr
		}

		storage, err := mockorg.NewStorage(mockorgDB)
		if err != nil {
			return err
		}
		defer storage.Close()

		return mockorg.NewServer(storage, log).ListenAndServe(mockorgAddr)
	},
}

func init() {
	mockorgCmd.Flags().StringVar(&mockorgAddr, "addr", "localhost:8787", "адрес сервера")
	mockorgCmd.Flags().StringVar(&mockorgDB, "db", ":memory:", "путь к базе sqlite")

	rootCmd.AddCommand(mockorgCmd)
}
