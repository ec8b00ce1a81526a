// cmd/qcp/cmd/root.go
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"

	"qcpsync/internal/app/qcp"
	"qcpsync/internal/config"
	"qcpsync/internal/utils/logger"
)

var (
	cfg *config.Config
	log *slog.Logger
	app *qcp.App

	projectDir string
)

var rootCmd = &cobra.Command{
	Use:   "qcp",
	Short: "QCP - синхронизация скриптов Quote Calculator с организацией Salesforce",
	Long: `QCP синхронизирует локальные файлы src/*.ts с записями
SBQQ__CustomScript__c организации Salesforce CPQ.

Токены OAuth хранятся в конфигурации проекта в зашифрованном виде,
каждая операция push/pull записывается в журнал .qcp/qcp-log.json.`,
	PersistentPreRunE: setupApp,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}

func setupApp(cmd *cobra.Command, _ []string) error {
	cfg = config.MustLoad()
	if projectDir != "" {
		cfg.ProjectDir = projectDir
	}

	log = logger.New(cfg.Env)

	// Локальной организации проект не нужен
	if cmd.Name() == "mockorg" {
		return nil
	}

	var err error
	app, err = qcp.New(cfg, log)
	if err != nil {
		return fmt.Errorf("ошибка инициализации приложения: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectDir, "project", "", "корень проекта (по умолчанию текущая директория)")
}
