// cmd/qcp/cmd/backup.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	backupSource string
	backupFile   string
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Сохранить копии скриптов в директорию бэкапа",
	Long: `Источник local копирует файлы из src, источник remote выгружает
все записи организации. Директория бэкапа именуется текущей датой,
при занятости имени добавляется числовой суффикс.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			dir string
			err error
		)
		switch backupSource {
		case "local":
			dir, err = app.BackupLocal(backupFile)
		case "remote":
			dir, err = app.BackupRemote(cmd.Context())
		default:
			return fmt.Errorf("неизвестный источник бэкапа: %s", backupSource)
		}
		if err != nil {
			return err
		}

		fmt.Printf("✅ Бэкап (%s) сохранён в %s\n", backupSource, dir)
		return nil
	},
}

func init() {
	backupCmd.Flags().StringVar(&backupSource, "source", "local", "источник бэкапа (local, remote)")
	backupCmd.Flags().StringVar(&backupFile, "file", "", "сохранить только один файл из src (имя с расширением)")

	rootCmd.AddCommand(backupCmd)
}
