// internal/project/paths.go
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	ConfigFile    = ".qcp/qcp-config.json"
	LogFile       = ".qcp/qcp-log.json"
	LogBackupFile = ".qcp/qcp-log.bak.json"
	SrcDir        = "src"
	DataDir       = "data"
)

// Символы, недопустимые в именах файлов хотя бы на одной из
// поддерживаемых файловых систем
var unsafeFileChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// Sanitize приводит имя записи к безопасному имени файла
func Sanitize(name string) string {
	name = unsafeFileChars.ReplaceAllString(name, "")
	name = strings.TrimRight(name, ". ")
	if name == "" {
		name = "unnamed"
	}
	return name
}

// SrcPath возвращает путь локального файла для записи с данным именем
func SrcPath(root, recordName string) string {
	return filepath.Join(root, SrcDir, Sanitize(recordName)+".ts")
}

// gitignoreEntries - пути, которые не должны попадать в репозиторий:
// .qcp хранит токены и журнал, .env - локальные настройки процесса
var gitignoreEntries = []string{".qcp/", ".env"}

// Scaffold создает структуру проекта: директорию src и записи в
// .gitignore. Существующие файлы не трогает
func Scaffold(root string) error {
	if err := os.MkdirAll(filepath.Join(root, SrcDir), 0755); err != nil {
		return fmt.Errorf("ошибка создания директории src: %w", err)
	}

	gitignorePath := filepath.Join(root, ".gitignore")
	existing, err := os.ReadFile(gitignorePath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка чтения .gitignore: %w", err)
	}

	lines := map[string]bool{}
	for _, line := range strings.Split(string(existing), "\n") {
		lines[strings.TrimSpace(line)] = true
	}

	var missing []string
	for _, entry := range gitignoreEntries {
		if !lines[entry] {
			missing = append(missing, entry)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	content := string(existing)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += strings.Join(missing, "\n") + "\n"

	if err := os.WriteFile(gitignorePath, []byte(content), 0644); err != nil {
		return fmt.Errorf("ошибка записи .gitignore: %w", err)
	}
	return nil
}

// SrcFiles возвращает все синхронизируемые файлы проекта
func SrcFiles(root string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(root, SrcDir, "*.ts"))
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска файлов src: %w", err)
	}
	return files, nil
}

// BackupFolderName возвращает свободное имя директории бэкапа вида
// <root>/2019-01-15[-suffix], при занятости добавляется числовой суффикс
func BackupFolderName(root, suffix string, now time.Time) string {
	name := now.UTC().Format("2006-01-02")
	if suffix != "" {
		name += "-" + suffix
	}
	return UnusedFolderName(filepath.Join(root, name))
}

// UnusedFolderName подбирает не занятое имя директории, наращивая
// числовой суффикс -1, -2, ... относительно исходного имени. Само
// имя не разбирается - дата-штамп вида 2019-01-15 остаётся базой.
func UnusedFolderName(folderPath string) string {
	candidate := folderPath
	for i := 1; pathExists(candidate); i++ {
		candidate = fmt.Sprintf("%s-%d", folderPath, i)
	}
	return candidate
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
