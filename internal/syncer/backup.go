// internal/syncer/backup.go
package syncer

import (
	"context"
	"os"
	"path/filepath"

	"qcpsync/internal/domain/script"
	"qcpsync/internal/project"
)

// BackupLocal копирует файлы из src в директорию бэкапа. При заданном
// fileName сохраняется только он (имя без пути, файл ищется в src),
// иначе все файлы src. Возвращает путь директории бэкапа.
func (e *Engine) BackupLocal(fileName, existingFolder string) (string, error) {
	var srcFiles []string
	if fileName != "" {
		srcFiles = []string{filepath.Join(e.store.Root(), project.SrcDir, fileName)}
	} else {
		var err error
		srcFiles, err = project.SrcFiles(e.store.Root())
		if err != nil {
			return "", err
		}
	}

	backupDir := existingFolder
	if backupDir == "" {
		backupDir = project.BackupFolderName(e.store.Root(), "local", e.now())
	}
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return "", &script.LocalIOError{Path: backupDir, Err: err}
	}

	for _, file := range srcFiles {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", &script.LocalIOError{Path: file, Err: err}
		}
		target := filepath.Join(backupDir, filepath.Base(file))
		if err := os.WriteFile(target, data, 0644); err != nil {
			return "", &script.LocalIOError{Path: target, Err: err}
		}
	}

	e.log.Info("Локальный бэкап сохранён", "dir", backupDir, "files", len(srcFiles))
	return backupDir, nil
}

// BackupFromRemote выгружает все записи организации в директорию
// бэкапа. Чистый экспорт - таблица сопоставлений не затрагивается.
func (e *Engine) BackupFromRemote(ctx context.Context, conn Connection) (string, error) {
	records, err := conn.QueryAllRecords(ctx)
	if err != nil {
		return "", err
	}

	backupDir := project.BackupFolderName(e.store.Root(), "remote", e.now())
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return "", &script.LocalIOError{Path: backupDir, Err: err}
	}

	for _, record := range records {
		target := filepath.Join(backupDir, project.Sanitize(record.Name)+".ts")
		// Существующие файлы не перезаписываются - дубликаты имён
		// сохраняют первую версию
		if _, err := os.Stat(target); err == nil {
			continue
		}
		if err := os.WriteFile(target, []byte(record.Code), 0644); err != nil {
			return "", &script.LocalIOError{Path: target, Err: err}
		}
	}

	e.log.Info("Бэкап из организации сохранён", "dir", backupDir, "records", len(records))
	return backupDir, nil
}
