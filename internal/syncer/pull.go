// internal/syncer/pull.go
package syncer

import (
	"context"
	"crypto/md5"
	"os"
	"path/filepath"

	"qcpsync/internal/activity"
	"qcpsync/internal/domain/script"
	"qcpsync/internal/project"
)

// PullOptions задает цель и поведение выгрузки из организации.
// Пустая цель означает все записи организации.
type PullOptions struct {
	// Известное сопоставление - выгрузка одного файла
	Mapping *project.FileMapping
	// Явный Id записи
	RecordID string
	// Заменить всю таблицу сопоставлений выгруженным набором
	ClearFileData bool
	// Перезаписывать без вопросов
	OverwriteAll bool
}

// contentSame сравнивает содержимое по дайджесту
func contentSame(a, b string) bool {
	return md5.Sum([]byte(a)) == md5.Sum([]byte(b))
}

// QueryFilesAndSave выгружает записи организации в локальные файлы.
// Для каждого файла с конфликтом запрашивается решение; липкие
// решения действуют до конца пакета, cancel прерывает пакет, уже
// записанные файлы остаются. Возвращает сохранённые записи вместе с
// кодом.
func (e *Engine) QueryFilesAndSave(ctx context.Context, conn Connection, configData *project.ConfigData, opts PullOptions) ([]script.CustomScript, error) {
	records, err := e.resolveRecords(ctx, conn, opts)
	if err != nil {
		e.activity.AddError(activity.ActionPull, e.username(configData), "", err)
		return nil, err
	}

	e.reportDuplicateNames(records)

	var (
		savedRecords []script.CustomScript
		sticky       Choice
		backupDir    string
		cancelled    bool
	)

	for _, record := range records {
		if cancelled {
			break
		}

		fileName := project.SrcPath(e.store.Root(), record.Name)

		decision := ChoiceOverwrite
		existing, err := os.ReadFile(fileName)
		switch {
		case err == nil:
			if contentSame(string(existing), record.Code) {
				break
			}
			if opts.OverwriteAll {
				break
			}
			decision = sticky
			if decision == ChoiceNone {
				decision, err = e.resolver.Resolve(filepath.Base(fileName))
				if err != nil {
					return savedRecords, err
				}
				if decision.sticky() {
					sticky = decision
				}
			}
		case os.IsNotExist(err):
			// Нового файла конфликт не касается
		default:
			e.log.Warn("Не удалось прочитать локальный файл", "file", fileName, "error", err)
			e.activity.AddError(activity.ActionPull, e.username(configData), fileName, &script.LocalIOError{Path: fileName, Err: err})
			continue
		}

		switch decision {
		case ChoiceSkip, ChoiceSkipAll:
			continue
		case ChoiceCancel:
			cancelled = true
			continue
		case ChoiceBackup, ChoiceBackupAll:
			backupDir, err = e.backupFile(fileName, backupDir)
			if err != nil {
				e.log.Warn("Не удалось сохранить бэкап", "file", fileName, "error", err)
				e.activity.AddError(activity.ActionPull, e.username(configData), fileName, err)
				continue
			}
		}

		if err := writeFile(fileName, record.Code); err != nil {
			e.log.Warn("Не удалось записать файл", "file", fileName, "error", err)
			e.activity.AddError(activity.ActionPull, e.username(configData), fileName, err)
			continue
		}
		savedRecords = append(savedRecords, record)
	}

	if opts.ClearFileData {
		configData.Files = []project.FileMapping{}
	}

	mappings, err := e.store.SaveRecords(configData, savedRecords)
	if err != nil {
		return savedRecords, err
	}

	e.activity.AddSuccessBatch(activity.ActionPull, e.username(configData), mappings)
	e.log.Info("Выгрузка завершена", "saved", len(savedRecords), "total", len(records))
	return savedRecords, nil
}

func (e *Engine) resolveRecords(ctx context.Context, conn Connection, opts PullOptions) ([]script.CustomScript, error) {
	switch {
	case opts.Mapping != nil:
		return conn.QueryRecordsByID(ctx, opts.Mapping.Record.ID)
	case opts.RecordID != "":
		return conn.QueryRecordsByID(ctx, opts.RecordID)
	default:
		return conn.QueryAllRecords(ctx)
	}
}

// reportDuplicateNames предупреждает о записях организации с
// одинаковыми именами: они отобразятся в один и тот же локальный файл
func (e *Engine) reportDuplicateNames(records []script.CustomScript) {
	seen := make(map[string]int, len(records))
	for _, rec := range records {
		seen[rec.Name]++
	}
	for name, count := range seen {
		if count > 1 {
			e.warnf("В организации %d записи с именем %q - переименуйте или удалите дубликаты", count, name)
		}
	}
}

// backupFile копирует существующий локальный файл в директорию бэкапа
// текущего запуска, создавая её при первом обращении
func (e *Engine) backupFile(fileName, backupDir string) (string, error) {
	if backupDir == "" {
		backupDir = project.BackupFolderName(e.store.Root(), "local", e.now())
	}
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return backupDir, &script.LocalIOError{Path: backupDir, Err: err}
	}

	data, err := os.ReadFile(fileName)
	if err != nil {
		return backupDir, &script.LocalIOError{Path: fileName, Err: err}
	}

	target := filepath.Join(backupDir, filepath.Base(fileName))
	if err := os.WriteFile(target, data, 0644); err != nil {
		return backupDir, &script.LocalIOError{Path: target, Err: err}
	}
	return backupDir, nil
}

func writeFile(fileName, content string) error {
	if err := os.MkdirAll(filepath.Dir(fileName), 0755); err != nil {
		return &script.LocalIOError{Path: fileName, Err: err}
	}
	if err := os.WriteFile(fileName, []byte(content), 0644); err != nil {
		return &script.LocalIOError{Path: fileName, Err: err}
	}
	return nil
}
