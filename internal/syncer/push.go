// internal/syncer/push.go
package syncer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"qcpsync/internal/activity"
	"qcpsync/internal/domain/script"
	"qcpsync/internal/project"
)

// PushFile отправляет локальный файл в организацию. Если
// сопоставления для пути нет, запись ищется по имени файла: одно
// совпадение - обновление, ноль - вставка, несколько - предупреждение
// о дубликатах и обновление первого совпадения. Порядок совпадений
// определяется организацией и не гарантирован.
//
// Корректно оформленный неуспех организации возвращается как
// (nil, nil) - вызывающий сам сообщает о неудаче. Ошибкой завершаются
// только транспортные сбои и отсутствие авторизации.
func (e *Engine) PushFile(ctx context.Context, conn Connection, configData *project.ConfigData, fileName string) (*script.CustomScript, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, &script.LocalIOError{Path: fileName, Err: err}
	}

	name := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
	existing := configData.FindByPath(fileName)

	if existing == nil {
		matches, err := conn.QueryRecordsByName(ctx, name, true)
		if err != nil {
			return nil, err
		}
		if len(matches) > 0 {
			existing = &project.FileMapping{
				FileName: fileName,
				Record:   matches[0].CustomScriptBase,
			}
		}
		if len(matches) > 1 {
			dup := &script.DuplicateNameError{Name: name, Count: len(matches)}
			e.warnf("%s", dup.Error())
			e.log.Warn("Несколько записей с одним именем", "name", name, "count", len(matches))
		}
	}

	upsert := script.Upsert{
		Name: name,
		Code: string(data),
	}

	var result *script.SaveResult
	if existing != nil {
		upsert.ID = existing.Record.ID
		result, err = conn.UpdateRecord(ctx, upsert)
	} else {
		result, err = conn.InsertRecord(ctx, upsert)
	}
	if err != nil {
		return nil, err
	}

	if !result.Success {
		e.log.Warn("Организация отклонила запись", "file", fileName, "errors", result.Errors)
		return nil, nil
	}

	// Перечитываем запись, чтобы получить поля, заполняемые сервером
	updated, err := conn.QueryRecordsByID(ctx, result.ID)
	if err != nil {
		return nil, err
	}
	if len(updated) == 0 {
		return nil, script.ErrRecordNotFound
	}

	if _, err := e.store.SaveRecords(configData, updated); err != nil {
		return nil, err
	}

	e.activity.AddSuccess(activity.ActionPush, e.username(configData), fileName, updated[0].ID, updated[0].Name)
	e.log.Info("Файл отправлен", "file", fileName, "recordId", updated[0].ID)
	return &updated[0], nil
}

// PushFiles отправляет файлы строго по одному. Отмена проверяется на
// границе файлов - начатый файл досылается до конца. Сбой одного
// файла не прерывает остальные, кроме потери авторизации: без неё
// не пройдёт ни один последующий файл.
func (e *Engine) PushFiles(ctx context.Context, conn Connection, configData *project.ConfigData, fileNames []string) ([]script.CustomScript, error) {
	var pushed []script.CustomScript

	for _, fileName := range fileNames {
		if err := ctx.Err(); err != nil {
			return pushed, err
		}

		record, err := e.PushFile(ctx, conn, configData, fileName)
		if err != nil {
			if errors.Is(err, script.ErrNotAuthenticated) {
				return pushed, err
			}
			e.log.Warn("Не удалось отправить файл", "file", fileName, "error", err)
			e.activity.AddError(activity.ActionPush, e.username(configData), fileName, err)
			continue
		}
		if record == nil {
			e.activity.AddError(activity.ActionPush, e.username(configData), fileName,
				errors.New("организация отклонила запись"))
			continue
		}
		pushed = append(pushed, *record)
	}

	return pushed, nil
}
