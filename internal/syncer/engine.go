// internal/syncer/engine.go
package syncer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"golang.org/x/exp/slog"

	"qcpsync/internal/activity"
	"qcpsync/internal/domain/script"
	"qcpsync/internal/project"
)

// Connection - операции с организацией, необходимые движку
// синхронизации. Реализуется sfdc.Connection.
type Connection interface {
	QueryAllRecords(ctx context.Context) ([]script.CustomScript, error)
	QueryAllRecordsWithoutCode(ctx context.Context) ([]script.CustomScriptBase, error)
	QueryRecordsByID(ctx context.Context, id string) ([]script.CustomScript, error)
	QueryRecordsByName(ctx context.Context, name string, skipCode bool) ([]script.CustomScript, error)
	InsertRecord(ctx context.Context, rec script.Upsert) (*script.SaveResult, error)
	UpdateRecord(ctx context.Context, rec script.Upsert) (*script.SaveResult, error)
	DeleteRecord(ctx context.Context, recordID string) (bool, error)
}

// Engine согласует состояние локальных файлов с записями организации.
// Все операции строго последовательны: внутри одного пакета запросы к
// организации не распараллеливаются, чтобы липкие решения конфликтов
// и отмена между файлами оставались корректными.
type Engine struct {
	store    *project.Store
	activity *activity.Log
	resolver ConflictResolver
	log      *slog.Logger

	// Предупреждения о качестве данных, не прерывающие операцию
	warnf func(format string, args ...interface{})
	now   func() time.Time
}

func New(store *project.Store, activityLog *activity.Log, resolver ConflictResolver, log *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		activity: activityLog,
		resolver: resolver,
		log:      log,
		warnf: func(format string, args ...interface{}) {
			color.New(color.FgYellow).Fprintf(os.Stdout, "⚠️  "+format+"\n", args...)
		},
		now: time.Now,
	}
}

func (e *Engine) username(configData *project.ConfigData) string {
	if configData.OrgInfo == nil {
		return ""
	}
	return configData.OrgInfo.Username
}

// DeleteMapping убирает сопоставление для локального пути и при
// необходимости удаляет саму запись из организации
func (e *Engine) DeleteMapping(ctx context.Context, conn Connection, configData *project.ConfigData, filePath string, deleteRemote bool) (*project.FileMapping, error) {
	removed, err := e.store.RemoveMapping(configData, filePath)
	if err != nil {
		return nil, err
	}
	if removed == nil || !deleteRemote {
		return removed, nil
	}

	ok, err := conn.DeleteRecord(ctx, removed.Record.ID)
	if err != nil {
		return removed, err
	}
	if !ok {
		return removed, fmt.Errorf("не удалось удалить запись %s из организации", removed.Record.ID)
	}

	e.log.Info("Запись удалена из организации", "recordId", removed.Record.ID)
	return removed, nil
}
