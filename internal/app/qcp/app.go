// internal/app/qcp/app.go
package qcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/exp/slog"

	"qcpsync/internal/activity"
	"qcpsync/internal/config"
	"qcpsync/internal/crypto"
	"qcpsync/internal/domain/script"
	"qcpsync/internal/keystore"
	"qcpsync/internal/project"
	"qcpsync/internal/sfdc"
	"qcpsync/internal/syncer"
)

// App собирает компоненты проекта: ключ шифрования, хранилище
// конфигурации, журнал операций и движок синхронизации.
// Конфигурационный документ держится в памяти и сохраняется после
// каждой мутирующей операции.
type App struct {
	cfg      *config.Config
	log      *slog.Logger
	store    *project.Store
	activity *activity.Log
	engine   *syncer.Engine

	configData *project.ConfigData
	conn       *sfdc.Connection
}

func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	ks := keystore.New(cfg.ProjectDir, log)
	key, err := ks.LoadOrCreate()
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки ключа шифрования: %w", err)
	}

	vault, err := crypto.NewVault(key)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания сейфа: %w", err)
	}

	store := project.NewStore(cfg.ProjectDir, vault, log)
	activityLog := activity.New(cfg.ProjectDir, cfg.MaxLogEntries, log)
	activityLog.Init()

	configData, err := store.Read()
	if err != nil {
		return nil, err
	}

	resolver := syncer.NewTerminalResolver(os.Stdin, os.Stdout)

	return &App{
		cfg:        cfg,
		log:        log,
		store:      store,
		activity:   activityLog,
		engine:     syncer.New(store, activityLog, resolver, log),
		configData: configData,
	}, nil
}

// ConfigData возвращает конфигурационный документ проекта
func (a *App) ConfigData() *project.ConfigData {
	return a.configData
}

// Activity возвращает записи журнала операций, новые первыми
func (a *App) Activity() []activity.Entry {
	return a.activity.Entries()
}

// IsAuthenticated сообщает, есть ли у проекта набор токенов
func (a *App) IsAuthenticated() bool {
	return a.configData.OrgInfo != nil && a.configData.OrgInfo.AuthInfo != nil
}

// Connect возвращает подключение к организации, создавая его при
// первом обращении. Обновлённый access-токен сразу сохраняется в
// конфигурационный документ.
func (a *App) Connect(ctx context.Context) (*sfdc.Connection, error) {
	if a.conn != nil {
		return a.conn, nil
	}

	conn, err := sfdc.NewConnection(a.configData.OrgInfo, a.cfg, a.log)
	if err != nil {
		return nil, err
	}

	conn.OnTokenRefresh(func(accessToken string) {
		if a.configData.OrgInfo.AuthInfo == nil {
			return
		}
		a.configData.OrgInfo.AuthInfo.AccessToken = accessToken
		if err := a.store.Save(a.configData); err != nil {
			a.log.Warn("Не удалось сохранить обновлённый токен", "error", err)
		}
	})

	if err := conn.CheckCredentials(ctx); err != nil {
		return nil, err
	}
	// CheckCredentials мог заполнить username и orgId
	if err := a.store.Save(a.configData); err != nil {
		a.log.Warn("Не удалось сохранить конфигурацию", "error", err)
	}

	a.conn = conn
	return conn, nil
}

// Authenticator - внешний шаг OAuth: открыть authorizeURL, дождаться
// редиректа и вернуть набор токенов
type Authenticator func(authorizeURL string) (*sfdc.AuthInfo, error)

// InitOrg привязывает проект к организации: прогоняет авторизацию,
// проверяет токены и сохраняет документ
func (a *App) InitOrg(ctx context.Context, orgType script.OrgType, customURL string, authenticate Authenticator) error {
	loginURL := customURL
	if orgType != script.OrgTypeCustomURL {
		loginURL = orgType.LoginURL()
	}
	if loginURL == "" {
		return fmt.Errorf("не задан URL организации")
	}

	authInfo, err := authenticate(sfdc.AuthorizeURL(loginURL))
	if err != nil {
		return fmt.Errorf("ошибка авторизации: %w", err)
	}

	a.configData.OrgInfo = &sfdc.OrgInfo{
		OrgType:  orgType,
		LoginURL: loginURL,
		AuthInfo: authInfo,
	}
	a.conn = nil

	if _, err := a.Connect(ctx); err != nil {
		return err
	}
	if err := a.store.Save(a.configData); err != nil {
		return err
	}
	return project.Scaffold(a.cfg.ProjectDir)
}

// PullAll выгружает все записи организации
func (a *App) PullAll(ctx context.Context, overwriteAll bool) ([]script.CustomScript, error) {
	conn, err := a.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return a.engine.QueryFilesAndSave(ctx, conn, a.configData, syncer.PullOptions{
		ClearFileData: true,
		OverwriteAll:  overwriteAll,
	})
}

// PullFile выгружает один файл по его сопоставлению
func (a *App) PullFile(ctx context.Context, filePath string) ([]script.CustomScript, error) {
	mapping := a.configData.FindByPath(filePath)
	if mapping == nil {
		return nil, fmt.Errorf("для файла %s нет записи в %s", filePath, project.ConfigFile)
	}

	conn, err := a.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return a.engine.QueryFilesAndSave(ctx, conn, a.configData, syncer.PullOptions{
		Mapping: mapping,
	})
}

// PullRecord выгружает одну запись организации по Id
func (a *App) PullRecord(ctx context.Context, recordID string) ([]script.CustomScript, error) {
	if !script.ValidateID(recordID) {
		return nil, fmt.Errorf("некорректный Id записи: %s", recordID)
	}

	conn, err := a.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return a.engine.QueryFilesAndSave(ctx, conn, a.configData, syncer.PullOptions{
		RecordID: recordID,
	})
}

// RemoteRecords возвращает список записей организации без кода
func (a *App) RemoteRecords(ctx context.Context) ([]script.CustomScriptBase, error) {
	conn, err := a.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return conn.QueryAllRecordsWithoutCode(ctx)
}

// Push отправляет файлы в организацию, по одному
func (a *App) Push(ctx context.Context, files []string) ([]script.CustomScript, error) {
	conn, err := a.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return a.engine.PushFiles(ctx, conn, a.configData, files)
}

// SrcFiles возвращает все синхронизируемые файлы проекта
func (a *App) SrcFiles() ([]string, error) {
	return project.SrcFiles(a.cfg.ProjectDir)
}

// BackupLocal сохраняет копии локальных файлов src
func (a *App) BackupLocal(fileName string) (string, error) {
	return a.engine.BackupLocal(fileName, "")
}

// BackupRemote выгружает все записи организации в директорию бэкапа
func (a *App) BackupRemote(ctx context.Context) (string, error) {
	conn, err := a.Connect(ctx)
	if err != nil {
		return "", err
	}
	return a.engine.BackupFromRemote(ctx, conn)
}

// DeleteMapping убирает файл из-под синхронизации и при deleteRemote
// удаляет запись из организации
func (a *App) DeleteMapping(ctx context.Context, filePath string, deleteRemote bool) (*project.FileMapping, error) {
	if !deleteRemote {
		return a.store.RemoveMapping(a.configData, filePath)
	}

	conn, err := a.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return a.engine.DeleteMapping(ctx, conn, a.configData, filePath, true)
}

func (a *App) diffViewer() syncer.DiffViewer {
	return syncer.NewExternalDiffViewer(a.cfg.DiffCommand, a.log)
}

// CompareWithMapped сравнивает локальный файл с его записью
func (a *App) CompareWithMapped(ctx context.Context, filePath string) error {
	conn, err := a.Connect(ctx)
	if err != nil {
		return err
	}
	provider := syncer.NewRemoteContentProvider(conn)
	return a.engine.CompareLocalWithMapped(ctx, provider, a.diffViewer(), a.configData, filePath)
}

// CompareWithRemote сравнивает локальный файл с произвольной записью
func (a *App) CompareWithRemote(ctx context.Context, filePath, recordID, field string) error {
	conn, err := a.Connect(ctx)
	if err != nil {
		return err
	}
	provider := syncer.NewRemoteContentProvider(conn)
	return a.engine.CompareLocalWithRemote(ctx, provider, a.diffViewer(), filePath, recordID, field)
}

// CompareLocalFiles сравнивает два локальных файла
func (a *App) CompareLocalFiles(ctx context.Context, pathA, pathB string) error {
	return a.engine.CompareLocalFiles(ctx, a.diffViewer(), pathA, pathB)
}

// CompareRemoteRecords сравнивает две записи организации
func (a *App) CompareRemoteRecords(ctx context.Context, recordIDA, recordIDB, field string) error {
	conn, err := a.Connect(ctx)
	if err != nil {
		return err
	}
	provider := syncer.NewRemoteContentProvider(conn)
	return a.engine.CompareRemoteRecords(ctx, provider, a.diffViewer(), recordIDA, recordIDB, field)
}

// FetchQuoteModel сохраняет модель квоты в файл внутри data
func (a *App) FetchQuoteModel(ctx context.Context, quoteID, fileName string) (string, error) {
	if !script.ValidateID(quoteID) {
		return "", fmt.Errorf("некорректный Id записи: %s", quoteID)
	}

	conn, err := a.Connect(ctx)
	if err != nil {
		return "", err
	}

	model, err := conn.FetchQuoteModel(ctx, quoteID)
	if err != nil {
		return "", err
	}

	if fileName == "" {
		fileName = quoteID + ".json"
	}
	target := filepath.Join(a.cfg.ProjectDir, project.DataDir, fileName)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", &script.LocalIOError{Path: target, Err: err}
	}
	if err := os.WriteFile(target, []byte(model), 0644); err != nil {
		return "", &script.LocalIOError{Path: target, Err: err}
	}
	return target, nil
}
