package syncer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"qcpsync/internal/activity"
	"qcpsync/internal/crypto"
	"qcpsync/internal/domain/script"
	"qcpsync/internal/project"
	"qcpsync/internal/sfdc"
)

// fakeConn - подключение к организации в памяти
type fakeConn struct {
	records []script.CustomScript
	nextID  int

	insertCalls []script.Upsert
	updateCalls []script.Upsert

	insertResult *script.SaveResult
	queryErr     error
}

func (f *fakeConn) QueryAllRecords(_ context.Context) ([]script.CustomScript, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return append([]script.CustomScript(nil), f.records...), nil
}

func (f *fakeConn) QueryAllRecordsWithoutCode(_ context.Context) ([]script.CustomScriptBase, error) {
	var bases []script.CustomScriptBase
	for _, rec := range f.records {
		bases = append(bases, rec.CustomScriptBase)
	}
	return bases, nil
}

func (f *fakeConn) QueryRecordsByID(_ context.Context, id string) ([]script.CustomScript, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []script.CustomScript
	for _, rec := range f.records {
		if rec.ID == id {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeConn) QueryRecordsByName(_ context.Context, name string, skipCode bool) ([]script.CustomScript, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []script.CustomScript
	for _, rec := range f.records {
		if rec.Name == name {
			if skipCode {
				rec.Code = ""
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeConn) InsertRecord(_ context.Context, rec script.Upsert) (*script.SaveResult, error) {
	f.insertCalls = append(f.insertCalls, rec)
	if f.insertResult != nil {
		return f.insertResult, nil
	}
	f.nextID++
	id := fmt.Sprintf("a0B00000000000%dAAA", f.nextID)
	f.records = append(f.records, script.CustomScript{
		CustomScriptBase: script.CustomScriptBase{ID: id, Name: rec.Name},
		Code:             rec.Code,
	})
	return &script.SaveResult{ID: id, Success: true}, nil
}

func (f *fakeConn) UpdateRecord(_ context.Context, rec script.Upsert) (*script.SaveResult, error) {
	f.updateCalls = append(f.updateCalls, rec)
	for i := range f.records {
		if f.records[i].ID == rec.ID {
			f.records[i].Name = rec.Name
			f.records[i].Code = rec.Code
			return &script.SaveResult{ID: rec.ID, Success: true}, nil
		}
	}
	return &script.SaveResult{ID: rec.ID, Success: false, Errors: []string{"ENTITY_IS_DELETED: запись не найдена"}}, nil
}

func (f *fakeConn) DeleteRecord(_ context.Context, recordID string) (bool, error) {
	for i := range f.records {
		if f.records[i].ID == recordID {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// scriptedResolver выдаёт заранее заданные решения
type scriptedResolver struct {
	choices []Choice
	calls   int
}

func (r *scriptedResolver) Resolve(_ string) (Choice, error) {
	if r.calls >= len(r.choices) {
		return ChoiceNone, fmt.Errorf("неожиданный запрос решения номер %d", r.calls+1)
	}
	choice := r.choices[r.calls]
	r.calls++
	return choice, nil
}

type testEnv struct {
	engine   *Engine
	conn     *fakeConn
	store    *project.Store
	activity *activity.Log
	resolver *scriptedResolver
	config   *project.ConfigData
	root     string
	warnings []string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	root := t.TempDir()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	vault, err := crypto.NewVault(key)
	require.NoError(t, err)

	store := project.NewStore(root, vault, log)
	activityLog := activity.New(root, 150, log)
	activityLog.Init()

	resolver := &scriptedResolver{}
	env := &testEnv{
		conn:     &fakeConn{},
		store:    store,
		activity: activityLog,
		resolver: resolver,
		root:     root,
		config: &project.ConfigData{
			OrgInfo: &sfdc.OrgInfo{Username: "dev@example.com"},
			Files:   []project.FileMapping{},
		},
	}

	env.engine = New(store, activityLog, resolver, log)
	env.engine.warnf = func(format string, args ...interface{}) {
		env.warnings = append(env.warnings, fmt.Sprintf(format, args...))
	}
	return env
}

func (env *testEnv) addRemote(id, name, code string) {
	env.conn.records = append(env.conn.records, script.CustomScript{
		CustomScriptBase: script.CustomScriptBase{ID: id, Name: name},
		Code:             code,
	})
}

func (env *testEnv) writeSrc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(env.root, "src", name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func (env *testEnv) readSrc(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(env.root, "src", name))
	require.NoError(t, err)
	return string(data)
}

func TestPullAllCreatesFilesAndMappings(t *testing.T) {
	env := newTestEnv(t)
	env.addRemote("a0B1", "Foo", "foo code")
	env.addRemote("a0B2", "Bar", "bar code")

	saved, err := env.engine.QueryFilesAndSave(context.Background(), env.conn, env.config, PullOptions{ClearFileData: true})
	require.NoError(t, err)
	require.Len(t, saved, 2)

	assert.Equal(t, "foo code", env.readSrc(t, "Foo.ts"))
	assert.Equal(t, "bar code", env.readSrc(t, "Bar.ts"))
	require.Len(t, env.config.Files, 2)

	// Журнал получил по записи на файл
	entries := env.activity.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, activity.ActionPull, entries[0].Action)
	assert.Equal(t, activity.StatusSuccess, entries[0].Status)
	assert.Equal(t, "dev@example.com", entries[0].Username)
}

func TestPullIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.addRemote("a0B1", "Foo", "same code")
	env.writeSrc(t, "Foo.ts", "same code")

	// Совпадающее содержимое не считается конфликтом - решение не
	// запрашивается даже без overwriteAll
	saved, err := env.engine.QueryFilesAndSave(context.Background(), env.conn, env.config, PullOptions{ClearFileData: true})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Zero(t, env.resolver.calls)
	assert.Equal(t, "same code", env.readSrc(t, "Foo.ts"))

	saved, err = env.engine.QueryFilesAndSave(context.Background(), env.conn, env.config, PullOptions{ClearFileData: true, OverwriteAll: true})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "same code", env.readSrc(t, "Foo.ts"))
}

func TestPullSkipAllStickiness(t *testing.T) {
	env := newTestEnv(t)
	for i := 1; i <= 3; i++ {
		name := fmt.Sprintf("File%d", i)
		env.addRemote(fmt.Sprintf("a0B%d", i), name, "remote "+name)
		env.writeSrc(t, name+".ts", "local "+name)
	}
	env.resolver.choices = []Choice{ChoiceSkipAll}

	saved, err := env.engine.QueryFilesAndSave(context.Background(), env.conn, env.config, PullOptions{})
	require.NoError(t, err)

	// Один запрос на весь пакет, все файлы пропущены
	assert.Equal(t, 1, env.resolver.calls)
	assert.Empty(t, saved)
	assert.Equal(t, "local File1", env.readSrc(t, "File1.ts"))
	assert.Equal(t, "local File3", env.readSrc(t, "File3.ts"))

	// Таблица сопоставлений не получила пропущенные файлы
	assert.Empty(t, env.config.Files)
}

func TestPullOneShotChoiceRepromptsNextConflict(t *testing.T) {
	env := newTestEnv(t)
	for i := 1; i <= 3; i++ {
		name := fmt.Sprintf("File%d", i)
		env.addRemote(fmt.Sprintf("a0B%d", i), name, "remote "+name)
		env.writeSrc(t, name+".ts", "local "+name)
	}
	env.resolver.choices = []Choice{ChoiceSkip, ChoiceOverwrite, ChoiceSkip}

	saved, err := env.engine.QueryFilesAndSave(context.Background(), env.conn, env.config, PullOptions{})
	require.NoError(t, err)

	// Одноразовое решение переспрашивается на каждом конфликте
	assert.Equal(t, 3, env.resolver.calls)
	require.Len(t, saved, 1)
	assert.Equal(t, "File2", saved[0].Name)
	assert.Equal(t, "local File1", env.readSrc(t, "File1.ts"))
	assert.Equal(t, "remote File2", env.readSrc(t, "File2.ts"))
	assert.Equal(t, "local File3", env.readSrc(t, "File3.ts"))
}

func TestPullCancelStopsBatch(t *testing.T) {
	env := newTestEnv(t)
	for i := 1; i <= 5; i++ {
		name := fmt.Sprintf("File%d", i)
		env.addRemote(fmt.Sprintf("a0B%d", i), name, "remote "+name)
		env.writeSrc(t, name+".ts", "local "+name)
	}
	env.resolver.choices = []Choice{ChoiceOverwrite, ChoiceCancel}

	saved, err := env.engine.QueryFilesAndSave(context.Background(), env.conn, env.config, PullOptions{})
	require.NoError(t, err)

	// Первый файл перезаписан, отмена на втором прерывает пакет
	assert.Equal(t, 2, env.resolver.calls)
	require.Len(t, saved, 1)
	assert.Equal(t, "File1", saved[0].Name)
	assert.Equal(t, "remote File1", env.readSrc(t, "File1.ts"))
	assert.Equal(t, "local File2", env.readSrc(t, "File2.ts"))
	assert.Equal(t, "local File5", env.readSrc(t, "File5.ts"))
}

func TestPullBackupBeforeOverwrite(t *testing.T) {
	env := newTestEnv(t)
	env.addRemote("a0B1", "Foo", "remote foo")
	env.addRemote("a0B2", "Bar", "remote bar")
	env.writeSrc(t, "Foo.ts", "local foo")
	env.writeSrc(t, "Bar.ts", "local bar")
	env.resolver.choices = []Choice{ChoiceBackupAll}

	saved, err := env.engine.QueryFilesAndSave(context.Background(), env.conn, env.config, PullOptions{ClearFileData: true})
	require.NoError(t, err)
	require.Len(t, saved, 2)

	assert.Equal(t, "remote foo", env.readSrc(t, "Foo.ts"))
	assert.Equal(t, "remote bar", env.readSrc(t, "Bar.ts"))

	// Оба файла отложены в одну директорию бэкапа текущего запуска
	matches, err := filepath.Glob(filepath.Join(env.root, "*-local"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	backup, err := os.ReadFile(filepath.Join(matches[0], "Foo.ts"))
	require.NoError(t, err)
	assert.Equal(t, "local foo", string(backup))
}

func TestPullClearFileDataReplacesMappingTable(t *testing.T) {
	env := newTestEnv(t)
	env.config.Files = []project.FileMapping{
		{FileName: filepath.Join(env.root, "src", "Stale.ts"), Record: script.CustomScriptBase{ID: "a0B9", Name: "Stale"}},
	}
	env.addRemote("a0B1", "Foo", "foo code")

	_, err := env.engine.QueryFilesAndSave(context.Background(), env.conn, env.config, PullOptions{ClearFileData: true})
	require.NoError(t, err)

	require.Len(t, env.config.Files, 1)
	assert.Equal(t, "a0B1", env.config.Files[0].Record.ID)
}

func TestPullDuplicateRemoteNamesWarn(t *testing.T) {
	env := newTestEnv(t)
	env.addRemote("a0B1", "Foo", "first")
	env.addRemote("a0B2", "Foo", "second")

	_, err := env.engine.QueryFilesAndSave(context.Background(), env.conn, env.config, PullOptions{ClearFileData: true, OverwriteAll: true})
	require.NoError(t, err)

	require.Len(t, env.warnings, 1)
	assert.Contains(t, env.warnings[0], "Foo")
}

func TestPushNewRecordEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	path := env.writeSrc(t, "Foo.ts", "bar")

	record, err := env.engine.PushFile(context.Background(), env.conn, env.config, path)
	require.NoError(t, err)
	require.NotNil(t, record)

	// Вставка вызвана с именем из имени файла и телом кода
	require.Len(t, env.conn.insertCalls, 1)
	assert.Equal(t, "Foo", env.conn.insertCalls[0].Name)
	assert.Equal(t, "bar", env.conn.insertCalls[0].Code)

	// Таблица сопоставлений получила запись с присвоенным Id
	require.Len(t, env.config.Files, 1)
	assert.Equal(t, record.ID, env.config.Files[0].Record.ID)
	assert.Equal(t, path, env.config.Files[0].FileName)

	entries := env.activity.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, activity.ActionPush, entries[0].Action)
	assert.Equal(t, activity.StatusSuccess, entries[0].Status)
}

func TestPushExistingMappingUpdates(t *testing.T) {
	env := newTestEnv(t)
	env.addRemote("a0B1", "Foo", "old code")
	path := env.writeSrc(t, "Foo.ts", "new code")
	env.config.Files = []project.FileMapping{
		{FileName: path, Record: script.CustomScriptBase{ID: "a0B1", Name: "Foo"}},
	}

	record, err := env.engine.PushFile(context.Background(), env.conn, env.config, path)
	require.NoError(t, err)
	require.NotNil(t, record)

	assert.Empty(t, env.conn.insertCalls)
	require.Len(t, env.conn.updateCalls, 1)
	assert.Equal(t, "a0B1", env.conn.updateCalls[0].ID)
	assert.Equal(t, "new code", env.conn.updateCalls[0].Code)
}

func TestPushNameCollision(t *testing.T) {
	env := newTestEnv(t)
	env.addRemote("a0B1", "Foo", "first")
	env.addRemote("a0B2", "Foo", "second")
	path := env.writeSrc(t, "Foo.ts", "local code")

	record, err := env.engine.PushFile(context.Background(), env.conn, env.config, path)
	require.NoError(t, err)
	require.NotNil(t, record)

	// Предупреждение о дубликатах, обновляется первое совпадение,
	// новая запись не создается
	require.Len(t, env.warnings, 1)
	assert.Contains(t, env.warnings[0], "Foo")
	assert.Empty(t, env.conn.insertCalls)
	require.Len(t, env.conn.updateCalls, 1)
	assert.Equal(t, "a0B1", env.conn.updateCalls[0].ID)
}

func TestPushRejectedReturnsNoRecord(t *testing.T) {
	env := newTestEnv(t)
	env.conn.insertResult = &script.SaveResult{Success: false, Errors: []string{"STORAGE_LIMIT_EXCEEDED: лимит"}}
	path := env.writeSrc(t, "Foo.ts", "bar")

	record, err := env.engine.PushFile(context.Background(), env.conn, env.config, path)
	require.NoError(t, err)
	assert.Nil(t, record)
	assert.Empty(t, env.config.Files)
}

func TestPushFilesIsolatesPerFileFailures(t *testing.T) {
	env := newTestEnv(t)
	good := env.writeSrc(t, "Good.ts", "code")
	missing := filepath.Join(env.root, "src", "Missing.ts")

	pushed, err := env.engine.PushFiles(context.Background(), env.conn, env.config, []string{missing, good})
	require.NoError(t, err)

	// Сбой первого файла не прервал отправку второго
	require.Len(t, pushed, 1)
	assert.Equal(t, "Good", pushed[0].Name)

	entries := env.activity.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, activity.StatusSuccess, entries[0].Status)
	assert.Equal(t, activity.StatusError, entries[1].Status)
}

func TestPushFilesHonorsCancellation(t *testing.T) {
	env := newTestEnv(t)
	a := env.writeSrc(t, "A.ts", "code a")
	b := env.writeSrc(t, "B.ts", "code b")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pushed, err := env.engine.PushFiles(ctx, env.conn, env.config, []string{a, b})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, pushed)
	assert.Empty(t, env.conn.insertCalls)
}

func TestPushFilesAbortsOnLostAuth(t *testing.T) {
	env := newTestEnv(t)
	a := env.writeSrc(t, "A.ts", "code a")
	b := env.writeSrc(t, "B.ts", "code b")
	env.conn.queryErr = script.ErrNotAuthenticated

	pushed, err := env.engine.PushFiles(context.Background(), env.conn, env.config, []string{a, b})
	require.ErrorIs(t, err, script.ErrNotAuthenticated)
	assert.Empty(t, pushed)
}

func TestBackupLocal(t *testing.T) {
	env := newTestEnv(t)
	env.writeSrc(t, "Foo.ts", "foo")
	env.writeSrc(t, "Bar.ts", "bar")

	dir, err := env.engine.BackupLocal("", "")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "Foo.ts"))
	require.NoError(t, err)
	assert.Equal(t, "foo", string(data))

	// Повторный бэкап в тот же день получает числовой суффикс
	second, err := env.engine.BackupLocal("", "")
	require.NoError(t, err)
	assert.NotEqual(t, dir, second)
	assert.Equal(t, dir+"-1", second)
}

func TestBackupLocalSingleFile(t *testing.T) {
	env := newTestEnv(t)
	env.writeSrc(t, "Foo.ts", "foo")
	env.writeSrc(t, "Bar.ts", "bar")

	dir, err := env.engine.BackupLocal("Foo.ts", "")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "Foo.ts"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "Bar.ts"))
	assert.True(t, os.IsNotExist(err))
}

func TestBackupFromRemote(t *testing.T) {
	env := newTestEnv(t)
	env.addRemote("a0B1", "Foo", "remote foo")
	env.addRemote("a0B2", "Bar", "remote bar")

	dir, err := env.engine.BackupFromRemote(context.Background(), env.conn)
	require.NoError(t, err)
	assert.Contains(t, dir, "-remote")

	data, err := os.ReadFile(filepath.Join(dir, "Foo.ts"))
	require.NoError(t, err)
	assert.Equal(t, "remote foo", string(data))

	// Чистый экспорт - таблица сопоставлений не тронута
	assert.Empty(t, env.config.Files)
}

func TestDeleteMapping(t *testing.T) {
	env := newTestEnv(t)
	env.addRemote("a0B1", "Foo", "code")
	path := filepath.Join(env.root, "src", "Foo.ts")
	env.config.Files = []project.FileMapping{
		{FileName: path, Record: script.CustomScriptBase{ID: "a0B1", Name: "Foo"}},
	}

	removed, err := env.engine.DeleteMapping(context.Background(), env.conn, env.config, path, true)
	require.NoError(t, err)
	require.NotNil(t, removed)
	assert.Empty(t, env.config.Files)
	assert.Empty(t, env.conn.records)
}
