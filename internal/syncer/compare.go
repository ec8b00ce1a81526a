// internal/syncer/compare.go
package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/exp/slog"

	"qcpsync/internal/domain/script"
	"qcpsync/internal/project"
)

// Locator - синтетический адрес содержимого записи организации.
// Field выбирает поле записи, пустое значение означает тело кода.
type Locator struct {
	RecordID string
	Field    string
}

func (l Locator) String() string {
	uri := fmt.Sprintf("sfdc://sfdc/record/%s.ts", l.RecordID)
	if l.Field != "" {
		uri += "?field=" + l.Field
	}
	return uri
}

// ContentProvider лениво разрешает локатор в содержимое - запрос к
// организации выполняется только когда просмотрщик действительно
// запрашивает содержимое
type ContentProvider interface {
	Content(ctx context.Context, loc Locator) (string, error)
}

// RemoteContentProvider читает содержимое записей из организации
type RemoteContentProvider struct {
	conn Connection
}

func NewRemoteContentProvider(conn Connection) *RemoteContentProvider {
	return &RemoteContentProvider{conn: conn}
}

func (p *RemoteContentProvider) Content(ctx context.Context, loc Locator) (string, error) {
	records, err := p.conn.QueryRecordsByID(ctx, loc.RecordID)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", fmt.Errorf("запись с Id %s не найдена в организации: %w", loc.RecordID, script.ErrRecordNotFound)
	}

	record := records[0]
	switch loc.Field {
	case "", script.FieldCode:
		return record.Code, nil
	case script.FieldTranspiledCode:
		if record.TranspiledCode == "" {
			return "", fmt.Errorf("поле %s записи %s пусто", loc.Field, loc.RecordID)
		}
		return record.TranspiledCode, nil
	default:
		return "", fmt.Errorf("неизвестное поле %s", loc.Field)
	}
}

// DiffViewer показывает разницу двух источников содержимого
type DiffViewer interface {
	Diff(ctx context.Context, leftName, leftContent, rightName, rightContent string) error
}

// ExternalDiffViewer материализует содержимое во временные файлы и
// запускает внешнюю команду сравнения
type ExternalDiffViewer struct {
	command string
	out     *os.File
	log     *slog.Logger
}

func NewExternalDiffViewer(command string, log *slog.Logger) *ExternalDiffViewer {
	return &ExternalDiffViewer{
		command: command,
		out:     os.Stdout,
		log:     log,
	}
}

func (v *ExternalDiffViewer) Diff(ctx context.Context, leftName, leftContent, rightName, rightContent string) error {
	dir, err := os.MkdirTemp("", "qcp-diff-")
	if err != nil {
		return fmt.Errorf("ошибка создания временной директории: %w", err)
	}
	defer os.RemoveAll(dir)

	left := filepath.Join(dir, "a.ts")
	right := filepath.Join(dir, "b.ts")
	if err := os.WriteFile(left, []byte(leftContent), 0600); err != nil {
		return &script.LocalIOError{Path: left, Err: err}
	}
	if err := os.WriteFile(right, []byte(rightContent), 0600); err != nil {
		return &script.LocalIOError{Path: right, Err: err}
	}

	fmt.Fprintf(v.out, "%s ↔ %s\n", leftName, rightName)

	cmd := exec.CommandContext(ctx, v.command, left, right)
	cmd.Stdout = v.out
	cmd.Stderr = v.out
	if err := cmd.Run(); err != nil {
		// Внешний diff завершается единицей при различиях
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return nil
		}
		return fmt.Errorf("ошибка запуска %s: %w", v.command, err)
	}
	return nil
}

// CompareLocalWithMapped сравнивает локальный файл с его записью по
// таблице сопоставлений
func (e *Engine) CompareLocalWithMapped(ctx context.Context, provider ContentProvider, viewer DiffViewer, configData *project.ConfigData, filePath string) error {
	mapping := configData.FindByPath(filePath)
	if mapping == nil {
		return fmt.Errorf("для файла %s нет записи в %s", filePath, project.ConfigFile)
	}
	return e.compareLocalWithLocator(ctx, provider, viewer, filePath, Locator{RecordID: mapping.Record.ID})
}

// CompareLocalWithRemote сравнивает локальный файл с произвольной
// записью организации
func (e *Engine) CompareLocalWithRemote(ctx context.Context, provider ContentProvider, viewer DiffViewer, filePath, recordID, field string) error {
	return e.compareLocalWithLocator(ctx, provider, viewer, filePath, Locator{RecordID: recordID, Field: field})
}

func (e *Engine) compareLocalWithLocator(ctx context.Context, provider ContentProvider, viewer DiffViewer, filePath string, loc Locator) error {
	local, err := os.ReadFile(filePath)
	if err != nil {
		return &script.LocalIOError{Path: filePath, Err: err}
	}

	remote, err := provider.Content(ctx, loc)
	if err != nil {
		return err
	}

	return viewer.Diff(ctx, filepath.Base(filePath), string(local), loc.String(), remote)
}

// CompareLocalFiles сравнивает два локальных файла
func (e *Engine) CompareLocalFiles(ctx context.Context, viewer DiffViewer, pathA, pathB string) error {
	a, err := os.ReadFile(pathA)
	if err != nil {
		return &script.LocalIOError{Path: pathA, Err: err}
	}
	b, err := os.ReadFile(pathB)
	if err != nil {
		return &script.LocalIOError{Path: pathB, Err: err}
	}
	return viewer.Diff(ctx, filepath.Base(pathA), string(a), filepath.Base(pathB), string(b))
}

// CompareRemoteRecords сравнивает две записи организации
func (e *Engine) CompareRemoteRecords(ctx context.Context, provider ContentProvider, viewer DiffViewer, recordIDA, recordIDB, field string) error {
	locA := Locator{RecordID: recordIDA, Field: field}
	locB := Locator{RecordID: recordIDB, Field: field}

	a, err := provider.Content(ctx, locA)
	if err != nil {
		return err
	}
	b, err := provider.Content(ctx, locB)
	if err != nil {
		return err
	}
	return viewer.Diff(ctx, locA.String(), a, locB.String(), b)
}
