// internal/syncer/conflict.go
package syncer

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Choice - решение пользователя для файла с конфликтом
type Choice int

const (
	ChoiceNone Choice = iota
	ChoiceBackup
	ChoiceOverwrite
	ChoiceSkip
	ChoiceBackupAll
	ChoiceOverwriteAll
	ChoiceSkipAll
	ChoiceCancel
)

// sticky сообщает, распространяется ли решение на оставшиеся файлы
// пакета. Одноразовые решения действуют только на текущий файл.
func (c Choice) sticky() bool {
	switch c {
	case ChoiceBackupAll, ChoiceOverwriteAll, ChoiceSkipAll, ChoiceCancel:
		return true
	}
	return false
}

func (c Choice) String() string {
	switch c {
	case ChoiceBackup:
		return "backup"
	case ChoiceOverwrite:
		return "overwrite"
	case ChoiceSkip:
		return "skip"
	case ChoiceBackupAll:
		return "backup-all"
	case ChoiceOverwriteAll:
		return "overwrite-all"
	case ChoiceSkipAll:
		return "skip-all"
	case ChoiceCancel:
		return "cancel"
	}
	return "none"
}

// ConflictResolver запрашивает у пользователя решение для файла,
// локальное содержимое которого отличается от содержимого организации
type ConflictResolver interface {
	Resolve(fileName string) (Choice, error)
}

// TerminalResolver спрашивает решение в терминале
type TerminalResolver struct {
	in  *bufio.Reader
	out io.Writer
}

func NewTerminalResolver(in io.Reader, out io.Writer) *TerminalResolver {
	return &TerminalResolver{
		in:  bufio.NewReader(in),
		out: out,
	}
}

var conflictChoices = []struct {
	choice Choice
	label  string
}{
	{ChoiceBackup, "Backup - сохранить копию локального файла перед перезаписью"},
	{ChoiceOverwrite, "Overwrite - перезаписать локальный файл кодом организации"},
	{ChoiceSkip, "Skip - оставить локальный файл (по умолчанию)"},
	{ChoiceBackupAll, "Backup All - сохранять копии всех перезаписываемых файлов"},
	{ChoiceOverwriteAll, "Overwrite All - перезаписать этот и все последующие файлы"},
	{ChoiceSkipAll, "Skip All - оставить все локальные файлы"},
	{ChoiceCancel, "Cancel - прервать операцию, сохранённые файлы останутся"},
}

func (r *TerminalResolver) Resolve(fileName string) (Choice, error) {
	fmt.Fprintln(r.out)
	color.New(color.FgYellow).Fprintf(r.out, "⚠️  Файл %s отличается от версии в организации\n", fileName)
	for i, item := range conflictChoices {
		fmt.Fprintf(r.out, "  %d. %s\n", i+1, item.label)
	}

	for {
		fmt.Fprint(r.out, "Выберите действие [1-7]: ")
		line, err := r.in.ReadString('\n')
		if err != nil {
			// Закрытый ввод трактуем как отказ от перезаписи
			if err == io.EOF {
				return ChoiceSkip, nil
			}
			return ChoiceNone, fmt.Errorf("ошибка чтения ввода: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			return ChoiceSkip, nil
		}

		var n int
		if _, err := fmt.Sscanf(line, "%d", &n); err == nil && n >= 1 && n <= len(conflictChoices) {
			return conflictChoices[n-1].choice, nil
		}
		color.New(color.FgRed).Fprintln(r.out, "Введите число от 1 до 7")
	}
}
