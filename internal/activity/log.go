// internal/activity/log.go
package activity

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/exp/slog"

	"qcpsync/internal/project"
)

type Action string

const (
	ActionPush Action = "push"
	ActionPull Action = "pull"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Entry - одна запись журнала операций
type Entry struct {
	Action     Action `json:"action"`
	Status     Status `json:"status"`
	Username   string `json:"username,omitempty"`
	FileName   string `json:"fileName,omitempty"`
	RecordID   string `json:"recordId,omitempty"`
	RecordName string `json:"recordName,omitempty"`
	Error      string `json:"error,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// Log - ограниченный журнал операций проекта: новые записи
// вставляются в начало, хвост за пределами максимума отбрасывается.
// Журнал ведётся по возможности - ошибки записи никогда не
// прерывают логируемую операцию.
type Log struct {
	path       string
	backupPath string
	max        int
	entries    []Entry
	initFailed bool
	log        *slog.Logger

	now func() time.Time
}

func New(root string, maxEntries int, log *slog.Logger) *Log {
	return &Log{
		path:       filepath.Join(root, project.LogFile),
		backupPath: filepath.Join(root, project.LogBackupFile),
		max:        maxEntries,
		log:        log,
		now:        time.Now,
	}
}

// Init загружает журнал с диска. Нечитаемый файл откладывается в
// бэкап, и журнал начинается заново - загрузка проекта не должна
// падать из-за испорченного журнала.
func (l *Log) Init() {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			l.initFailed = true
			l.log.Warn("Не удалось прочитать журнал операций", "error", err)
			return
		}
		l.entries = []Entry{}
		l.save()
		return
	}

	if len(data) == 0 {
		l.entries = []Entry{}
		l.save()
		return
	}

	if err := json.Unmarshal(data, &l.entries); err != nil {
		l.log.Warn("Журнал операций повреждён, откладываем в бэкап и начинаем заново", "error", err)
		if err := os.WriteFile(l.backupPath, data, 0644); err != nil {
			l.log.Warn("Не удалось сохранить бэкап журнала", "error", err)
		}
		l.entries = []Entry{}
		l.save()
	}
}

// Entries возвращает записи журнала, новые первыми
func (l *Log) Entries() []Entry {
	return l.entries
}

// AddSuccess добавляет запись об успешной операции над одной записью
func (l *Log) AddSuccess(action Action, username, fileName, recordID, recordName string) {
	l.add(Entry{
		Action:     action,
		Status:     StatusSuccess,
		Username:   username,
		FileName:   fileName,
		RecordID:   recordID,
		RecordName: recordName,
	})
}

// AddSuccessBatch добавляет по записи на каждое сопоставление пакета
func (l *Log) AddSuccessBatch(action Action, username string, mappings []project.FileMapping) {
	for _, m := range mappings {
		l.AddSuccess(action, username, m.FileName, m.Record.ID, m.Record.Name)
	}
}

// AddError добавляет запись о неуспешной операции
func (l *Log) AddError(action Action, username, fileName string, opErr error) {
	entry := Entry{
		Action:   action,
		Status:   StatusError,
		Username: username,
		FileName: fileName,
	}
	if opErr != nil {
		entry.Error = opErr.Error()
	}
	l.add(entry)
}

func (l *Log) add(entry Entry) {
	entry.Timestamp = l.now().UTC().Format(time.RFC3339)
	l.entries = append([]Entry{entry}, l.entries...)
	l.save()
}

func (l *Log) save() {
	if l.initFailed {
		return
	}

	if l.max > 0 && len(l.entries) > l.max {
		l.entries = l.entries[:l.max]
	}

	data, err := json.MarshalIndent(l.entries, "", "  ")
	if err != nil {
		l.log.Warn("Не удалось сериализовать журнал операций", "error", err)
		return
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		l.log.Warn("Не удалось создать директорию журнала", "error", err)
		return
	}
	if err := os.WriteFile(l.path, data, 0644); err != nil {
		l.log.Warn("Не удалось записать журнал операций", "error", err)
	}
}
