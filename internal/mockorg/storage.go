// internal/mockorg/storage.go
package mockorg

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"qcpsync/internal/domain/script"
)

// Storage хранит записи локальной организации в sqlite.
// Путь ":memory:" дает чистую организацию на время процесса.
type Storage struct {
	db *sql.DB
}

func NewStorage(path string) (*Storage, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия базы данных: %w", err)
	}

	storage := &Storage{db: db}
	if err := storage.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка инициализации таблиц: %w", err)
	}

	return storage, nil
}

func (s *Storage) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS custom_scripts (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			code TEXT NOT NULL DEFAULT '',
			transpiled_code TEXT NOT NULL DEFAULT '',
			group_fields TEXT NOT NULL DEFAULT '',
			quote_fields TEXT NOT NULL DEFAULT '',
			quote_line_fields TEXT NOT NULL DEFAULT '',
			created_by_id TEXT NOT NULL,
			created_date TEXT NOT NULL,
			last_modified_by_id TEXT NOT NULL,
			last_modified_date TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_custom_scripts_name ON custom_scripts(name);
	`)
	return err
}

func (s *Storage) Close() error {
	return s.db.Close()
}

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// newRecordID генерирует 18-значный идентификатор с префиксом
// объекта, как это делает организация
func newRecordID() string {
	buf := make([]byte, 15)
	rand.Read(buf)
	id := make([]byte, 0, 18)
	id = append(id, 'a', '0', 'B')
	for _, b := range buf {
		id = append(id, idAlphabet[int(b)%len(idAlphabet)])
	}
	return string(id)
}

func (s *Storage) scanRecords(rows *sql.Rows) ([]script.CustomScript, error) {
	defer rows.Close()

	var records []script.CustomScript
	for rows.Next() {
		var rec script.CustomScript
		err := rows.Scan(
			&rec.ID, &rec.Name, &rec.Code, &rec.TranspiledCode,
			&rec.GroupFields, &rec.QuoteFields, &rec.QuoteLineFields,
			&rec.CreatedByID, &rec.CreatedDate,
			&rec.LastModifiedByID, &rec.LastModifiedDate,
		)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения записи: %w", err)
		}
		rec.CreatedBy = script.UserRef{ID: rec.CreatedByID, Name: "Mock User", Username: mockUsername}
		rec.LastModifiedBy = script.UserRef{ID: rec.LastModifiedByID, Name: "Mock User", Username: mockUsername}
		records = append(records, rec)
	}
	return records, rows.Err()
}

const selectFields = `id, name, code, transpiled_code, group_fields, quote_fields,
	quote_line_fields, created_by_id, created_date, last_modified_by_id, last_modified_date`

func (s *Storage) All() ([]script.CustomScript, error) {
	rows, err := s.db.Query(`SELECT ` + selectFields + ` FROM custom_scripts ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки записей: %w", err)
	}
	return s.scanRecords(rows)
}

func (s *Storage) ByID(id string) ([]script.CustomScript, error) {
	rows, err := s.db.Query(`SELECT `+selectFields+` FROM custom_scripts WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки записи: %w", err)
	}
	return s.scanRecords(rows)
}

func (s *Storage) ByName(name string) ([]script.CustomScript, error) {
	rows, err := s.db.Query(`SELECT `+selectFields+` FROM custom_scripts WHERE name = ? ORDER BY id`, name)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки записей: %w", err)
	}
	return s.scanRecords(rows)
}

// Insert создает запись и возвращает присвоенный идентификатор
func (s *Storage) Insert(name, code string) (string, error) {
	id := newRecordID()
	now := time.Now().UTC().Format("2006-01-02T15:04:05.000-0700")

	_, err := s.db.Exec(`
		INSERT INTO custom_scripts (id, name, code, created_by_id, created_date,
		                            last_modified_by_id, last_modified_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, name, code, mockUserID, now, mockUserID, now)
	if err != nil {
		return "", fmt.Errorf("ошибка вставки записи: %w", err)
	}
	return id, nil
}

// Update обновляет имя и код записи, возвращает false если записи нет
func (s *Storage) Update(id, name, code string) (bool, error) {
	now := time.Now().UTC().Format("2006-01-02T15:04:05.000-0700")

	result, err := s.db.Exec(`
		UPDATE custom_scripts
		SET name = ?, code = ?, last_modified_by_id = ?, last_modified_date = ?
		WHERE id = ?
	`, name, code, mockUserID, now, id)
	if err != nil {
		return false, fmt.Errorf("ошибка обновления записи: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ошибка обновления записи: %w", err)
	}
	return affected > 0, nil
}

func (s *Storage) Delete(id string) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM custom_scripts WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("ошибка удаления записи: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ошибка удаления записи: %w", err)
	}
	return affected > 0, nil
}
