// internal/project/store.go
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/exp/slog"

	"qcpsync/internal/crypto"
	"qcpsync/internal/domain/script"
	"qcpsync/internal/sfdc"
)

// FileMapping связывает локальный файл с записью организации.
// Снимок записи хранится без тела кода, чтобы конфигурационный
// документ оставался небольшим.
type FileMapping struct {
	FileName string                  `json:"fileName"`
	Record   script.CustomScriptBase `json:"record"`
}

// ConfigData - конфигурационный документ проекта: сведения об
// организации и таблица сопоставлений файлов
type ConfigData struct {
	OrgInfo *sfdc.OrgInfo `json:"orgInfo"`
	Files   []FileMapping `json:"files"`
}

// FindByPath возвращает сопоставление для локального пути
func (c *ConfigData) FindByPath(path string) *FileMapping {
	for i := range c.Files {
		if c.Files[i].FileName == path {
			return &c.Files[i]
		}
	}
	return nil
}

// FindByRecordID возвращает сопоставление для записи организации
func (c *ConfigData) FindByRecordID(id string) *FileMapping {
	for i := range c.Files {
		if c.Files[i].Record.ID == id {
			return &c.Files[i]
		}
	}
	return nil
}

// Store читает и сохраняет конфигурационный документ проекта.
// Токены на диске шифруются сейфом, в памяти документ всегда
// открытым текстом.
type Store struct {
	root  string
	vault *crypto.Vault
	log   *slog.Logger
}

func NewStore(root string, vault *crypto.Vault, log *slog.Logger) *Store {
	return &Store{
		root:  root,
		vault: vault,
		log:   log,
	}
}

// ConfigPath возвращает путь конфигурационного документа
func (s *Store) ConfigPath() string {
	return filepath.Join(s.root, ConfigFile)
}

// Root возвращает корень проекта
func (s *Store) Root() string {
	return s.root
}

// На диске authInfo - зашифрованная строка "ivhex:cthex"
type orgInfoEncrypted struct {
	OrgID    string         `json:"orgId,omitempty"`
	OrgType  script.OrgType `json:"orgType,omitempty"`
	LoginURL string         `json:"loginUrl,omitempty"`
	Username string         `json:"username,omitempty"`
	AuthInfo string         `json:"authInfo,omitempty"`
}

type configDataRaw struct {
	OrgInfo json.RawMessage `json:"orgInfo"`
	Files   []FileMapping   `json:"files"`
}

// Read загружает документ с диска. Документ поддерживается в двух
// вариантах - с зашифрованным и открытым authInfo (наследие старых
// версий). Ошибка расшифровки не прерывает загрузку проекта:
// документ деградирует до неавторизованного состояния.
func (s *Store) Read() (*ConfigData, error) {
	data, err := os.ReadFile(s.ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return &ConfigData{OrgInfo: &sfdc.OrgInfo{}, Files: []FileMapping{}}, nil
		}
		return nil, &script.LocalIOError{Path: s.ConfigPath(), Err: err}
	}

	var raw configDataRaw
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("ошибка парсинга конфигурации: %w", err)
	}

	configData := &ConfigData{
		OrgInfo: &sfdc.OrgInfo{},
		Files:   raw.Files,
	}
	if configData.Files == nil {
		configData.Files = []FileMapping{}
	}
	if len(raw.OrgInfo) == 0 {
		return configData, nil
	}

	// Определяем форму authInfo: строка - шифротекст, объект -
	// открытый текст
	var sniff struct {
		AuthInfo json.RawMessage `json:"authInfo"`
	}
	if err := json.Unmarshal(raw.OrgInfo, &sniff); err != nil {
		return nil, fmt.Errorf("ошибка парсинга orgInfo: %w", err)
	}

	if len(sniff.AuthInfo) > 0 && sniff.AuthInfo[0] == '"' {
		var encrypted orgInfoEncrypted
		if err := json.Unmarshal(raw.OrgInfo, &encrypted); err != nil {
			return nil, fmt.Errorf("ошибка парсинга orgInfo: %w", err)
		}
		configData.OrgInfo = &sfdc.OrgInfo{
			OrgID:    encrypted.OrgID,
			OrgType:  encrypted.OrgType,
			LoginURL: encrypted.LoginURL,
			Username: encrypted.Username,
		}

		plaintext, err := s.vault.Decrypt(encrypted.AuthInfo)
		if err != nil {
			var decErr *crypto.DecryptionError
			if errors.As(err, &decErr) {
				s.log.Warn("Не удалось расшифровать authInfo, требуется повторная авторизация", "error", err)
				return configData, nil
			}
			return nil, err
		}

		var authInfo sfdc.AuthInfo
		if err := json.Unmarshal([]byte(plaintext), &authInfo); err != nil {
			s.log.Warn("Не удалось разобрать расшифрованный authInfo, требуется повторная авторизация", "error", err)
			return configData, nil
		}
		configData.OrgInfo.AuthInfo = &authInfo
		return configData, nil
	}

	if err := json.Unmarshal(raw.OrgInfo, configData.OrgInfo); err != nil {
		return nil, fmt.Errorf("ошибка парсинга orgInfo: %w", err)
	}
	return configData, nil
}

// Save сериализует документ, шифруя authInfo, и записывает его
// атомарно через временный файл и rename - частичная запись не
// должна испортить предыдущую валидную версию
func (s *Store) Save(configData *ConfigData) error {
	encrypted := orgInfoEncrypted{}
	if configData.OrgInfo != nil {
		encrypted.OrgID = configData.OrgInfo.OrgID
		encrypted.OrgType = configData.OrgInfo.OrgType
		encrypted.LoginURL = configData.OrgInfo.LoginURL
		encrypted.Username = configData.OrgInfo.Username

		if configData.OrgInfo.AuthInfo != nil {
			plaintext, err := json.Marshal(configData.OrgInfo.AuthInfo)
			if err != nil {
				return fmt.Errorf("ошибка маршалинга authInfo: %w", err)
			}
			ciphertext, err := s.vault.Encrypt(string(plaintext))
			if err != nil {
				return err
			}
			encrypted.AuthInfo = ciphertext
		}
	}

	files := configData.Files
	if files == nil {
		files = []FileMapping{}
	}

	document := struct {
		OrgInfo orgInfoEncrypted `json:"orgInfo"`
		Files   []FileMapping    `json:"files"`
	}{
		OrgInfo: encrypted,
		Files:   files,
	}

	data, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка маршалинга конфигурации: %w", err)
	}

	path := s.ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &script.LocalIOError{Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "qcp-config-*.tmp")
	if err != nil {
		return &script.LocalIOError{Path: path, Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &script.LocalIOError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &script.LocalIOError{Path: path, Err: err}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return &script.LocalIOError{Path: path, Err: err}
	}

	s.log.Debug("Конфигурация сохранена", "path", path)
	return nil
}

// SaveRecords обновляет таблицу сопоставлений набором записей
// организации: существующие сопоставления обновляются по Id, для
// новых записей путь выводится из имени. Снимки записей сохраняются
// без тела кода. Документ сохраняется на диск.
func (s *Store) SaveRecords(configData *ConfigData, records []script.CustomScript) ([]FileMapping, error) {
	var mappings []FileMapping

	for _, rec := range records {
		snapshot := rec.WithoutCode()

		if found := configData.FindByRecordID(rec.ID); found != nil {
			found.Record = snapshot
			mappings = append(mappings, *found)
			continue
		}

		mapping := FileMapping{
			FileName: SrcPath(s.root, rec.Name),
			Record:   snapshot,
		}
		configData.Files = append(configData.Files, mapping)
		mappings = append(mappings, mapping)
	}

	if err := s.Save(configData); err != nil {
		return nil, err
	}
	return mappings, nil
}

// RemoveMapping удаляет сопоставление по локальному пути и сохраняет
// документ. Возвращает удалённое сопоставление, либо nil.
func (s *Store) RemoveMapping(configData *ConfigData, path string) (*FileMapping, error) {
	for i := range configData.Files {
		if configData.Files[i].FileName == path {
			removed := configData.Files[i]
			configData.Files = append(configData.Files[:i], configData.Files[i+1:]...)
			if err := s.Save(configData); err != nil {
				return nil, err
			}
			return &removed, nil
		}
	}
	return nil, nil
}
