// internal/keystore/keystore.go
package keystore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/99designs/keyring"
	"golang.org/x/exp/slog"

	"qcpsync/internal/crypto"
)

const (
	serviceName = "qcp"

	// Файловый запасной вариант для окружений без системного
	// хранилища секретов (CI, контейнеры)
	fallbackFileName = ".qcp/.enc_key"
	fallbackFileMode = 0600
)

// Store управляет жизненным циклом ключа шифрования рабочей области:
// ключ генерируется один раз на проект и хранится в системном
// хранилище секретов, либо в файле внутри проекта, если хранилище
// недоступно.
type Store struct {
	projectRoot string
	log         *slog.Logger

	openKeyring func() (keyring.Keyring, error)
}

func New(projectRoot string, log *slog.Logger) *Store {
	return &Store{
		projectRoot: projectRoot,
		log:         log,
		openKeyring: func() (keyring.Keyring, error) {
			return keyring.Open(keyring.Config{
				ServiceName: serviceName,
			})
		},
	}
}

// LoadOrCreate возвращает ключ шифрования проекта, создавая его при
// первом обращении. Ключ обязан быть загружен до первого чтения или
// записи конфигурационного документа.
func (s *Store) LoadOrCreate() (string, error) {
	ring, err := s.openKeyring()
	if err != nil {
		s.log.Warn("Системное хранилище секретов недоступно, используется файловый ключ", "error", err)
		return s.loadOrCreateFile()
	}

	item, err := ring.Get(s.itemKey())
	if err == nil {
		return strings.TrimSpace(string(item.Data)), nil
	}
	if !errors.Is(err, keyring.ErrKeyNotFound) {
		s.log.Warn("Ошибка чтения ключа из хранилища секретов, используется файловый ключ", "error", err)
		return s.loadOrCreateFile()
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return "", err
	}

	if err := ring.Set(keyring.Item{
		Key:         s.itemKey(),
		Data:        []byte(key),
		Label:       "QCP encryption key",
		Description: s.projectRoot,
	}); err != nil {
		return "", fmt.Errorf("ошибка сохранения ключа в хранилище секретов: %w", err)
	}

	s.log.Debug("Сгенерирован новый ключ шифрования рабочей области")
	return key, nil
}

// itemKey - один ключ на рабочую область, по абсолютному пути проекта
func (s *Store) itemKey() string {
	return serviceName + ":" + s.projectRoot
}

func (s *Store) loadOrCreateFile() (string, error) {
	path := filepath.Join(s.projectRoot, fallbackFileName)

	data, err := os.ReadFile(path)
	if err == nil {
		return strings.TrimSpace(string(data)), nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("ошибка чтения файла ключа: %w", err)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("ошибка создания директории ключа: %w", err)
	}
	if err := os.WriteFile(path, []byte(key), fallbackFileMode); err != nil {
		return "", fmt.Errorf("ошибка записи файла ключа: %w", err)
	}

	return key, nil
}
