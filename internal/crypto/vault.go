// internal/crypto/vault.go
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Для AES размер IV всегда 16 байт
	ivLength = 16

	// Ключ - 16 случайных байт в hex-представлении, то есть 32 байта
	// ASCII. Ровно эта строка и используется как ключ AES-256.
	keyLength = 32
	rawKeyLen = 16

	// Константы PBKDF2 для ключа, производного от парольной фразы
	pbkdf2Iterations = 100000
	pbkdf2SaltLength = 16
)

// DecryptionError - шифротекст повреждён или ключ не подходит.
// Любой сбой нижележащего примитива нормализуется к этой ошибке.
type DecryptionError struct {
	Err error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("ошибка расшифровки: %v", e.Err)
}

func (e *DecryptionError) Unwrap() error {
	return e.Err
}

// Vault шифрует и расшифровывает данные одним симметричным ключом.
// Ключ задаётся один раз при создании и передаётся по ссылке туда,
// где он нужен - глобального состояния нет.
type Vault struct {
	key []byte
}

// NewVault создаёт хранилище с ключом, полученным из GenerateKey
// или DeriveKey (hex-строка из 32 символов).
func NewVault(key string) (*Vault, error) {
	if len(key) != keyLength {
		return nil, fmt.Errorf("неверная длина ключа: ожидалось %d символов, получено %d", keyLength, len(key))
	}
	if _, err := hex.DecodeString(key); err != nil {
		return nil, fmt.Errorf("ключ не является hex-строкой: %w", err)
	}
	return &Vault{key: []byte(key)}, nil
}

// GenerateKey генерирует новый ключ хранилища: 16 случайных байт в hex
func GenerateKey() (string, error) {
	raw := make([]byte, rawKeyLen)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", fmt.Errorf("ошибка генерации ключа: %w", err)
	}
	return hex.EncodeToString(raw), nil
}

// DeriveKey выводит ключ хранилища из парольной фразы через
// PBKDF2-SHA256. Используется там, где нет системного хранилища
// секретов и ключ нельзя просто сгенерировать и сохранить.
func DeriveKey(passphrase string, salt []byte) string {
	raw := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, rawKeyLen, sha256.New)
	return hex.EncodeToString(raw)
}

// GenerateSalt генерирует соль для DeriveKey
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, pbkdf2SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("ошибка генерации соли: %w", err)
	}
	return salt, nil
}

// Encrypt шифрует строку AES-256-CBC со случайным IV.
// Формат результата: "ivhex:cthex" - IV включён в шифротекст,
// поэтому Decrypt не требует никакого состояния кроме ключа.
func (v *Vault) Encrypt(value string) (string, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("ошибка создания cipher: %w", err)
	}

	iv := make([]byte, ivLength)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("ошибка генерации IV: %w", err)
	}

	padded := pkcs7Pad([]byte(value), aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ciphertext), nil
}

// Decrypt расшифровывает строку формата "ivhex:cthex".
// При любом повреждении формата или неверном ключе возвращает *DecryptionError.
func (v *Vault) Decrypt(value string) (string, error) {
	ivHex, ctHex, ok := strings.Cut(value, ":")
	if !ok {
		return "", &DecryptionError{Err: fmt.Errorf("неверный формат шифротекста")}
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != ivLength {
		return "", &DecryptionError{Err: fmt.Errorf("неверный IV")}
	}

	ciphertext, err := hex.DecodeString(ctHex)
	if err != nil {
		return "", &DecryptionError{Err: fmt.Errorf("шифротекст не является hex-строкой")}
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", &DecryptionError{Err: fmt.Errorf("неверная длина шифротекста")}
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", &DecryptionError{Err: err}
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return "", &DecryptionError{Err: err}
	}

	return string(unpadded), nil
}

// pkcs7Pad дополняет данные до кратности размеру блока (PKCS#7)
func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

// pkcs7Unpad снимает PKCS#7-дополнение
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("неверная длина данных")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize {
		return nil, fmt.Errorf("неверное дополнение")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, fmt.Errorf("неверное дополнение")
		}
	}
	return data[:len(data)-padding], nil
}
