package script

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated - токен отсутствует или недействителен.
	// Любая удалённая операция обязана падать с этой ошибкой до выполнения запроса.
	ErrNotAuthenticated = errors.New("authentication is invalid, please re-authenticate")

	// ErrRecordNotFound - запись не найдена на удалённой стороне
	ErrRecordNotFound = errors.New("record not found")
)

// RemoteOperationError - ошибка query/insert/update/delete, операция прервана
type RemoteOperationError struct {
	Op  string
	Err error
}

func (e *RemoteOperationError) Error() string {
	return fmt.Sprintf("ошибка удалённой операции %s: %v", e.Op, e.Err)
}

func (e *RemoteOperationError) Unwrap() error {
	return e.Err
}

// DuplicateNameError - нефатальное предупреждение: на удалённой стороне
// несколько записей с одним именем. Операция продолжается с первой
// найденной записью.
type DuplicateNameError struct {
	Name  string
	Count int
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("на Salesforce есть несколько записей с именем %q (%d), "+
		"дубликаты стоит переименовать или удалить", e.Name, e.Count)
}

// LocalIOError - ошибка чтения/записи/копирования локального файла.
// Прерывает операцию над одним файлом, но не весь пакет.
type LocalIOError struct {
	Path string
	Err  error
}

func (e *LocalIOError) Error() string {
	return fmt.Sprintf("ошибка работы с файлом %s: %v", e.Path, e.Err)
}

func (e *LocalIOError) Unwrap() error {
	return e.Err
}
