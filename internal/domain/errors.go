package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindNotFound     ErrorKind = "NOT_FOUND"
	KindConflict     ErrorKind = "CONFLICT"
	KindUnauthorized ErrorKind = "UNAUTHORIZED"
	KindInternal     ErrorKind = "INTERNAL"
)

// DomainError несёт машинно-различимый вид ошибки и человекочитаемое
// сообщение. Обработчики мапят Kind на HTTP-статус.
type DomainError struct {
	Kind    ErrorKind
	Message string
}

func (e *DomainError) Error() string { return e.Message }

func NewNotFound(format string, args ...interface{}) *DomainError {
	return &DomainError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewConflict(format string, args ...interface{}) *DomainError {
	return &DomainError{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func NewUnauthorized(format string, args ...interface{}) *DomainError {
	return &DomainError{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

func NewInternal(format string, args ...interface{}) *DomainError {
	return &DomainError{Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

func IsConflict(err error) bool { return KindOf(err) == KindConflict }

func IsUnauthorized(err error) bool { return KindOf(err) == KindUnauthorized }
