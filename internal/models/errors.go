// Package models содержит доменные сущности движка entitlement-ов:
// выданные права, счётчики использования, записи dunning-процесса,
// определения продуктов и события биллингового жизненного цикла.
package models

import (
	"errors"
	"fmt"
)

// ErrNotFound возвращается, когда запрошенная сущность отсутствует в хранилище.
var ErrNotFound = errors.New("not found")

// DomainError описывает нарушение доменного инварианта. Такие ошибки
// не ретраятся и никогда не исправляются молча.
type DomainError struct {
	msg string
}

func (e *DomainError) Error() string {
	return e.msg
}

// NewDomainError создает DomainError с форматированным сообщением.
func NewDomainError(format string, args ...any) *DomainError {
	return &DomainError{msg: fmt.Sprintf(format, args...)}
}

// ErrUsageExceeded возвращается из Consume, когда запрошенный объём
// превышает оставшийся лимит счётчика.
var ErrUsageExceeded = NewDomainError("entitlement usage exceeded")

// IsDomainError сообщает, является ли ошибка доменной (включая ErrUsageExceeded).
func IsDomainError(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}
