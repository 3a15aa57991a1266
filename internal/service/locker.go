package service

import (
	"sync"

	"github.com/google/uuid"
)

// invoiceLocker сериализует операции над одним инвойсом в пределах
// процесса: каждая мутация держит мьютекс своего инвойса на всю
// последовательность чтение-проверка-запись. Между процессами
// сериализацию обязана обеспечивать реализация хранилища.
type invoiceLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newInvoiceLocker() *invoiceLocker {
	return &invoiceLocker{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (l *invoiceLocker) lock(invoiceID uuid.UUID) func() {
	l.mu.Lock()
	m, ok := l.locks[invoiceID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[invoiceID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
