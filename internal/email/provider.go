package email

import (
	"context"
	"fmt"
	"log"
	"time"
)

type Message struct {
	To      string
	Subject string
	Text    string
}

type Result struct {
	MessageID string
}

// Provider — внешняя capability доставки. Движок жизненного цикла о ней
// не знает, отправкой занимается только адаптер.
type Provider interface {
	Send(ctx context.Context, msg Message) (*Result, error)
}

// StubProvider пишет письмо в лог вместо реальной отправки. Тело письма
// не логируем: в нём лежит сырой токен ссылки.
type StubProvider struct{}

func NewStubProvider() *StubProvider {
	return &StubProvider{}
}

func (p *StubProvider) Send(ctx context.Context, msg Message) (*Result, error) {
	log.Printf("[email:stub] to=%s subject=%q", msg.To, msg.Subject)
	return &Result{MessageID: fmt.Sprintf("stub-%d", time.Now().UnixNano())}, nil
}
