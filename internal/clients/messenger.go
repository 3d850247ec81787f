package clients

import (
	"context"
	"log"
)

// LogMessenger is the default message-dispatch collaborator: it writes the
// rendered message to the process log. The real chat integration implements
// service.Messenger and replaces this in the composition root.
type LogMessenger struct{}

func NewLogMessenger() *LogMessenger {
	return &LogMessenger{}
}

func (m *LogMessenger) Send(ctx context.Context, channel, text string) error {
	log.Printf("messenger: channel=%s message=%q", channel, text)
	return nil
}
