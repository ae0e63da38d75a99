// Package hostpage is the boundary between a widget and the page that
// embeds it.  The page learns three things only: a token was issued, the
// attempt failed, or the token expired.  Puzzles, nonces and digests never
// cross this boundary.
package hostpage

import (
	"errors"
	"fmt"
)

// Source tags every message so pages can ignore unrelated postMessage
// traffic.
const Source = "powcaptcha"

// MessageType is the kind of notification.
type MessageType string

const (
	TypeSuccess MessageType = "success"
	TypeFailure MessageType = "failure"
	TypeExpired MessageType = "expired"
)

// Message is one notification to the hosting page.
type Message struct {
	Source   string      `json:"source"`
	WidgetID string      `json:"widget_id"`
	Type     MessageType `json:"type"`
	State    string      `json:"state"`
	Token    string      `json:"token,omitempty"`
}

// NewMessage returns a Message tagged with Source.  token is only kept for
// TypeSuccess.
func NewMessage(widgetID string, typ MessageType, state, token string) Message {
	m := Message{Source: Source, WidgetID: widgetID, Type: typ, State: state}
	if typ == TypeSuccess {
		m.Token = token
	}
	return m
}

// Validate checks the invariants of the message contract.
func (m Message) Validate() error {
	if m.Source != Source {
		return fmt.Errorf("hostpage: unexpected source %q", m.Source)
	}
	if m.WidgetID == "" {
		return errors.New("hostpage: missing widget id")
	}
	switch m.Type {
	case TypeSuccess:
		if m.Token == "" {
			return errors.New("hostpage: success without token")
		}
	case TypeFailure, TypeExpired:
		if m.Token != "" {
			return fmt.Errorf("hostpage: %s message must not carry a token", m.Type)
		}
	default:
		return fmt.Errorf("hostpage: unknown message type %q", m.Type)
	}
	return nil
}

// Notifier delivers messages to a hosting page.
type Notifier interface {
	Post(m Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Message) error

func (f NotifierFunc) Post(m Message) error { return f(m) }

// Multi posts to every notifier in order and joins their errors.
type Multi []Notifier

func (ns Multi) Post(m Message) error {
	var errs []error
	for _, n := range ns {
		if n == nil {
			continue
		}
		if err := n.Post(m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
