package domain

import "time"

// EventKind описывает тип события приёма.
type EventKind string

const (
	// EventMessage — входящее сообщение.
	EventMessage EventKind = "message"
	// EventConnection — смена состояния подключения транспорта.
	EventConnection EventKind = "connection"
)

// ConnectionState описывает состояние чат-транспорта.
type ConnectionState string

const (
	ConnectionReady        ConnectionState = "ready"
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionAuthFailed   ConnectionState = "auth_failed"
)

// InboundMessage — входящее сообщение чата.
type InboundMessage struct {
	ChatName   string
	IsGroup    bool
	SenderName string
	Body       string
	Timestamp  time.Time
}

// IngestEvent — типизированное событие очереди приёма.
type IngestEvent struct {
	Kind    EventKind
	Message InboundMessage
	State   ConnectionState
	Reason  string
}
