// Package bus delivers Snapshots from a single producer (the live scheduler
// or a replay cursor) to any number of presentation consumers.
package bus

import (
	"time"

	"github.com/grovetools/pgpulse/pkg/snapshot"
)

// DeliveryType defines what a Delivery carries.
type DeliveryType string

const (
	DeliverySnapshot DeliveryType = "snapshot"
	DeliveryNotice   DeliveryType = "notice"
)

// NoticeLevel grades an operator-visible notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is an operator-visible message such as "recording disabled".
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Source  string      `json:"source"`
	Message string      `json:"message"`
	At      time.Time   `json:"at"`
}

// Delivery is one item in a subscriber's mailbox.
type Delivery struct {
	Type     DeliveryType      `json:"type"`
	Snapshot snapshot.Snapshot `json:"snapshot"`
	// Seek is set when the producer moved explicitly (replay navigation), so
	// the sequence may be lower than the previous delivery's.
	Seek     bool    `json:"seek,omitempty"`
	Producer string  `json:"producer,omitempty"`
	Notice   *Notice `json:"notice,omitempty"`
}
