package ledger

import (
	"encoding/base64"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// eventLogPrefix marks program log lines that carry a borsh-encoded event.
const eventLogPrefix = "Program data: "

// EventKind enumerates the closed set of events the reconciler understands.
type EventKind int

const (
	// EventUnrecognized marks a "Program data:" line whose payload did not
	// decode as any known event. Callers must log these, never drop them.
	EventUnrecognized EventKind = iota
	EventSubscriptionsDue
	EventSubscriptionActivated
	EventSubscriptionPaymentRecorded
)

func (k EventKind) String() string {
	switch k {
	case EventSubscriptionsDue:
		return "SubscriptionsDue"
	case EventSubscriptionActivated:
		return "SubscriptionActivated"
	case EventSubscriptionPaymentRecorded:
		return "SubscriptionPaymentRecorded"
	default:
		return "Unrecognized"
	}
}

// DueEntry describes one subscription billing period reported as due.
type DueEntry struct {
	User                   solana.PublicKey
	SubscriptionID         uint64
	ServiceID              uint64
	ServiceName            string
	MonthlyPrice           uint64
	RecipientType          string
	Receiver               string
	DueTs                  int64
	InitialPaymentRecorded bool
}

// SubscriptionsDue is emitted by find_due_subscriptions.
type SubscriptionsDue struct {
	Entries []DueEntry
}

// SubscriptionActivated is emitted once per successful subscribe.
type SubscriptionActivated struct {
	User           solana.PublicKey
	SubscriptionID uint64
	ServiceID      uint64
	MonthlyPrice   uint64
	RecipientType  string
	Receiver       string
}

// SubscriptionPaymentRecorded is emitted by record_subscription_payment.
type SubscriptionPaymentRecorded struct {
	Operator       solana.PublicKey
	User           solana.PublicKey
	SubscriptionID uint64
	Status         string
	PaidTs         int64
}

// Event is the tagged union of decoded log events. Exactly one of the payload
// pointers is set for recognized kinds; Raw carries the original payload for
// unrecognized ones.
type Event struct {
	Kind            EventKind
	Due             *SubscriptionsDue
	Activated       *SubscriptionActivated
	PaymentRecorded *SubscriptionPaymentRecorded
	Raw             string
}

var (
	discSubscriptionsDue            = eventDiscriminator("SubscriptionsDue")
	discSubscriptionActivated       = eventDiscriminator("SubscriptionActivated")
	discSubscriptionPaymentRecorded = eventDiscriminator("SubscriptionPaymentRecorded")
)

// DecodeEventLogs extracts all program events from transaction log messages.
// Lines without the event prefix are ignored; prefixed lines that fail to
// decode are returned as EventUnrecognized entries.
func DecodeEventLogs(logs []string) []Event {
	var events []Event
	for _, line := range logs {
		if !strings.HasPrefix(line, eventLogPrefix) {
			continue
		}
		encoded := line[len(eventLogPrefix):]
		events = append(events, decodeEventPayload(encoded))
	}
	return events
}

func decodeEventPayload(encoded string) Event {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(data) < discriminatorLen {
		return Event{Kind: EventUnrecognized, Raw: encoded}
	}

	var disc [discriminatorLen]byte
	copy(disc[:], data[:discriminatorLen])
	body := data[discriminatorLen:]

	switch disc {
	case discSubscriptionsDue:
		var ev SubscriptionsDue
		if err := bin.NewBorshDecoder(body).Decode(&ev); err != nil {
			return Event{Kind: EventUnrecognized, Raw: encoded}
		}
		return Event{Kind: EventSubscriptionsDue, Due: &ev}
	case discSubscriptionActivated:
		var ev SubscriptionActivated
		if err := bin.NewBorshDecoder(body).Decode(&ev); err != nil {
			return Event{Kind: EventUnrecognized, Raw: encoded}
		}
		return Event{Kind: EventSubscriptionActivated, Activated: &ev}
	case discSubscriptionPaymentRecorded:
		var ev SubscriptionPaymentRecorded
		if err := bin.NewBorshDecoder(body).Decode(&ev); err != nil {
			return Event{Kind: EventUnrecognized, Raw: encoded}
		}
		return Event{Kind: EventSubscriptionPaymentRecorded, PaymentRecorded: &ev}
	default:
		return Event{Kind: EventUnrecognized, Raw: encoded}
	}
}
