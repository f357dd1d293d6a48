package ledger

import (
	"bytes"
	"encoding/base64"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeEventLog builds the "Program data: <base64>" line a program emits for
// an event: 8-byte discriminator followed by the borsh payload.
func encodeEventLog(t *testing.T, name string, payload interface{}) string {
	t.Helper()
	var buf bytes.Buffer
	disc := eventDiscriminator(name)
	buf.Write(disc[:])
	require.NoError(t, bin.NewBorshEncoder(&buf).Encode(payload))
	return eventLogPrefix + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestDecodeEventLogsSubscriptionActivated(t *testing.T) {
	user := solana.NewWallet().PublicKey()
	line := encodeEventLog(t, "SubscriptionActivated", SubscriptionActivated{
		User:           user,
		SubscriptionID: 7,
		ServiceID:      2,
		MonthlyPrice:   12_990_000,
		RecipientType:  "EMAIL",
		Receiver:       "creator@example.com",
	})

	events := DecodeEventLogs([]string{
		"Program log: Instruction: Subscribe",
		line,
		"Program consumed 20000 of 200000 compute units",
	})

	require.Len(t, events, 1)
	require.Equal(t, EventSubscriptionActivated, events[0].Kind)
	activated := events[0].Activated
	require.NotNil(t, activated)
	assert.Equal(t, user, activated.User)
	assert.Equal(t, uint64(7), activated.SubscriptionID)
	assert.Equal(t, uint64(2), activated.ServiceID)
	assert.Equal(t, uint64(12_990_000), activated.MonthlyPrice)
	assert.Equal(t, "EMAIL", activated.RecipientType)
	assert.Equal(t, "creator@example.com", activated.Receiver)
}

func TestDecodeEventLogsSubscriptionsDue(t *testing.T) {
	userA := solana.NewWallet().PublicKey()
	userB := solana.NewWallet().PublicKey()
	line := encodeEventLog(t, "SubscriptionsDue", SubscriptionsDue{
		Entries: []DueEntry{
			{
				User:           userA,
				SubscriptionID: 1,
				ServiceID:      4,
				ServiceName:    "netflix",
				MonthlyPrice:   15_490_000,
				RecipientType:  "EMAIL",
				Receiver:       "a@example.com",
				DueTs:          1_700_000_000,
			},
			{
				User:                   userB,
				SubscriptionID:         3,
				ServiceID:              4,
				ServiceName:            "netflix",
				MonthlyPrice:           15_490_000,
				RecipientType:          "PAYPAL_ID",
				Receiver:               "XYZ123",
				DueTs:                  1_700_000_500,
				InitialPaymentRecorded: true,
			},
		},
	})

	events := DecodeEventLogs([]string{line})
	require.Len(t, events, 1)
	require.Equal(t, EventSubscriptionsDue, events[0].Kind)
	entries := events[0].Due.Entries
	require.Len(t, entries, 2)
	assert.Equal(t, userA, entries[0].User)
	assert.Equal(t, "a@example.com", entries[0].Receiver)
	assert.False(t, entries[0].InitialPaymentRecorded)
	assert.Equal(t, userB, entries[1].User)
	assert.True(t, entries[1].InitialPaymentRecorded)
}

func TestDecodeEventLogsPaymentRecorded(t *testing.T) {
	operator := solana.NewWallet().PublicKey()
	user := solana.NewWallet().PublicKey()
	line := encodeEventLog(t, "SubscriptionPaymentRecorded", SubscriptionPaymentRecorded{
		Operator:       operator,
		User:           user,
		SubscriptionID: 9,
		Status:         "ACTIVE",
		PaidTs:         1_700_000_123,
	})

	events := DecodeEventLogs([]string{line})
	require.Len(t, events, 1)
	require.Equal(t, EventSubscriptionPaymentRecorded, events[0].Kind)
	assert.Equal(t, "ACTIVE", events[0].PaymentRecorded.Status)
	assert.Equal(t, int64(1_700_000_123), events[0].PaymentRecorded.PaidTs)
}

func TestDecodeEventLogsUnrecognized(t *testing.T) {
	// Unknown discriminator, invalid base64, and truncated payloads all
	// surface as unrecognized events rather than disappearing.
	unknown := encodeEventLog(t, "SomethingElse", SubscriptionPaymentRecorded{})
	logs := []string{
		unknown,
		eventLogPrefix + "!!!not-base64!!!",
		eventLogPrefix + base64.StdEncoding.EncodeToString([]byte{1, 2, 3}),
	}

	events := DecodeEventLogs(logs)
	require.Len(t, events, 3)
	for _, event := range events {
		assert.Equal(t, EventUnrecognized, event.Kind)
		assert.NotEmpty(t, event.Raw)
	}
}

func TestDecodeEventLogsIgnoresPlainLogLines(t *testing.T) {
	events := DecodeEventLogs([]string{
		"Program 9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin invoke [1]",
		"Program log: Instruction: FindDueSubscriptions",
	})
	assert.Empty(t, events)
}
