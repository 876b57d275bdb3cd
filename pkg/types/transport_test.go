package types

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	msg := NewMessage("a@example.com", "hi", "body")

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "a@example.com", msg.To)
	assert.Equal(t, "hi", msg.Subject)
	assert.Equal(t, "body", msg.Body)

	other := NewMessage("a@example.com", "hi", "body")
	assert.NotEqual(t, msg.ID, other.ID)
}

func TestMessage_WithID(t *testing.T) {
	msg := Message{To: "a@example.com"}.WithID()
	assert.NotEmpty(t, msg.ID)

	kept := Message{ID: "fixed", To: "a@example.com"}.WithID()
	assert.Equal(t, "fixed", kept.ID)
}

func TestMessage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		to      string
		wantErr bool
	}{
		{"valid address", "", "user@example.com", false},
		{"valid address with id", "msg-1", "user@example.com", false},
		{"empty recipient", "", "", true},
		{"whitespace recipient", "", "   ", true},
		{"missing at sign", "", "user.example.com", true},
		{"line break in recipient", "", "user@example.com\r\nBcc: x@evil.example", true},
		{"newline in id", "x\nBcc: x@evil.example", "user@example.com", true},
		{"carriage return in id", "x\r", "user@example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Message{ID: tt.id, To: tt.to}.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidMessage)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestTransportFunc(t *testing.T) {
	var got Message
	fn := TransportFunc(func(_ context.Context, msg Message) (bool, error) {
		got = msg
		return true, nil
	})

	ok, err := fn.Send(context.Background(), Message{To: "x@example.com"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x@example.com", got.To)
}

func TestTransportName(t *testing.T) {
	plain := TransportFunc(func(context.Context, Message) (bool, error) { return false, errors.New("nope") })

	assert.Equal(t, "transport-0", TransportName(plain, 0))
	assert.Equal(t, "transport-3", TransportName(plain, 3))
	assert.Equal(t, "primary", TransportName(Named("primary", plain), 0))
	assert.Equal(t, "transport-1", TransportName(Named("", plain), 1))
}

func TestNamed_DelegatesSend(t *testing.T) {
	calls := 0
	named := Named("smtp", TransportFunc(func(context.Context, Message) (bool, error) {
		calls++
		return true, nil
	}))

	ok, err := named.Send(context.Background(), Message{})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "smtp", named.Name())
}
