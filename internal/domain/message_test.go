package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBottleView_LastGiftAndMillis(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	view := NewBottleView(BottleState{
		Current:   7,
		Capacity:  10,
		LastGift:  &Contribution{Sender: "alice", Gift: "Rose", Points: 7},
		UpdatedAt: at,
	})

	assert.Equal(t, 7, view.Current)
	assert.Equal(t, int64(1700000000123), view.UpdatedAt)
	require.NotNil(t, view.LastGift)
	assert.Equal(t, GiftView{SenderName: "alice", GiftName: "Rose", Add: 7}, *view.LastGift)
}

func TestNewBottleView_ZeroTimeIsZeroMillis(t *testing.T) {
	view := NewBottleView(BottleState{Capacity: 100})
	assert.Zero(t, view.UpdatedAt)
	assert.Nil(t, view.LastGift)
}

func TestGiftMessage_WireShape(t *testing.T) {
	msg := NewGiftMessage(
		Contribution{Sender: "bob", Gift: "Lion", Points: 21},
		BottleState{Current: 21, Capacity: 100, UpdatedAt: time.UnixMilli(5)},
	)

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "gift_into_bottle", decoded["type"])
	gift := decoded["gift"].(map[string]any)
	assert.Equal(t, "bob", gift["senderName"])
	assert.Equal(t, float64(21), gift["add"])
	bottle := decoded["bottle"].(map[string]any)
	assert.Equal(t, float64(100), bottle["capacity"])
	assert.Equal(t, float64(5), bottle["updatedAt"])
}

func TestStatusMessage_OmitsEmptyError(t *testing.T) {
	data, err := json.Marshal(NewStatusMessage(true, "someone", ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"status","connected":true,"uniqueId":"someone"}`, string(data))
}

func TestBroadcasterConfig_Validate(t *testing.T) {
	assert.NoError(t, BroadcasterConfig{UniqueID: "abc", Capacity: 10}.Validate())
	assert.ErrorIs(t, BroadcasterConfig{UniqueID: "  "}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, BroadcasterConfig{UniqueID: "abc", Capacity: -1}.Validate(), ErrInvalidConfig)
}
