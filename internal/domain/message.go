package domain

import "time"

// Overlay push message types.
const (
	MessageHello       = "hello"
	MessageStatus      = "status"
	MessageGift        = "gift_into_bottle"
	MessageBottleFull  = "bottle_full"
	MessageBottleUsed  = "bottle_used"
	MessageBottleReset = "bottle_reset"
)

// GiftView is the wire form of a Contribution.
type GiftView struct {
	SenderName string `json:"senderName"`
	GiftName   string `json:"giftName"`
	Add        int    `json:"add"`
}

// BottleView is the wire form of a BottleState. Times are unix milliseconds.
type BottleView struct {
	Current   int       `json:"current"`
	Capacity  int       `json:"capacity"`
	LastGift  *GiftView `json:"lastGift"`
	UpdatedAt int64     `json:"updatedAt"`
}

func NewGiftView(c Contribution) GiftView {
	return GiftView{SenderName: c.Sender, GiftName: c.Gift, Add: c.Points}
}

func NewBottleView(s BottleState) BottleView {
	view := BottleView{
		Current:   s.Current,
		Capacity:  s.Capacity,
		UpdatedAt: unixMilli(s.UpdatedAt),
	}
	if s.LastGift != nil {
		g := NewGiftView(*s.LastGift)
		view.LastGift = &g
	}
	return view
}

type HelloMessage struct {
	Type        string     `json:"type"`
	DisplayName string     `json:"displayName"`
	UniqueID    string     `json:"uniqueId"`
	Connected   bool       `json:"connected"`
	Bottle      BottleView `json:"bottle"`
}

type StatusMessage struct {
	Type      string `json:"type"`
	Connected bool   `json:"connected"`
	UniqueID  string `json:"uniqueId"`
	Error     string `json:"error,omitempty"`
}

type GiftMessage struct {
	Type   string     `json:"type"`
	Gift   GiftView   `json:"gift"`
	Bottle BottleView `json:"bottle"`
}

// BottleMessage carries bottle_full and bottle_reset.
type BottleMessage struct {
	Type   string     `json:"type"`
	Bottle BottleView `json:"bottle"`
}

type BottleUsedMessage struct {
	Type       string `json:"type"`
	UsedAmount int    `json:"usedAmount"`
	At         int64  `json:"at"`
}

func NewHelloMessage(displayName, uniqueID string, s BottleState) HelloMessage {
	return HelloMessage{
		Type:        MessageHello,
		DisplayName: displayName,
		UniqueID:    uniqueID,
		Connected:   s.Connected,
		Bottle:      NewBottleView(s),
	}
}

func NewStatusMessage(connected bool, uniqueID, errMsg string) StatusMessage {
	return StatusMessage{Type: MessageStatus, Connected: connected, UniqueID: uniqueID, Error: errMsg}
}

func NewGiftMessage(c Contribution, s BottleState) GiftMessage {
	return GiftMessage{Type: MessageGift, Gift: NewGiftView(c), Bottle: NewBottleView(s)}
}

func NewBottleFullMessage(s BottleState) BottleMessage {
	return BottleMessage{Type: MessageBottleFull, Bottle: NewBottleView(s)}
}

func NewBottleResetMessage(s BottleState) BottleMessage {
	return BottleMessage{Type: MessageBottleReset, Bottle: NewBottleView(s)}
}

func NewBottleUsedMessage(used int, at time.Time) BottleUsedMessage {
	return BottleUsedMessage{Type: MessageBottleUsed, UsedAmount: used, At: unixMilli(at)}
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
