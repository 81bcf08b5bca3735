package models

import "time"

// Forward statuses. WAITING is the only non-terminal status; a forward leaves
// it exactly once, through a receiver response.
const (
	StatusWaiting      = "WAITING"
	StatusApproved     = "APPROVED"
	StatusRejected     = "REJECTED"
	StatusNeedsEditing = "NEEDS_EDITING"
)

// ValidStatus reports whether s is one of the four forward statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusWaiting, StatusApproved, StatusRejected, StatusNeedsEditing:
		return true
	}
	return false
}

// TransactionForward is one hand-off of a transaction from a sender to a
// receiver. A transaction's forwards form an append-only chain ordered by ID;
// the forward with the highest ID is the latest and the only one eligible for
// response, comment edits, or deletion.
type TransactionForward struct {
	ID              uint      `gorm:"column:forward_id;primaryKey;autoIncrement" json:"id"`
	TransactionID   uint      `gorm:"column:transaction_id;index;not null" json:"transaction_id"`
	Status          string    `gorm:"column:status;type:varchar(20);default:'WAITING'" json:"status"`
	SenderComment   *string   `gorm:"column:sender_comment;type:text" json:"sender_comment"`
	ReceiverComment *string   `gorm:"column:receiver_comment;type:text" json:"receiver_comment"`
	SenderSeen      bool      `gorm:"column:sender_seen;default:true" json:"sender_seen"`
	ReceiverSeen    bool      `gorm:"column:receiver_seen;default:false" json:"receiver_seen"`
	ForwardedAt     time.Time `gorm:"column:forwarded_at;autoCreateTime" json:"forwarded_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`

	SenderID uint  `gorm:"column:sender_id;index;not null" json:"sender_id"`
	Sender   *User `gorm:"foreignKey:SenderID" json:"sender,omitempty"`

	ReceiverID uint  `gorm:"column:receiver_id;index;not null" json:"receiver_id"`
	Receiver   *User `gorm:"foreignKey:ReceiverID" json:"receiver,omitempty"`

	Transaction *Transaction `gorm:"foreignKey:TransactionID" json:"-"`
}

// The seen pair is a two-party sync primitive: each side flips its own flag
// when it reads the forward, and the receiver's actions knock the sender's
// flag back down. All transitions go through the methods below so the
// invariants stay in one place.

// MarkSenderSeen records that the sender has observed the current state.
// Returns true if the flag changed.
func (f *TransactionForward) MarkSenderSeen() bool {
	if f.SenderSeen {
		return false
	}
	f.SenderSeen = true
	return true
}

// MarkReceiverSeen records that the receiver has observed the forward.
// Returns true if the flag changed.
func (f *TransactionForward) MarkReceiverSeen() bool {
	if f.ReceiverSeen {
		return false
	}
	f.ReceiverSeen = true
	return true
}

// ResetSenderSeen forces the sender to re-review after the receiver changed
// something. Returns true if the flag changed.
func (f *TransactionForward) ResetSenderSeen() bool {
	if !f.SenderSeen {
		return false
	}
	f.SenderSeen = false
	return true
}
