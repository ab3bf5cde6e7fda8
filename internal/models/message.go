package models

import "time"

type DeliveryStatus string

const (
	StatusSending   DeliveryStatus = "sending"
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
	StatusFailed    DeliveryStatus = "failed"
)

const ContentTypeText = "text"

// DeletedPlaceholder replaces the content of a soft-deleted message.
const DeletedPlaceholder = "This message was deleted"

type ReadReceipt struct {
	UserID string    `bson:"user" json:"user"`
	ReadAt time.Time `bson:"read_at" json:"readAt"`
}

type Reaction struct {
	UserID    string    `bson:"user" json:"user"`
	Emoji     string    `bson:"emoji" json:"emoji"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

type EditRecord struct {
	Content  string    `bson:"content" json:"content"`
	EditedAt time.Time `bson:"edited_at" json:"editedAt"`
}

type Message struct {
	ID             string         `bson:"_id,omitempty" json:"id"`
	ConversationID string         `bson:"conversation" json:"conversation"`
	SenderID       string         `bson:"sender" json:"sender"`
	Content        string         `bson:"content" json:"content"`
	ContentType    string         `bson:"content_type" json:"contentType"`
	MediaURL       string         `bson:"media_url,omitempty" json:"mediaUrl"`
	MediaSize      int64          `bson:"media_size,omitempty" json:"mediaSize"`
	MediaName      string         `bson:"media_name,omitempty" json:"mediaName"`
	MediaType      string         `bson:"media_type,omitempty" json:"mediaType"`
	ReplyTo        string         `bson:"reply_to,omitempty" json:"replyTo,omitempty"`
	ReadBy         []ReadReceipt  `bson:"read_by,omitempty" json:"readBy"`
	Reactions      []Reaction     `bson:"reactions,omitempty" json:"reactions"`
	IsForwarded    bool           `bson:"is_forwarded,omitempty" json:"isForwarded"`
	ForwardedFrom  string         `bson:"forwarded_from,omitempty" json:"forwardedFrom,omitempty"`
	IsPinned       bool           `bson:"is_pinned,omitempty" json:"isPinned"`
	IsEdited       bool           `bson:"is_edited,omitempty" json:"isEdited"`
	EditHistory    []EditRecord   `bson:"edit_history,omitempty" json:"editHistory,omitempty"`
	IsDeleted      bool           `bson:"is_deleted,omitempty" json:"isDeleted"`
	DeletedAt      *time.Time     `bson:"deleted_at,omitempty" json:"deletedAt,omitempty"`
	DeliveryStatus DeliveryStatus `bson:"delivery_status" json:"deliveryStatus"`
	CreatedAt      time.Time      `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time      `bson:"updated_at" json:"updatedAt"`
}

// ApplyRead upserts the reader's receipt, keeping at most one entry per
// user. An existing entry keeps the later of the two timestamps.
func (m *Message) ApplyRead(userID string, at time.Time) {
	for i := range m.ReadBy {
		if m.ReadBy[i].UserID == userID {
			if at.After(m.ReadBy[i].ReadAt) {
				m.ReadBy[i].ReadAt = at
			}
			return
		}
	}
	m.ReadBy = append(m.ReadBy, ReadReceipt{UserID: userID, ReadAt: at})
}

// RecomputeStatus derives the delivery status from the current readBy
// set. Movement is only ever forward: failed and read are terminal, a
// receipt-less recompute leaves the status where it is, and a grown
// roster never pulls an already-read message back down.
func (m *Message) RecomputeStatus(conv *Conversation) {
	if m.DeliveryStatus == StatusFailed || m.DeliveryStatus == StatusRead {
		return
	}
	if !conv.IsGroup {
		for _, r := range m.ReadBy {
			if r.UserID != m.SenderID {
				m.DeliveryStatus = StatusRead
				return
			}
		}
		return
	}

	readers := make(map[string]bool, len(m.ReadBy))
	for _, r := range m.ReadBy {
		readers[r.UserID] = true
	}
	others := 0
	anyRead := false
	allRead := true
	for _, p := range conv.Participants {
		if p.UserID == m.SenderID {
			continue
		}
		others++
		if readers[p.UserID] {
			anyRead = true
		} else {
			allRead = false
		}
	}
	if others == 0 {
		return
	}
	if allRead {
		m.DeliveryStatus = StatusRead
	} else if anyRead {
		m.DeliveryStatus = StatusDelivered
	}
}

// ToggleReaction adds the (user, emoji) reaction, or removes it when
// the same pair is already present. Reports whether it was added.
func (m *Message) ToggleReaction(userID, emoji string, at time.Time) bool {
	for i := range m.Reactions {
		if m.Reactions[i].UserID == userID && m.Reactions[i].Emoji == emoji {
			m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
			return false
		}
	}
	m.Reactions = append(m.Reactions, Reaction{UserID: userID, Emoji: emoji, CreatedAt: at})
	return true
}

// Sanitize soft-deletes the message: the row stays so replies and
// forwards keep resolving, but the content is gone for good.
func (m *Message) Sanitize(at time.Time) {
	m.IsDeleted = true
	m.DeletedAt = &at
	m.Content = DeletedPlaceholder
	m.ContentType = ContentTypeText
	m.MediaURL = ""
	m.MediaSize = 0
	m.MediaName = ""
	m.MediaType = ""
	kept := m.ReadBy[:0]
	for _, r := range m.ReadBy {
		if r.UserID != "" {
			kept = append(kept, r)
		}
	}
	m.ReadBy = kept
}

// RecordEdit pushes the current content onto the edit history and
// swaps in the new content.
func (m *Message) RecordEdit(newContent string, at time.Time) {
	m.EditHistory = append(m.EditHistory, EditRecord{Content: m.Content, EditedAt: at})
	m.Content = newContent
	m.IsEdited = true
}

// Clone returns a deep copy so callers can mutate freely before persisting.
func (m *Message) Clone() *Message {
	cp := *m
	cp.ReadBy = append([]ReadReceipt(nil), m.ReadBy...)
	cp.Reactions = append([]Reaction(nil), m.Reactions...)
	cp.EditHistory = append([]EditRecord(nil), m.EditHistory...)
	if m.DeletedAt != nil {
		t := *m.DeletedAt
		cp.DeletedAt = &t
	}
	return &cp
}
