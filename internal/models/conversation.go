package models

import "time"

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

type Participant struct {
	UserID   string    `bson:"user" json:"user"`
	Role     Role      `bson:"role" json:"role"`
	JoinedAt time.Time `bson:"joined_at" json:"joinedAt"`
}

type Conversation struct {
	ID             string        `bson:"_id,omitempty" json:"id"`
	Name           string        `bson:"name,omitempty" json:"name"`
	Description    string        `bson:"description,omitempty" json:"description"`
	Avatar         string        `bson:"avatar,omitempty" json:"avatar"`
	IsGroup        bool          `bson:"is_group" json:"isGroup"`
	Participants   []Participant `bson:"participants" json:"participants"`
	MutedBy        []string      `bson:"muted,omitempty" json:"muted"`
	PinnedMessages []string      `bson:"pinned_messages,omitempty" json:"pinnedMessages"`
	LastMessageID  string        `bson:"last_message,omitempty" json:"lastMessage,omitempty"`
	CreatedBy      string        `bson:"created_by,omitempty" json:"createdBy,omitempty"`
	CreatedAt      time.Time     `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time     `bson:"updated_at" json:"updatedAt"`
}

// Participant returns the membership record for userID, if any.
func (c *Conversation) Participant(userID string) (*Participant, bool) {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i], true
		}
	}
	return nil, false
}

func (c *Conversation) IsParticipant(userID string) bool {
	_, ok := c.Participant(userID)
	return ok
}

func (c *Conversation) IsAdmin(userID string) bool {
	p, ok := c.Participant(userID)
	return ok && p.Role == RoleAdmin
}

// AddParticipant appends userID as a member unless already present.
// Reports whether the set changed.
func (c *Conversation) AddParticipant(userID string, role Role, at time.Time) bool {
	if c.IsParticipant(userID) {
		return false
	}
	c.Participants = append(c.Participants, Participant{UserID: userID, Role: role, JoinedAt: at})
	return true
}

// RemoveParticipant removes userID preserving the order of the rest.
func (c *Conversation) RemoveParticipant(userID string) bool {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			c.Participants = append(c.Participants[:i], c.Participants[i+1:]...)
			return true
		}
	}
	return false
}

// HasAdmin reports whether any participant holds the admin role.
func (c *Conversation) HasAdmin() bool {
	for i := range c.Participants {
		if c.Participants[i].Role == RoleAdmin {
			return true
		}
	}
	return false
}

// EnsureAdmin promotes the first participant when no admin remains,
// keeping the admin-non-empty invariant after a leave. Returns the
// promoted user id, or "" when nothing changed.
func (c *Conversation) EnsureAdmin() string {
	if len(c.Participants) == 0 || c.HasAdmin() {
		return ""
	}
	c.Participants[0].Role = RoleAdmin
	return c.Participants[0].UserID
}

// IsMutedBy reports whether userID muted this conversation.
func (c *Conversation) IsMutedBy(userID string) bool {
	for _, id := range c.MutedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// ToggleMute flips userID's mute state and reports the new state.
func (c *Conversation) ToggleMute(userID string) bool {
	for i, id := range c.MutedBy {
		if id == userID {
			c.MutedBy = append(c.MutedBy[:i], c.MutedBy[i+1:]...)
			return false
		}
	}
	c.MutedBy = append(c.MutedBy, userID)
	return true
}

// IsPinned reports whether messageID is in the pinned set.
func (c *Conversation) IsPinned(messageID string) bool {
	for _, id := range c.PinnedMessages {
		if id == messageID {
			return true
		}
	}
	return false
}

// TogglePin flips messageID's pinned state and reports the new state.
func (c *Conversation) TogglePin(messageID string) bool {
	for i, id := range c.PinnedMessages {
		if id == messageID {
			c.PinnedMessages = append(c.PinnedMessages[:i], c.PinnedMessages[i+1:]...)
			return false
		}
	}
	c.PinnedMessages = append(c.PinnedMessages, messageID)
	return true
}

// Clone returns a deep copy so callers can mutate freely before persisting.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.Participants = append([]Participant(nil), c.Participants...)
	cp.MutedBy = append([]string(nil), c.MutedBy...)
	cp.PinnedMessages = append([]string(nil), c.PinnedMessages...)
	return &cp
}
