package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of roles a user account can hold.
type Role string

const (
	RoleUser      Role = "user"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleOrganizer, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	UID          uuid.UUID `json:"uid"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Role         Role      `json:"role"`
	IsVerified   bool      `json:"is_verified"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Event is a bookable event. OwnerUID is nullable because rows created
// before ownership tracking have no owner. RSVPCount is derived from live
// reservations and never persisted.
type Event struct {
	UID         uuid.UUID  `json:"uid"`
	Title       string     `json:"title"`
	OwnerUID    *uuid.UUID `json:"user_uid,omitempty"`
	Creator     string     `json:"creator"`
	Description string     `json:"description"`
	Location    string     `json:"location"`
	Category    string     `json:"category"`
	Capacity    int        `json:"capacity"`
	RSVPCount   int        `json:"rsvp_count"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (e *Event) IsFull() bool {
	return e.RSVPCount >= e.Capacity
}

// RSVP is a single user's claim on one unit of an event's capacity.
// At most one live RSVP exists per (user, event) pair.
type RSVP struct {
	UID      uuid.UUID `json:"uid"`
	UserUID  uuid.UUID `json:"user_uid"`
	EventUID uuid.UUID `json:"event_uid"`
	RSVPDate time.Time `json:"rsvp_date"`
}

// EventFilter narrows event listings. Zero-valued fields are ignored.
type EventFilter struct {
	Location      string
	Category      string
	Creator       string
	CreatedAfter  time.Time
	CreatedBefore time.Time
}

// Message is the payload published to the broker for the mail sender.
type Message struct {
	Email   string `json:"to"`
	Link    string `json:"link"`
	Purpose string `json:"purpose"`
}
