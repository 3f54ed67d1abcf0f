// Room reference data and the user-to-room selection policy.
package room

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Room is one chat room a virtual user posts into.
type Room struct {
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
	PatientID string `json:"patientId"`
}

// File is the on-disk layout of the rooms input.
type File struct {
	Rooms []Room `json:"rooms"`
}

// ErrNoRooms is returned when the rooms input holds no usable room.
var ErrNoRooms = errors.New("rooms file contains no rooms")

// Load reads a rooms document from path.
func Load(path string) ([]Room, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rooms: %w", err)
	}
	return Parse(data)
}

// Parse decodes a rooms document and rejects empty or incomplete entries.
func Parse(data []byte) ([]Room, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rooms: %w", err)
	}
	if len(f.Rooms) == 0 {
		return nil, ErrNoRooms
	}
	for i, r := range f.Rooms {
		if r.RoomID == "" {
			return nil, fmt.Errorf("room %d: missing roomId", i)
		}
	}
	return f.Rooms, nil
}

// Mode selects how virtual users are spread over rooms.
type Mode string

const (
	// ModeMulti spreads users round-robin over every room.
	ModeMulti Mode = "multi"
	// ModeSingle pins every user to the first room.
	ModeSingle Mode = "single"
)

// Selector maps a virtual user to a room for the whole run.
type Selector struct {
	mode  Mode
	rooms []Room
}

// NewSelector returns a selector over rooms. rooms must not be empty.
func NewSelector(mode Mode, rooms []Room) (*Selector, error) {
	if len(rooms) == 0 {
		return nil, ErrNoRooms
	}
	switch mode {
	case ModeMulti, ModeSingle:
	case "":
		mode = ModeMulti
	default:
		return nil, fmt.Errorf("unknown room mode %q", mode)
	}
	return &Selector{mode: mode, rooms: rooms}, nil
}

// Index returns the room index for a 1-based user id.
func Index(mode Mode, userID, roomCount int) int {
	if mode == ModeSingle || roomCount <= 1 {
		return 0
	}
	if userID < 1 {
		userID = 1
	}
	return (userID - 1) % roomCount
}

// For returns the room assigned to userID.
func (s *Selector) For(userID int) Room {
	return s.rooms[Index(s.mode, userID, len(s.rooms))]
}

// Mode reports the selection mode.
func (s *Selector) Mode() Mode { return s.mode }

// Len reports how many rooms the selector draws from.
func (s *Selector) Len() int { return len(s.rooms) }
