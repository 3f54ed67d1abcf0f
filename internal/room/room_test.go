package room

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRooms(n int) []Room {
	rooms := make([]Room, n)
	for i := range rooms {
		rooms[i] = Room{RoomID: string(rune('a' + i)), UserID: "u", PatientID: "p"}
	}
	return rooms
}

func TestIndexMultiRoom(t *testing.T) {
	cases := []struct {
		user, rooms, want int
	}{
		{1, 4, 0},
		{2, 4, 1},
		{4, 4, 3},
		{5, 4, 0},
		{10, 3, 0},
		{0, 3, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Index(ModeMulti, tc.user, tc.rooms), "user %d rooms %d", tc.user, tc.rooms)
	}
}

func TestIndexIsPure(t *testing.T) {
	for user := 1; user <= 50; user++ {
		first := Index(ModeMulti, user, 7)
		for i := 0; i < 3; i++ {
			assert.Equal(t, first, Index(ModeMulti, user, 7))
		}
	}
}

func TestIndexSingleRoomAlwaysZero(t *testing.T) {
	for user := -2; user <= 100; user++ {
		assert.Equal(t, 0, Index(ModeSingle, user, 10))
	}
}

func TestSelectorUsersPerRoom(t *testing.T) {
	s, err := NewSelector(ModeMulti, sampleRooms(5))
	require.NoError(t, err)
	counts := map[string]int{}
	for user := 1; user <= 50; user++ {
		counts[s.For(user).RoomID]++
	}
	assert.Len(t, counts, 5)
	for id, c := range counts {
		assert.Equal(t, 10, c, "room %s", id)
	}
}

func TestNewSelectorRejectsEmptyAndUnknown(t *testing.T) {
	_, err := NewSelector(ModeMulti, nil)
	assert.ErrorIs(t, err, ErrNoRooms)
	_, err = NewSelector("random", sampleRooms(1))
	assert.Error(t, err)

	s, err := NewSelector("", sampleRooms(2))
	require.NoError(t, err)
	assert.Equal(t, ModeMulti, s.Mode())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rooms.json")
	doc := `{"rooms":[{"roomId":"r1","userId":"u1","patientId":"p1"},{"roomId":"r2","userId":"u2","patientId":"p2"}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	rooms, err := Load(path)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, Room{RoomID: "r2", UserID: "u2", PatientID: "p2"}, rooms[1])
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte(`{"rooms":[]}`))
	assert.ErrorIs(t, err, ErrNoRooms)
	_, err = Parse([]byte(`{"rooms":[{"userId":"u"}]}`))
	assert.Error(t, err)
	_, err = Parse([]byte(`not json`))
	assert.Error(t, err)
}

func TestBuilderEncode(t *testing.T) {
	b := NewBuilder(PayloadDefaults{TenantID: "acme"})
	data, err := b.Encode(Room{RoomID: "r1", UserID: "u1", PatientID: "p1"}, 7)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "r1", got["roomId"])
	assert.Equal(t, "u1", got["userId"])
	assert.Equal(t, "p1", got["patientId"])
	assert.Equal(t, "acme", got["tenantId"])
	assert.Equal(t, "chat.message.created", got["eventName"])
	assert.Equal(t, "en-US", got["locale"])
	assert.Equal(t, "load test message #7", got["message"])
	assert.Equal(t, true, got["sendNotification"])
	assert.Equal(t, false, got["isInternal"])
}
