package profile

import (
	"time"

	"loadprobe/internal/room"
)

// BuiltIn returns the predefined run profiles.
func BuiltIn() map[string]Profile {
	ramp := []Stage{
		{Name: "warmup", Duration: 2 * time.Minute, Target: 10},
		{Name: "ramp", Duration: 5 * time.Minute, Target: 50},
		{Name: "stress", Duration: 5 * time.Minute, Target: 100},
		{Name: "breaking", Duration: 5 * time.Minute, Target: 200},
	}
	return map[string]Profile{
		"multi-room": {
			Name:        "multi-room",
			Description: "Users spread over every room, stepping up until the endpoint breaks.",
			RoomMode:    room.ModeMulti,
			VUs:         200,
			Stages:      ramp,
		},
		"single-room": {
			Name:        "single-room",
			Description: "Every user posts into the first room to find per-room contention limits.",
			RoomMode:    room.ModeSingle,
			VUs:         200,
			Stages:      ramp,
		},
		"smoke": {
			Name:        "smoke",
			Description: "One user, a handful of iterations, to check wiring before a real run.",
			RoomMode:    room.ModeMulti,
			VUs:         1,
			Iterations:  10,
			ThinkMin:    time.Second,
			ThinkMax:    time.Second,
		},
	}
}
