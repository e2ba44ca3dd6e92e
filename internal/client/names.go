package client

import (
	"fmt"
	"math/rand/v2"
)

var (
	nameAdjectives = []string{
		"Happy", "Quick", "Silent", "Brave", "Clever", "Swift", "Bright", "Calm",
	}
	nameNouns = []string{
		"Panda", "Eagle", "Tiger", "Wolf", "Fox", "Bear", "Lion", "Hawk",
	}
)

// RandomName produces a display name like "SwiftFox42" for users who did
// not pick one.
func RandomName() string {
	adj := nameAdjectives[rand.IntN(len(nameAdjectives))]
	noun := nameNouns[rand.IntN(len(nameNouns))]
	return fmt.Sprintf("%s%s%d", adj, noun, rand.IntN(1000))
}
