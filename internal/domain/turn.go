package domain

import "time"

// Turn is one recorded (input, output) exchange. Turns are written once, after a
// successful completion, and never updated.
type Turn struct {
	ID        string
	Input     string
	Output    string
	Timestamp time.Time
}
