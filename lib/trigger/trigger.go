package trigger

import "time"

// Press is one physical actuation of the start control.
type Press struct {
	Source string
	Time   time.Time
}

// Source is a hardware start control. Run blocks, delivering presses until
// the device goes away or Close is called.
type Source interface {
	Run(ch chan<- Press) error
	Close() error
}
