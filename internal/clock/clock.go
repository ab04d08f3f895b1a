package clock

import "time"

// Clock abstracts wall-clock access so services can be tested with a
// deterministic time source.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
