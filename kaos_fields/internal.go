package kaos_fields

import "time"

// SystemClock is a clock that returns local time of the system.
var SystemClock = &systemClock{}

// Clock is used to query the current local time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (s *systemClock) Now() time.Time {
	return time.Now()
}

// MockClock can be used to mock current time during tests.
type MockClock struct {
	Timestamp time.Time
}

func (m *MockClock) Now() time.Time {
	return m.Timestamp
}
