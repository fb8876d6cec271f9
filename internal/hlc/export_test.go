package hlc

import "time"

// SetNowForTest pins c's wall-clock source to a fixed instant. Exported only
// to _test.go files via the standard export_test.go convention.
func SetNowForTest(c *Clock, at time.Time) {
	c.now = func() time.Time { return at }
}
