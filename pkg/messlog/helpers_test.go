package messlog

import "github.com/calvinalkan/messlog/internal/hlc"

func newTestClock() *hlc.Clock {
	return hlc.New()
}
