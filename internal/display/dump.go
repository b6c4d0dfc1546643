package display

import "io"

// Tap registers w to receive a raw copy of the surface's pixel bytes
// at every EndFrame call, for offline diagnostic capture (feeding a
// raw RGBA stream to a file for later inspection). Call count is
// unbounded by design: callers that only want one frame should close
// over a counter and stop writing after it fires once.
func (s *Surface) Tap(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taps = append(s.taps, w)
}
