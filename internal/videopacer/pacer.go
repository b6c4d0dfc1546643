// Package videopacer maps irregularly-timestamped surface snapshots
// onto a fixed 25fps output grid, duplicating frames as needed and
// driving an external H.264 encoder. Ported from guacamole-server's
// video.c/video-private.h timeline math. The pacer runs no goroutine
// or ticker of its own: frames are emitted only from PrepareFrame,
// AdvanceTimeline and Close calls.
package videopacer

import (
	"sync"

	"github.com/skiffdesk/rvpgateway/internal/imaging"
	"github.com/skiffdesk/rvpgateway/internal/rvperr"
	"github.com/skiffdesk/rvpgateway/internal/rvplog"
)

// FrameRate is fixed per spec; DurationMS is the resulting frame
// duration in milliseconds.
const (
	FrameRate  = 25
	DurationMS = 1000 / FrameRate
)

// Encoder is the external video-encoding library contract the pacer
// drives. Encode submits one staged frame at the given presentation
// timestamp; Flush drains any buffered output, returning more=false
// once nothing remains.
type Encoder interface {
	Encode(frame []byte, pts int64) error
	Flush() (more bool, err error)
	Close() error
}

// Outbound is the narrow slice of the outbound display channel the
// pacer publishes sync/end-of-stream markers to; the wire format and
// transport are external collaborators.
type Outbound interface {
	Sync(timestampMS int64)
	EndOfStream()
}

// Pacer holds the video pacer's state: an encoder context, the
// monotonic next_pts counter, the last grid-snapped timestamp, and the
// most recently staged frame.
type Pacer struct {
	mu  sync.Mutex
	enc Encoder
	out Outbound

	outWidth, outHeight int

	nextPTS       int64
	lastTimestamp int64
	haveTimestamp bool
	staged        []byte
}

// New constructs a Pacer driving enc, publishing sync markers to out,
// scaling prepared frames to outWidth x outHeight. Until the first
// PrepareFrame, the staged frame is a zero-filled YUV420 frame of that
// size, so AdvanceTimeline always has a frame to emit.
func New(enc Encoder, out Outbound, outWidth, outHeight int) *Pacer {
	p := &Pacer{enc: enc, out: out, outWidth: outWidth, outHeight: outHeight}
	if outWidth > 0 && outHeight > 0 {
		cw, ch := (outWidth+1)/2, (outHeight+1)/2
		p.staged = make([]byte, outWidth*outHeight+2*cw*ch)
	}
	return p
}

// AdvanceTimeline implements advance_timeline: on the first call it
// records the baseline timestamp; on later calls it computes how many
// 40ms frame slots have elapsed since the last advance and emits that
// many copies of the staged frame, snapping last_timestamp to the
// frame grid rather than the raw input timestamp.
func (p *Pacer) AdvanceTimeline(tsMS int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.haveTimestamp {
		p.lastTimestamp = tsMS
		p.haveTimestamp = true
		return
	}

	elapsed := (tsMS - p.lastTimestamp) * FrameRate / 1000
	if elapsed < 0 {
		rvplog.L().Warn("videopacer: timestamp regressed, clamping", "ts_ms", tsMS, "last_timestamp", p.lastTimestamp)
		elapsed = 0
	}
	if elapsed == 0 {
		return
	}

	for i := int64(0); i < elapsed; i++ {
		p.emitStaged()
	}
	p.lastTimestamp += elapsed * 1000 / FrameRate
}

// PrepareFrame implements prepare_frame: converts a 32-bit RGB source
// into the encoder's configured YUV420 output via bicubic scaling,
// stages it, emits it immediately, and publishes a sync marker.
func (p *Pacer) PrepareFrame(surface imaging.Image, timestampMS int64) {
	yuv, err := scaleToYUV420(surface, p.outWidth, p.outHeight)
	if err != nil {
		rvplog.L().Warn("videopacer: frame conversion failed, dropping frame", "err", err)
		return
	}

	p.mu.Lock()
	p.staged = yuv
	p.emitStaged()
	p.mu.Unlock()

	p.out.Sync(timestampMS)
}

// emitStaged encodes the current staged frame at nextPTS and advances
// nextPTS, regardless of whether the encode succeeded: an encode
// failure is a Transient per-frame failure and must not stall pacing.
// Caller holds p.mu.
func (p *Pacer) emitStaged() {
	if p.staged == nil {
		p.nextPTS++
		return
	}
	if err := p.enc.Encode(p.staged, p.nextPTS); err != nil {
		rvplog.L().Warn("videopacer: encode failed, dropping frame", "pts", p.nextPTS, "err", err)
	}
	p.nextPTS++
}

// Close emits the staged frame once more, then repeatedly flushes the
// encoder until it reports no more data, finally publishing the
// end-of-stream marker. A flush error is reported to the caller as
// fatal to the video stream, not the session.
func (p *Pacer) Close() error {
	p.mu.Lock()
	p.emitStaged()
	p.mu.Unlock()

	for {
		more, err := p.enc.Flush()
		if err != nil {
			p.out.EndOfStream()
			return rvperr.New(rvperr.Transient, "videopacer.flush", err)
		}
		if !more {
			break
		}
	}
	p.out.EndOfStream()
	return p.enc.Close()
}

// NextPTS returns the current presentation-timestamp counter, mainly
// for tests asserting on S5's emitted-frame count.
func (p *Pacer) NextPTS() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextPTS
}

// LastTimestamp returns the grid-snapped timestamp of the most recent
// AdvanceTimeline call.
func (p *Pacer) LastTimestamp() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTimestamp
}
