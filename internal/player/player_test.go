package player

import (
	"testing"
	"time"
)

type fakeDevice struct {
	writes [][]byte
	closed bool
}

func (d *fakeDevice) Write(p []byte) (int, error) {
	cp := make([]byte, len(p))
	copy(cp, p)
	d.writes = append(d.writes, cp)
	return len(p), nil
}

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

func TestNewPlayerStartsIdle(t *testing.T) {
	p := newWithDevice(func(int) (device, error) { return &fakeDevice{}, nil })
	defer p.Close()

	if p.IsPlaying() {
		t.Fatalf("expected fresh player to report not playing")
	}
	if p.Position() != 0 {
		t.Fatalf("expected zero position, got %v", p.Position())
	}
	select {
	case <-p.WaitForEnd():
	default:
		t.Fatalf("expected WaitForEnd to be already closed before any Feed")
	}
}

func TestPlayWithoutFeedErrors(t *testing.T) {
	p := newWithDevice(func(int) (device, error) { return &fakeDevice{}, nil })
	defer p.Close()

	if err := p.Play(); err == nil {
		t.Fatalf("expected error playing with no track fed")
	}
}

func TestMuteUnmuteDoNotTouchPlayState(t *testing.T) {
	p := newWithDevice(func(int) (device, error) { return &fakeDevice{}, nil })
	defer p.Close()

	p.Mute()
	if !p.muted.Load() {
		t.Fatalf("expected muted=true after Mute")
	}
	if p.IsPlaying() {
		t.Fatalf("Mute must not affect playing state")
	}
	p.Unmute()
	if p.muted.Load() {
		t.Fatalf("expected muted=false after Unmute")
	}
}

func TestPauseWithoutFeedIsNoop(t *testing.T) {
	p := newWithDevice(func(int) (device, error) { return &fakeDevice{}, nil })
	defer p.Close()

	if err := p.Pause(); err != nil {
		t.Fatalf("Pause with no track should be a no-op, got %v", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	p := newWithDevice(func(int) (device, error) { return &fakeDevice{}, nil })

	if err := p.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := p.Play(); err == nil {
		t.Fatalf("expected Play to fail on a closed player")
	}
}

func TestSeekWithoutFeedErrors(t *testing.T) {
	p := newWithDevice(func(int) (device, error) { return &fakeDevice{}, nil })
	defer p.Close()

	if err := p.Seek(5 * time.Second); err == nil {
		t.Fatalf("expected Seek to fail with no track fed")
	}
}
