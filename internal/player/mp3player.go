package player

import (
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/hajimehoshi/oto"

	logging "github.com/ipfs/go-log/v2"

	"github.com/musicroom/musicroom/internal/roomerr"
)

var logger = logging.Logger("player")

// go-mp3 decodes into 16-bit stereo PCM frames; these constants mirror the
// discordvoice example's mp3/source.go.
const (
	bytesPerSample = 4
	frameSize      = 4608
	deviceChannels = 2
	deviceBytes    = 2
	deviceBuffer   = 1 << 15
)

// device is the subset of oto.Player this package depends on, narrowed so
// tests can substitute a recorder instead of opening a real audio device.
type device interface {
	io.Writer
	Close() error
}

type newDeviceFunc func(sampleRate int) (device, error)

func openOtoDevice(sampleRate int) (device, error) {
	return oto.NewPlayer(sampleRate, deviceChannels, deviceBytes, deviceBuffer)
}

// MP3Player is the concrete Player backed by go-mp3 decoding and an oto
// output device. One pump goroutine per fed track reads decoded frames and
// writes them to the device, gated by a sync.Cond on play/pause state.
type MP3Player struct {
	newDevice newDeviceFunc

	mu      sync.Mutex
	cond    *sync.Cond
	file    *os.File
	decoder *gomp3.Decoder
	dev     device
	info    Info

	playing  bool
	closed   bool
	position atomic.Int64 // nanoseconds into the current track
	muted    atomic.Bool

	doneCh chan struct{}
}

// New creates a Player that writes to a real oto audio device.
func New() *MP3Player {
	return newWithDevice(openOtoDevice)
}

func newWithDevice(nd newDeviceFunc) *MP3Player {
	p := &MP3Player{newDevice: nd, doneCh: make(chan struct{})}
	p.cond = sync.NewCond(&p.mu)
	close(p.doneCh) // no track fed yet; WaitForEnd returns immediately
	return p
}

func (p *MP3Player) Feed(path string) (Info, error) {
	info, err := Probe(path)
	if err != nil {
		return Info{}, roomerr.Wrap(roomerr.KindFileUnreadable, "probe", err)
	}
	if info.Title == "" {
		info.Title = path
	}

	f, err := os.Open(path)
	if err != nil {
		return Info{}, roomerr.Wrap(roomerr.KindFileUnreadable, "open", err)
	}
	dec, err := gomp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return Info{}, roomerr.Wrap(roomerr.KindPlayerError, "decode", err)
	}
	dev, err := p.newDevice(dec.SampleRate())
	if err != nil {
		f.Close()
		return Info{}, roomerr.Wrap(roomerr.KindPlayerError, "open device", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		f.Close()
		dev.Close()
		return Info{}, roomerr.New(roomerr.KindCancelled, "feed")
	}
	p.stopLocked()

	p.file = f
	p.decoder = dec
	p.dev = dev
	p.info = info
	p.playing = false
	p.position.Store(0)
	p.doneCh = make(chan struct{})
	done := p.doneCh
	p.cond.Broadcast() // wake the superseded pump, if any, so it can exit
	p.mu.Unlock()

	go p.pump(dec, dev, done)
	return info, nil
}

func (p *MP3Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return roomerr.New(roomerr.KindCancelled, "play")
	}
	if p.decoder == nil {
		return roomerr.New(roomerr.KindPlayerError, "play: no track fed")
	}
	p.playing = true
	p.cond.Broadcast()
	return nil
}

func (p *MP3Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	return nil
}

func (p *MP3Player) Seek(pos time.Duration) error {
	p.mu.Lock()
	if p.closed || p.decoder == nil || p.info.Bitrate == 0 {
		p.mu.Unlock()
		return roomerr.New(roomerr.KindPlayerError, "seek: no track fed")
	}
	wasPlaying := p.playing
	path := p.info.Path
	info := p.info
	p.stopLocked()
	p.cond.Broadcast() // wake the superseded pump, if any, so it can exit
	p.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return roomerr.Wrap(roomerr.KindFileUnreadable, "seek reopen", err)
	}
	byteOffset := int64(pos.Seconds() * float64(info.Bitrate) / 8.0)
	if byteOffset > 0 {
		if _, err := f.Seek(byteOffset, io.SeekStart); err != nil {
			f.Close()
			return roomerr.Wrap(roomerr.KindPlayerError, "seek", err)
		}
	}
	dec, err := gomp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return roomerr.Wrap(roomerr.KindPlayerError, "seek decode", err)
	}
	dev, err := p.newDevice(dec.SampleRate())
	if err != nil {
		f.Close()
		return roomerr.Wrap(roomerr.KindPlayerError, "seek open device", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		f.Close()
		dev.Close()
		return roomerr.New(roomerr.KindCancelled, "seek")
	}
	p.file = f
	p.decoder = dec
	p.dev = dev
	p.position.Store(pos.Nanoseconds())
	p.doneCh = make(chan struct{})
	done := p.doneCh
	p.playing = wasPlaying
	p.cond.Broadcast()
	p.mu.Unlock()

	go p.pump(dec, dev, done)
	return nil
}

func (p *MP3Player) Mute()   { p.muted.Store(true) }
func (p *MP3Player) Unmute() { p.muted.Store(false) }

func (p *MP3Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

func (p *MP3Player) Position() time.Duration {
	return time.Duration(p.position.Load())
}

func (p *MP3Player) WaitForEnd() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doneCh
}

func (p *MP3Player) Close() error {
	p.mu.Lock()
	p.closed = true
	p.stopLocked()
	p.cond.Broadcast()
	p.mu.Unlock()
	return nil
}

// stopLocked tears down the current decoder/device/file. Caller holds p.mu.
func (p *MP3Player) stopLocked() {
	p.playing = false
	if p.dev != nil {
		if err := p.dev.Close(); err != nil {
			logger.Warnf("close device: %v", err)
		}
		p.dev = nil
	}
	if p.file != nil {
		if err := p.file.Close(); err != nil {
			logger.Warnf("close file: %v", err)
		}
		p.file = nil
	}
	p.decoder = nil
}

// pump reads decoded frames and writes them to dev for as long as this
// generation's decoder/device stay current (Feed/Seek/Close each start a
// fresh goroutine and let the stale one see it has been superseded and
// exit quietly).
func (p *MP3Player) pump(dec *gomp3.Decoder, dev device, done chan struct{}) {
	bytesPerSecond := bytesPerSample * dec.SampleRate()
	buf := make([]byte, frameSize)

	for {
		p.mu.Lock()
		for !p.playing && !p.closed && p.decoder == dec {
			p.cond.Wait()
		}
		stale := p.decoder != dec || p.closed
		p.mu.Unlock()
		if stale {
			return
		}

		n, err := dec.Read(buf)
		if n > 0 {
			frame := buf[:n]
			if p.muted.Load() {
				frame = make([]byte, n)
			}
			if _, werr := dev.Write(frame); werr != nil {
				close(done)
				return
			}
			secondsPerFrame := float64(n) / float64(bytesPerSecond)
			p.position.Add(int64(secondsPerFrame * float64(time.Second)))
		}
		if err == io.EOF {
			p.mu.Lock()
			p.playing = false
			p.mu.Unlock()
			close(done)
			return
		}
		if err != nil {
			logger.Warnf("decode: %v", err)
			close(done)
			return
		}
	}
}
