package device

import (
	"context"
	"errors"
	"io"

	"github.com/charmbracelet/log"

	"github.com/sweeney/dust-relay/internal/console"
	"github.com/sweeney/dust-relay/internal/nvparam"
)

// receive forwards serial bytes to the foreground. Every byte stops
// acquisition until the foreground has dealt with it.
func (d *Device) receive(ctx context.Context) {
	buf := make([]byte, rxQueueSize)
	for {
		n, err := d.opts.Serial.Read(buf)
		for _, b := range buf[:n] {
			d.engine.Shutdown()
			select {
			case d.rx <- b:
			case <-ctx.Done():
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn("Serial read failed", "err", err)
			}
			return
		}
	}
}

// excursion serves a received byte. A CR or LF opens the console; any other
// byte is dropped. Either way the window in progress is discarded and
// acquisition restarts.
func (d *Device) excursion(ctx context.Context, b byte) {
	d.watchdog.Stop()

	if console.IsEntry(b) {
		log.Info("Console opened")
		c := console.New(rxReader{ctx: ctx, rx: d.rx}, d.opts.Serial, d.store, d.opts.Version)
		if err := c.Prompt(); err != nil && ctx.Err() == nil {
			log.Warn("Console closed", "err", err)
		} else {
			log.Info("Console closed")
		}
		d.drain()
		d.apply()
	}

	d.estimator.Reset()
	d.ticks = 0
	d.engine.Init()
	d.watchdog.Start()
}

// drain drops bytes queued behind the exit line, such as the LF of a CRLF.
func (d *Device) drain() {
	for {
		select {
		case <-d.rx:
		default:
			return
		}
	}
}

// apply reloads the parameters the console may have changed.
func (d *Device) apply() {
	if err := d.loadParams(); err != nil {
		log.Error("Parameters not applied", "err", err)
		return
	}
	d.machine.SetSettings(d.settings())
	d.tracker.SetConfig(d.statusConfig())
	log.Info("Parameters applied",
		"threshold", d.machine.Settings().High,
		"off_delay", d.machine.Settings().OffDelay,
		"center_frequency", d.store.Int(nvparam.CenterFrequency),
		"ratio", d.ratio)
}

// rxReader presents the receive queue as an io.ByteReader. It fails once
// ctx is done.
type rxReader struct {
	ctx context.Context
	rx  <-chan byte
}

func (r rxReader) ReadByte() (byte, error) {
	select {
	case b := <-r.rx:
		return b, nil
	case <-r.ctx.Done():
		return 0, r.ctx.Err()
	}
}
