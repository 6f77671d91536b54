// Package relay bridges SDU datagrams and RLE bursts over UDP.
//
// The outbound path reads SDU datagrams from a local socket (a 2-byte
// Ethertype prefix followed by the payload), encapsulates them, and packs
// one or more PPDUs into fixed-size bursts shipped to the peer. The
// inbound path splits received bursts into PPDUs, reassembles SDUs, and
// delivers them to a local sink socket in the same datagram format.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hnrck/librle/internal/rle"
)

// sduPrefixSize is the Ethertype prefix on SDU datagrams.
const sduPrefixSize = 2

// idlePollInterval bounds how long a read blocks before the loop rechecks
// for shutdown and pending flushes.
const idlePollInterval = 1 * time.Second

// ErrNoPeer indicates an SDU arrived while no peer address is configured.
var ErrNoPeer = errors.New("no peer address configured")

// Config holds the relay addressing and pacing.
type Config struct {
	// SDUListenAddr is the local UDP address accepting SDU datagrams.
	SDUListenAddr string

	// DeliverAddr is the local UDP address reassembled SDUs are sent to.
	DeliverAddr string

	// BurstListenAddr is the local UDP address receiving bursts.
	BurstListenAddr string

	// PeerAddr is the remote UDP address bursts are sent to. Empty
	// disables the outbound path.
	PeerAddr string

	// BurstSize is the burst window in bytes.
	BurstSize int

	// FlushInterval bounds how long a partially-filled burst waits for
	// further SDUs.
	FlushInterval time.Duration
}

// Relay couples one Transmitter and one Receiver to a pair of UDP
// sockets. The engines are single-threaded; each is owned by its loop
// goroutine and guarded for the stats scrapers.
type Relay struct {
	conf   Config
	logger *slog.Logger

	txMu sync.Mutex
	tx   *rle.Transmitter

	rxMu sync.Mutex
	rx   *rle.Receiver

	sduConn   *net.UDPConn
	burstConn *net.UDPConn

	deliverAddr *net.UDPAddr
	peerAddr    *net.UDPAddr
}

// New binds the relay sockets and builds the RLE engines. The returned
// relay does nothing until Run.
func New(conf Config, linkConf rle.Config, logger *slog.Logger) (*Relay, error) {
	tx, err := rle.NewTransmitter(linkConf)
	if err != nil {
		return nil, fmt.Errorf("new relay: %w", err)
	}
	rx, err := rle.NewReceiver(linkConf)
	if err != nil {
		return nil, fmt.Errorf("new relay: %w", err)
	}

	r := &Relay{
		conf:   conf,
		logger: logger.With(slog.String("component", "relay")),
		tx:     tx,
		rx:     rx,
	}

	if r.sduConn, err = listenUDP(conf.SDUListenAddr); err != nil {
		return nil, fmt.Errorf("bind SDU socket %s: %w", conf.SDUListenAddr, err)
	}
	if r.burstConn, err = listenUDP(conf.BurstListenAddr); err != nil {
		_ = r.sduConn.Close()
		return nil, fmt.Errorf("bind burst socket %s: %w", conf.BurstListenAddr, err)
	}

	if r.deliverAddr, err = net.ResolveUDPAddr("udp", conf.DeliverAddr); err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("resolve deliver address %s: %w", conf.DeliverAddr, err)
	}
	if conf.PeerAddr != "" {
		if r.peerAddr, err = net.ResolveUDPAddr("udp", conf.PeerAddr); err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("resolve peer address %s: %w", conf.PeerAddr, err)
		}
	}

	return r, nil
}

// listenUDP binds a UDP socket on addr.
func listenUDP(addr string) (*net.UDPConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	return net.ListenUDP("udp", udpAddr)
}

// SDUAddr returns the bound SDU socket address; useful with ":0" listens.
func (r *Relay) SDUAddr() *net.UDPAddr {
	return r.sduConn.LocalAddr().(*net.UDPAddr)
}

// BurstAddr returns the bound burst socket address.
func (r *Relay) BurstAddr() *net.UDPAddr {
	return r.burstConn.LocalAddr().(*net.UDPAddr)
}

// Close releases the relay sockets. Run returns once both loops observe
// the closed sockets.
func (r *Relay) Close() error {
	err := r.sduConn.Close()
	if cerr := r.burstConn.Close(); err == nil {
		err = cerr
	}
	return err
}

// Run drives the outbound and inbound loops until ctx is canceled or a
// socket fails.
func (r *Relay) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		return r.Close()
	})
	g.Go(func() error { return r.outboundLoop(ctx) })
	g.Go(func() error { return r.inboundLoop(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("relay: %w", err)
	}
	return nil
}

// -------------------------------------------------------------------------
// Outbound — SDUs to bursts
// -------------------------------------------------------------------------

// burstWriter accumulates PPDUs into one burst window.
type burstWriter struct {
	relay *Relay
	buf   []byte
	used  int
}

// flush ships the open burst to the peer and resets the window.
func (w *burstWriter) flush() {
	if w.used == 0 {
		return
	}
	if _, err := w.relay.burstConn.WriteToUDP(w.buf[:w.used], w.relay.peerAddr); err != nil {
		w.relay.logger.Warn("burst send failed", slog.String("error", err.Error()))
	}
	w.used = 0
}

// outboundLoop reads SDU datagrams, encapsulates them, and packs bursts.
// A burst is shipped once the next PPDU no longer fits in it, or once no
// SDU has arrived for FlushInterval while it holds PPDUs.
func (r *Relay) outboundLoop(ctx context.Context) error {
	w := &burstWriter{relay: r, buf: make([]byte, r.conf.BurstSize)}
	datagram := make([]byte, sduPrefixSize+rle.MaxPDUSize+1)

	for {
		wait := idlePollInterval
		if w.used > 0 {
			wait = r.conf.FlushInterval
		}
		if err := r.sduConn.SetReadDeadline(time.Now().Add(wait)); err != nil {
			return err
		}

		n, err := r.sduConn.Read(datagram)
		switch {
		case isTimeout(err):
			w.flush()
			if ctx.Err() != nil {
				return nil
			}
			continue
		case err != nil:
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read SDU socket: %w", err)
		}

		if n < sduPrefixSize {
			r.logger.Warn("short SDU datagram", slog.Int("bytes", n))
			continue
		}
		ptype := uint16(datagram[0])<<8 | uint16(datagram[1])
		sdu := datagram[sduPrefixSize:n]

		r.shipSDU(sdu, ptype, w)
	}
}

// shipSDU encapsulates one SDU and packs it into the open burst, flushing
// and continuing into fresh bursts as the window fills.
func (r *Relay) shipSDU(sdu []byte, ptype uint16, w *burstWriter) {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	if r.peerAddr == nil {
		r.logger.Warn("SDU discarded", slog.String("error", ErrNoPeer.Error()))
		return
	}

	fragID, ok := r.tx.FirstFree()
	if !ok {
		// Cannot happen: each SDU is fully drained below.
		r.logger.Error("no free fragmentation context")
		return
	}

	if err := r.tx.Encap(fragID, sdu, ptype); err != nil {
		r.logger.Warn("encapsulation failed",
			slog.Int("sdu_bytes", len(sdu)),
			slog.String("error", err.Error()),
		)
		return
	}

	for !r.tx.IsFree(fragID) {
		n, err := r.tx.Pack(fragID, w.buf[w.used:])
		if errors.Is(err, rle.ErrBurstTooSmall) {
			if w.used == 0 {
				// Even an empty burst window cannot hold the next PPDU.
				r.logger.Error("burst size cannot carry PPDU",
					slog.Int("burst_size", r.conf.BurstSize))
				_ = r.tx.Free(fragID)
				return
			}
			w.flush()
			continue
		}
		if err != nil {
			r.logger.Error("packing failed",
				slog.Uint64("frag_id", uint64(fragID)),
				slog.String("error", err.Error()),
			)
			_ = r.tx.Free(fragID)
			return
		}
		w.used += n
	}
}

// -------------------------------------------------------------------------
// Inbound — bursts to SDUs
// -------------------------------------------------------------------------

// inboundLoop reads bursts, walks their PPDUs, and delivers reassembled
// SDUs. De-encapsulation errors are counted by the engine and logged; the
// loop keeps going.
func (r *Relay) inboundLoop(ctx context.Context) error {
	buf := make([]byte, 65535)
	out := make([]byte, sduPrefixSize+rle.MaxPDUSize)

	for {
		if err := r.burstConn.SetReadDeadline(time.Now().Add(idlePollInterval)); err != nil {
			return err
		}

		n, err := r.burstConn.Read(buf)
		switch {
		case isTimeout(err):
			if ctx.Err() != nil {
				return nil
			}
			continue
		case err != nil:
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read burst socket: %w", err)
		}

		r.drainBurst(buf[:n], out)
	}
}

// drainBurst walks one burst and delivers every completed SDU.
func (r *Relay) drainBurst(burst, out []byte) {
	rest := burst
	for len(rest) > 0 {
		ppdu, next, err := rle.NextPPDU(rest)
		if err != nil {
			r.logger.Warn("burst tail undecodable",
				slog.Int("bytes", len(rest)),
				slog.String("error", err.Error()),
			)
			return
		}
		rest = next

		r.rxMu.Lock()
		d, err := r.rx.Deencap(ppdu)
		if err != nil {
			r.rxMu.Unlock()
			r.logger.Warn("de-encapsulation failed", slog.String("error", err.Error()))
			continue
		}
		if d == nil {
			r.rxMu.Unlock()
			continue
		}

		out[0] = byte(d.ProtoType >> 8)
		out[1] = byte(d.ProtoType)
		n := copy(out[sduPrefixSize:], d.SDU) + sduPrefixSize
		r.rxMu.Unlock()

		if _, err := r.sduConn.WriteToUDP(out[:n], r.deliverAddr); err != nil {
			r.logger.Warn("SDU delivery failed", slog.String("error", err.Error()))
		}
	}
}

// isTimeout reports whether err is a read-deadline expiry.
func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// -------------------------------------------------------------------------
// Stats Source
// -------------------------------------------------------------------------

// TxStats returns the transmit counters of one fragment ID.
func (r *Relay) TxStats(fragID uint8) rle.Stats {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	s, err := r.tx.Stats(fragID)
	if err != nil {
		return rle.Stats{}
	}
	return s
}

// RxStats returns the receive counters of one fragment ID.
func (r *Relay) RxStats(fragID uint8) rle.Stats {
	r.rxMu.Lock()
	defer r.rxMu.Unlock()
	s, err := r.rx.Stats(fragID)
	if err != nil {
		return rle.Stats{}
	}
	return s
}

// RxUnattributed returns receive drops not attributable to any fragment
// ID: the remainder of the receiver's global counters after subtracting
// the per-fragment ones.
func (r *Relay) RxUnattributed() rle.Stats {
	r.rxMu.Lock()
	defer r.rxMu.Unlock()

	global := r.rx.GlobalStats()
	for id := uint8(0); id < rle.MaxFragNumber; id++ {
		s, err := r.rx.Stats(id)
		if err != nil {
			continue
		}
		global.SDUsDropped -= s.SDUsDropped
		global.BytesDropped -= s.BytesDropped
	}
	return rle.Stats{SDUsDropped: global.SDUsDropped, BytesDropped: global.BytesDropped}
}
