package app

import (
	"errors"
	"sync"
	"time"

	"github.com/caddyserver/caddy/v2"
	"github.com/packetloop/quichs"
	"go.uber.org/zap"
)

const (
	CaddyAppID = "clienthellod"

	DEFAULT_RESERVOIR_ENTRY_VALID_FOR   = 10 * time.Second
	DEFAULT_RESERVOIR_CLEANING_INTERVAL = 10 * time.Second
)

func init() {
	caddy.RegisterModule(Reservoir{})
}

// Reservoir implements caddy.App.
// It is used to store the ClientHello extracted from the incoming TLS
// by ListenerWrapper for later use by the Handler when ServeHTTP is called.
type Reservoir struct {
	ValidFor caddy.Duration `json:"valid_for,omitempty"`

	// CleanInterval is the interval at which the reservoir is cleaned
	// of expired entries.
	//
	// Deprecated: this field is no longer used. Each entry is cleaned on
	// its own schedule, based on its expiry time. Setting ValidFor is
	// sufficient.
	CleanInterval caddy.Duration `json:"clean_interval,omitempty"`

	tlsFingerprinter        *clienthellod.TLSFingerprinter
	quicFingerprinter       *clienthellod.QUICFingerprinter
	mapLastQUICVisitorPerIP *sync.Map // sometimes even when a complete QUIC handshake is done, client decide to connect using HTTP/2

	mapClientHello *sync.Map // remote addr -> *clienthellod.ClientHello, deposited by the TCP listener wrapper
	mapQUICCIP     *sync.Map // remote addr -> *clienthellod.ClientInitialPacket, deposited by the UDP listener wrapper

	logger *zap.Logger
}

// CaddyModule implements CaddyModule() of caddy.Module.
// It returns the Caddy module information.
func (Reservoir) CaddyModule() caddy.ModuleInfo { // skipcq: GO-W1029
	return caddy.ModuleInfo{
		ID: CaddyAppID,
		New: func() caddy.Module {
			reservoir := &Reservoir{
				ValidFor: caddy.Duration(DEFAULT_RESERVOIR_ENTRY_VALID_FOR),
				// CleanInterval: caddy.Duration(DEFAULT_RESERVOIR_CLEANING_INTERVAL),
			}

			return reservoir
		},
	}
}

// TLSFingerprinter returns the TLSFingerprinter instance.
func (r *Reservoir) TLSFingerprinter() *clienthellod.TLSFingerprinter { // skipcq: GO-W1029
	return r.tlsFingerprinter
}

// QUICFingerprinter returns the QUICFingerprinter instance.
func (r *Reservoir) QUICFingerprinter() *clienthellod.QUICFingerprinter { // skipcq: GO-W1029
	return r.quicFingerprinter
}

// NewQUICVisitor updates the map entry for the given IP address.
func (r *Reservoir) NewQUICVisitor(ip, fullKey string) { // skipcq: GO-W1029
	r.mapLastQUICVisitorPerIP.Store(ip, fullKey)

	// delete it after validfor if not updated
	time.AfterFunc(time.Duration(r.ValidFor), func() {
		r.mapLastQUICVisitorPerIP.CompareAndDelete(ip, fullKey)
	})
}

// GetLastQUICVisitor returns the last QUIC visitor for the given IP address.
func (r *Reservoir) GetLastQUICVisitor(ip string) (string, bool) { // skipcq: GO-W1029
	if v, ok := r.mapLastQUICVisitorPerIP.Load(ip); ok {
		if fullKey, ok := v.(string); ok {
			return fullKey, true
		}
	}
	return "", false
}

// DepositClientHello stores a TLS ClientHello read by the TCP listener
// wrapper, for later withdrawal by the Handler once the request it belongs
// to reaches ServeHTTP. Entries expire after ValidFor if never withdrawn.
func (r *Reservoir) DepositClientHello(addr string, ch *clienthellod.ClientHello) { // skipcq: GO-W1029
	r.mapClientHello.Store(addr, ch)
	time.AfterFunc(time.Duration(r.ValidFor), func() {
		r.mapClientHello.CompareAndDelete(addr, ch)
	})
}

// WithdrawClientHello removes and returns the ClientHello deposited for
// addr, or nil if none is on deposit (expired, never deposited, or not a
// TLS connection).
func (r *Reservoir) WithdrawClientHello(addr string) *clienthellod.ClientHello { // skipcq: GO-W1029
	v, ok := r.mapClientHello.LoadAndDelete(addr)
	if !ok {
		return nil
	}
	ch, ok := v.(*clienthellod.ClientHello)
	if !ok {
		return nil
	}
	return ch
}

// DepositQUICCIP stores a single-packet QUIC ClientInitialPacket parse read
// by the UDP listener wrapper, for later withdrawal by the Handler.
func (r *Reservoir) DepositQUICCIP(addr string, cip *clienthellod.ClientInitialPacket) { // skipcq: GO-W1029
	r.mapQUICCIP.Store(addr, cip)
	time.AfterFunc(time.Duration(r.ValidFor), func() {
		r.mapQUICCIP.CompareAndDelete(addr, cip)
	})
}

// WithdrawQUICCIP removes and returns the ClientInitialPacket deposited for
// addr, or nil if none is on deposit.
func (r *Reservoir) WithdrawQUICCIP(addr string) *clienthellod.ClientInitialPacket { // skipcq: GO-W1029
	v, ok := r.mapQUICCIP.LoadAndDelete(addr)
	if !ok {
		return nil
	}
	cip, ok := v.(*clienthellod.ClientInitialPacket)
	if !ok {
		return nil
	}
	return cip
}

// Start implements Start() of caddy.App.
func (r *Reservoir) Start() error { // skipcq: GO-W1029
	if r.ValidFor <= 0 {
		return errors.New("validfor must be a positive duration")
	}

	// if r.CleanInterval <= 0 {
	// 	return errors.New("clean_interval must be a positive duration")
	// }

	r.logger.Info("clienthellod reservoir is started")

	return nil
}

// Stop implements Stop() of caddy.App.
func (r *Reservoir) Stop() error { // skipcq: GO-W1029
	r.quicFingerprinter.Close()
	r.tlsFingerprinter.Close()
	return nil
}

// Provision implements Provision() of caddy.Provisioner.
func (r *Reservoir) Provision(ctx caddy.Context) error { // skipcq: GO-W1029
	r.logger = ctx.Logger(r)
	r.tlsFingerprinter = clienthellod.NewTLSFingerprinterWithTimeout(time.Duration(r.ValidFor))
	r.quicFingerprinter = clienthellod.NewQUICFingerprinterWithTimeout(time.Duration(r.ValidFor))
	r.mapLastQUICVisitorPerIP = new(sync.Map)
	r.mapClientHello = new(sync.Map)
	r.mapQUICCIP = new(sync.Map)

	r.logger.Info("clienthellod reservoir is provisioned")
	return nil
}

var (
	_ caddy.App         = (*Reservoir)(nil)
	_ caddy.Provisioner = (*Reservoir)(nil)
)
