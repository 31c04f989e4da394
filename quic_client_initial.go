package clienthellod

import (
	"context"
	"crypto/sha1" // skipcq: GSC-G505
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// skipcq: GSC-G505

type ClientInitial struct {
	Header *QUICHeader `json:"header,omitempty"` // QUIC header
	Frames []uint64    `json:"frames,omitempty"` // frames ID in order
	frames QUICFrames  // frames in order
	raw    []byte
}

// UnmarshalQUICClientInitialPacket decodes a single Initial packet's header
// and frames. It does not by itself reassemble or parse a ClientHello: a
// ClientHello's CRYPTO data commonly spans more than one Initial packet, so
// that reassembly is GatheredClientInitials' job (AddPacket/lockedGatherComplete
// below), fed one ClientInitial at a time from this function.
func UnmarshalQUICClientInitialPacket(p []byte) (ci *ClientInitial, err error) {
	ci = &ClientInitial{
		raw: p,
	}

	ci.Header, err = DecodeQUICHeaderAndFrames(p)
	if err != nil {
		return nil, err
	}

	ci.frames = ci.Header.frames
	ci.Frames = ci.frames.FrameTypes()

	return ci, nil
}

// GatheredClientInitials represents a series of Initial Packets sent by the Client to initiate
// the QUIC handshake.
type GatheredClientInitials struct {
	Packets   []*ClientInitial `json:"packets,omitempty"` // sorted by Header.InitialPacketNumber
	pktsMutex *sync.Mutex

	clientHelloReconstructor *QUICClientHelloReconstructor
	ClientHello              *QUICClientHello `json:"client_hello,omitempty"`         // TLS ClientHello
	TransportParameters      *TransportParams `json:"transport_parameters,omitempty"` // QUIC Transport Parameters extracted from the extension in ClientHello

	HexID string `json:"hex_id,omitempty"`
	NumID uint64 `json:"num_id,omitempty"`

	expiringCtx       context.Context
	cancelExpiringCtx context.CancelFunc
	completed         atomic.Bool
}

// GatherClientInitials returns an empty, never-expiring GatheredClientInitials
// that collects the Client Initial Packets handed to AddPacket. quicVersion
// is the QUIC version carried by the first Initial packet, threaded through
// to the eventual ParseQUICClientHello call once reassembly completes.
func GatherClientInitials(quicVersion uint32) *GatheredClientInitials {
	return &GatheredClientInitials{
		Packets:                  make([]*ClientInitial, 0, 4), // expecting 4 packets at max
		pktsMutex:                &sync.Mutex{},
		clientHelloReconstructor: NewQUICClientHelloReconstructor(quicVersion),
		expiringCtx:              context.Background(), // by default, never expire
		cancelExpiringCtx:        func() {},
	}
}

func GatherClientInitialsUntil(quicVersion uint32, expiry time.Time) *GatheredClientInitials {
	gci := GatherClientInitials(quicVersion)
	gci.expiringCtx, gci.cancelExpiringCtx = context.WithDeadline(context.Background(), expiry)
	return gci
}

func (gci *GatheredClientInitials) AddPacket(cip *ClientInitial) error {
	gci.pktsMutex.Lock()
	defer gci.pktsMutex.Unlock()

	if gci.Expired() { // not allowing new packets after expiry
		return errors.New("ClientInitials gathering has expired")
	}

	if gci.ClientHello != nil { // parse complete, new packet likely to be an ACK-only frame, ignore
		return nil
	}

	// check if duplicate packet number was received, if so, discard
	for _, p := range gci.Packets {
		if p.Header.InitialPacketNumber == cip.Header.InitialPacketNumber {
			return nil
		}
	}

	gci.Packets = append(gci.Packets, cip)

	// sort by initialPacketNumber
	sort.Slice(gci.Packets, func(i, j int) bool {
		return gci.Packets[i].Header.InitialPacketNumber < gci.Packets[j].Header.InitialPacketNumber
	})

	if err := gci.clientHelloReconstructor.FromFrames(cip.frames); err != nil {
		if errors.Is(err, ErrNeedMoreFrames) {
			return nil // abort early, need more frames before ClientHello can be reconstructed
		} else {
			return fmt.Errorf("failed to reassemble ClientHello: %w", err)
		}
	}

	return gci.lockedGatherComplete()
}

func (gci *GatheredClientInitials) Expired() bool {
	return gci.expiringCtx.Err() != nil
}

func (gci *GatheredClientInitials) lockedGatherComplete() error {
	var err error
	// First, reconstruct the ClientHello
	gci.ClientHello, err = gci.clientHelloReconstructor.Reconstruct()
	if err != nil {
		return fmt.Errorf("failed to reconstruct ClientHello: %w", err)
	}

	// Next, point the TransportParameters to the ClientHello's decoded copy
	gci.TransportParameters = &gci.ClientHello.TransportParams

	// Then calculate the NumericID
	numericID := gci.calcNumericID()
	atomic.StoreUint64(&gci.NumID, numericID)
	gci.HexID = hexUint64(numericID)

	// cancel the expiry context if any
	gci.cancelExpiringCtx()

	// Finally, mark the completion
	gci.completed.Store(true)

	b, err := json.Marshal(gci)
	if err != nil {
		return err
	}
	log.Printf("GatheredClientInitials: %s", string(b))

	return nil
}

// calcNumericID combines the ClientHello's normalized fingerprint with the
// canonical encoding of its Transport Parameters into a single SHA1-derived
// numeric ID identifying this QUIC connection's handshake shape.
func (gci *GatheredClientInitials) calcNumericID() uint64 {
	h := sha1.New() // skipcq: GO-S1025, GSC-G401
	updateU64(h, uint64(gci.ClientHello.FingerprintNID(true)))
	updateArr(h, EncodeTransportParameters(false, &gci.ClientHello.TransportParams, nil, 0))
	return binary.BigEndian.Uint64(h.Sum(nil)[:8])
}

// Wait blocks until the GatheredClientInitials is complete or expired.
func (gci *GatheredClientInitials) Wait() error {
	if gci.completed.Load() {
		return nil
	}

	for {
		if gci.completed.Load() {
			return nil
		}

		select {
		case <-gci.expiringCtx.Done():
			return gci.expiringCtx.Err()
		default:
			time.Sleep(1 * time.Millisecond) // TODO: 1ms is far longer than the processing time but far shorter than the RTT, thus a reasonable sleep duration
		}
	}
}

func (gci *GatheredClientInitials) Completed() bool {
	return gci.completed.Load()
}
