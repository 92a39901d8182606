package server

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/Yureshka02/multimodal-student-engagement/internal/services/engagement/session"
)

type deadlineWriter interface {
	io.Writer
	SetWriteDeadline(time.Time) error
}

type wsPeer struct {
	id           session.ConnID
	writeTimeout time.Duration

	mu      sync.Mutex
	conn    deadlineWriter
	encoder *json.Encoder
}

func newWSPeer(id session.ConnID, conn deadlineWriter, writeTimeout time.Duration) *wsPeer {
	return &wsPeer{
		id:           id,
		writeTimeout: writeTimeout,
		conn:         conn,
		encoder:      json.NewEncoder(conn),
	}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeTimeout > 0 {
		if err := p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout)); err != nil {
			return err
		}
	}
	return p.encoder.Encode(frame)
}

// peerDirectory maps connection ids to live peers so telemetry can reach a
// tutor from another connection's goroutine.
type peerDirectory struct {
	peers sync.Map // session.ConnID -> *wsPeer
}

func (d *peerDirectory) add(peer *wsPeer) {
	d.peers.Store(peer.id, peer)
}

func (d *peerDirectory) remove(id session.ConnID) {
	d.peers.Delete(id)
}

func (d *peerDirectory) get(id session.ConnID) (*wsPeer, bool) {
	value, ok := d.peers.Load(id)
	if !ok {
		return nil, false
	}
	return value.(*wsPeer), true
}
