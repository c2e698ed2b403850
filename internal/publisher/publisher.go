// Package publisher streams snapshots over a ZeroMQ PUB socket. Every field
// of a snapshot is sent as its own "name:value" message so subscribers can
// filter on the field name prefix.
package publisher

import (
	"context"
	"fmt"

	"github.com/go-zeromq/zmq4"
	"go.uber.org/zap"

	"github.com/Guliveer/sysmon/internal/models"
)

// DefaultEndpoint is the address the publisher binds when none is configured.
const DefaultEndpoint = "tcp://127.0.0.1:5560"

// socket is the subset of zmq4.Socket the publisher uses.
type socket interface {
	Send(msg zmq4.Msg) error
	Close() error
}

// Publisher sends snapshot fields on a bound PUB socket.
type Publisher struct {
	sock     socket
	endpoint string
	logger   *zap.Logger

	sent    uint64
	dropped uint64
}

// New binds a PUB socket at endpoint.
func New(ctx context.Context, endpoint string, logger *zap.Logger) (*Publisher, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sock := zmq4.NewPub(ctx)
	if err := sock.Listen(endpoint); err != nil {
		sock.Close()
		return nil, fmt.Errorf("bind %s: %w", endpoint, err)
	}
	return newWithSocket(sock, endpoint, logger), nil
}

func newWithSocket(sock socket, endpoint string, logger *zap.Logger) *Publisher {
	return &Publisher{sock: sock, endpoint: endpoint, logger: logger}
}

// Endpoint returns the bound address.
func (p *Publisher) Endpoint() string { return p.endpoint }

// Message formats one field the way it goes on the wire.
func Message(f models.Field) string {
	return f.Name + ":" + models.FormatValue(f.Value)
}

// Publish sends every field of snap. Send failures are logged and the
// field is dropped; publishing never fails the sampling loop.
func (p *Publisher) Publish(snap *models.Snapshot) {
	failed := 0
	var lastErr error
	for _, f := range snap.Fields() {
		if err := p.sock.Send(zmq4.NewMsgString(Message(f))); err != nil {
			failed++
			lastErr = err
			continue
		}
		p.sent++
	}
	if failed > 0 {
		p.dropped += uint64(failed)
		p.logger.Warn("Failed to publish fields",
			zap.Int("dropped", failed),
			zap.Error(lastErr))
	}
}

// Stats returns the number of messages sent and dropped so far.
func (p *Publisher) Stats() (sent, dropped uint64) { return p.sent, p.dropped }

// Close closes the socket.
func (p *Publisher) Close() error {
	return p.sock.Close()
}
