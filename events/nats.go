package events

import (
	"time"

	"github.com/nats-io/nats.go"

	"github.com/taskmesh/coordkit/logging"
)

// SubjectPrefix is prepended to event kinds to form NATS subjects.
const SubjectPrefix = "coord."

// NATSConfig holds connection configuration for the NATS publisher.
type NATSConfig struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// Name is the client name for identification.
	Name string

	// Token for token-based auth.
	Token string

	// User and Password for basic auth.
	User     string
	Password string

	// ReconnectWait is the time to wait between reconnection attempts.
	ReconnectWait time.Duration

	// MaxReconnects is the maximum number of reconnection attempts.
	// -1 = unlimited.
	MaxReconnects int

	// ConnectTimeout for initial connection.
	ConnectTimeout time.Duration
}

// DefaultNATSConfig returns configuration with sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:            nats.DefaultURL,
		Name:           "coordkit",
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1,
		ConnectTimeout: 5 * time.Second,
	}
}

// NATSPublisher republishes coordination events onto NATS subjects so
// out-of-process consumers (the messaging layer) can receive them.
// Each event is published as JSON on "coord.<kind>" and, when the event
// carries an entity id, on "coord.<kind>.<entity>".
type NATSPublisher struct {
	conn *nats.Conn
	sub  Subscription
	log  *logging.Logger
}

// NewNATSPublisher connects to NATS and subscribes to the notifier.
// The logger may be nil.
func NewNATSPublisher(n *Notifier, cfg NATSConfig, log *logging.Logger) (*NATSPublisher, error) {
	if log == nil {
		log = logging.Discard()
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, err
	}

	p := &NATSPublisher{
		conn: conn,
		log:  log.WithComponent("events.nats"),
	}
	p.sub = n.SubscribeAll(p.publish)
	return p, nil
}

// publish serializes and publishes a single event. Failures are logged,
// never propagated; outbound delivery is best-effort.
func (p *NATSPublisher) publish(ev Event) {
	data, err := ev.Marshal()
	if err != nil {
		p.log.Error("marshal event", map[string]interface{}{
			"kind":  ev.Kind.String(),
			"error": err.Error(),
		})
		return
	}

	subject := SubjectPrefix + string(ev.Kind)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Error("publish event", map[string]interface{}{
			"subject": subject,
			"error":   err.Error(),
		})
	}

	if ev.Entity != "" {
		if err := p.conn.Publish(subject+"."+ev.Entity, data); err != nil {
			p.log.Error("publish event", map[string]interface{}{
				"subject": subject + "." + ev.Entity,
				"error":   err.Error(),
			})
		}
	}
}

// Close unsubscribes from the notifier and drains the connection.
func (p *NATSPublisher) Close() error {
	if p.sub != nil {
		p.sub.Unsubscribe()
	}
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn.Drain()
	}
	return nil
}
