package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is the NATS subject prefix for usage events.
// The full subject is <prefix>.<provider>.
const DefaultSubjectPrefix = "dialogd.usage"

// NATSSink publishes usage records as JSON to NATS, for downstream
// billing and analytics consumers.
type NATSSink struct {
	nc            *nats.Conn
	subjectPrefix string
}

// NewNATSSink wraps an existing connection. The caller owns nc.
func NewNATSSink(nc *nats.Conn, subjectPrefix string) (*NATSSink, error) {
	if nc == nil {
		return nil, errors.New("usage: nats connection is required")
	}
	if subjectPrefix == "" {
		subjectPrefix = DefaultSubjectPrefix
	}
	return &NATSSink{nc: nc, subjectPrefix: subjectPrefix}, nil
}

// Append publishes the record.
func (s *NATSSink) Append(_ context.Context, r Record) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode usage record: %w", err)
	}
	provider := r.Provider
	if provider == "" {
		provider = "unknown"
	}
	subject := s.subjectPrefix + "." + provider
	if err := s.nc.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish usage record: %w", err)
	}
	return nil
}

// Connect dials NATS with the reconnect settings used across dialogd.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(nats.DefaultReconnectWait),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return nc, nil
}
