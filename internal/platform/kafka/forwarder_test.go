package kafka

import (
	"context"
	"errors"
	"testing"

	"bulwark/internal/platform/kafka/producer"
	"bulwark/pkg/platform/circuit"

	"github.com/stretchr/testify/suite"
)

// fakeProducer records produced messages and fails on demand.
type fakeProducer struct {
	messages []*producer.Message
	err      error
	calls    int
}

func (p *fakeProducer) Produce(_ context.Context, msg *producer.Message) error {
	p.calls++
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

// ForwarderSuite tests circuit breaker behavior around stream delivery.
//
// Justification: The open-circuit fast path and probe cadence are timing
// independent but unreachable through integration tests without a dead broker.
type ForwarderSuite struct {
	suite.Suite
	producer *fakeProducer
}

func TestForwarderSuite(t *testing.T) {
	suite.Run(t, new(ForwarderSuite))
}

func (s *ForwarderSuite) SetupTest() {
	s.producer = &fakeProducer{}
}

func (s *ForwarderSuite) TestForwardPublishesKeyedPayload() {
	fwd, err := NewForwarder(s.producer, "")
	s.Require().NoError(err)

	err = fwd.Forward(context.Background(), "identifier:alice@example.com", []byte(`{"event":"ACCOUNT_LOCKED"}`))
	s.Require().NoError(err)

	s.Require().Len(s.producer.messages, 1)
	msg := s.producer.messages[0]
	s.Equal(DefaultAuditTopic, msg.Topic, "empty topic should fall back to the audit stream")
	s.Equal("identifier:alice@example.com", string(msg.Key))
	s.JSONEq(`{"event":"ACCOUNT_LOCKED"}`, string(msg.Value))
}

func (s *ForwarderSuite) TestCircuitOpensAfterConsecutiveFailures() {
	s.producer.err = errors.New("broker down")
	fwd, err := NewForwarder(s.producer, "events",
		WithBreaker(circuit.New("test", circuit.WithFailureThreshold(3))),
	)
	s.Require().NoError(err)

	for i := 0; i < 3; i++ {
		s.Error(fwd.Forward(context.Background(), "k", []byte("v")))
	}
	s.Equal(3, s.producer.calls)

	// Circuit is open now; the next call must fail fast without producing.
	s.Error(fwd.Forward(context.Background(), "k", []byte("v")))
	s.Equal(3, s.producer.calls, "open circuit should not reach the producer")
}

func (s *ForwarderSuite) TestOpenCircuitProbesAndRecovers() {
	s.producer.err = errors.New("broker down")
	fwd, err := NewForwarder(s.producer, "events",
		WithBreaker(circuit.New("test",
			circuit.WithFailureThreshold(2),
			circuit.WithSuccessThreshold(1),
		)),
		WithProbeInterval(2),
	)
	s.Require().NoError(err)

	// Calls 1-2 fail and trip the circuit.
	s.Error(fwd.Forward(context.Background(), "k", []byte("v")))
	s.Error(fwd.Forward(context.Background(), "k", []byte("v")))
	s.Equal(2, s.producer.calls)

	// Broker comes back. Call 3 fast-fails, call 4 is a probe that succeeds
	// and closes the circuit.
	s.producer.err = nil
	s.Error(fwd.Forward(context.Background(), "k", []byte("v")))
	s.Equal(2, s.producer.calls)
	s.NoError(fwd.Forward(context.Background(), "k", []byte("v")))
	s.Equal(3, s.producer.calls)

	// Closed again: every call flows.
	s.NoError(fwd.Forward(context.Background(), "k", []byte("v")))
	s.Equal(4, s.producer.calls)
}

func (s *ForwarderSuite) TestNewForwarderRequiresProducer() {
	_, err := NewForwarder(nil, "events")
	s.Error(err)
}
