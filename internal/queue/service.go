// Package queue publishes job status events to RabbitMQ.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mahirjain10/photomosaic-bot/internal/types"
	"github.com/mahirjain10/photomosaic-bot/internal/utils"
	amqp "github.com/rabbitmq/amqp091-go"
)

const statusRoutingKey = "status"

// StatusPublisher sends a job status event somewhere.
type StatusPublisher interface {
	PublishToChannel(ctx context.Context, message any) error
	Close() error
}

// Nop drops every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) PublishToChannel(context.Context, any) error { return nil }
func (Nop) Close() error                                { return nil }

// RabbitMqService publishes to a direct exchange, reopening the connection when the
// broker dropped it.
type RabbitMqService struct {
	url      string
	exchange string
	logger   *slog.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewRabbitMqService connects to url and declares exchange.
func NewRabbitMqService(url string, exchange string, logger *slog.Logger) (*RabbitMqService, error) {
	s := &RabbitMqService{url: url, exchange: exchange, logger: logger}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.connectLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *RabbitMqService) connectLocked() error {
	if s.conn == nil || s.conn.IsClosed() {
		conn, err := NewRabbitMQClient(s.url)
		if err != nil {
			return err
		}
		s.conn = conn
	}
	ch, err := NewChannel(s.conn)
	if err != nil {
		return err
	}
	if err := declareExchange(ch, s.exchange); err != nil {
		ch.Close()
		return err
	}
	s.channel = ch
	s.logger.Info("status exchange ready", "exchange", s.exchange)
	return nil
}

func (s *RabbitMqService) PublishToChannel(ctx context.Context, message any) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	serializedMessage, err := utils.SerializeJSON(message)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel == nil || s.channel.IsClosed() {
		if err := s.connectLocked(); err != nil {
			return fmt.Errorf("failed to reopen status channel: %w", err)
		}
	}

	err = s.channel.PublishWithContext(ctx,
		s.exchange,
		statusRoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        serializedMessage,
		})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (s *RabbitMqService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel != nil {
		if err := s.channel.Close(); err != nil {
			s.logger.Warn("error closing channel", "error", err)
		}
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// PublishStatus sends one status event. Failures are logged and never affect the job.
func PublishStatus(ctx context.Context, publisher StatusPublisher, logger *slog.Logger, req types.InteractionRequest, status string, publicURL string, errorMsg string) {
	statusData := utils.InitStatusData(req.JobID, req.Invoker.ID, string(req.Variant), status, publicURL, errorMsg)
	statusMessage := utils.InitStatusMessage(statusData)
	if err := publisher.PublishToChannel(ctx, statusMessage); err != nil {
		logger.Warn("failed to publish status", "job_id", req.JobID, "status", status, "error", err)
		return
	}
	logger.Debug("published status", "job_id", req.JobID, "status", status)
}
