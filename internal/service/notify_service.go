package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Notification struct {
	RecipientID uuid.UUID
	Type        string
	Title       string
	Body        string
	Metadata    map[string]string
}

// NotificationSender delivers a single notification. Implementations may
// push to email, SMS or an in-app feed; delivery is best-effort.
type NotificationSender interface {
	Send(ctx context.Context, n *Notification) error
}

// LogSender is the default sender used when no delivery channel is
// configured; it only records the notification.
type LogSender struct {
	Log *zap.Logger
}

func (s *LogSender) Send(_ context.Context, n *Notification) error {
	s.Log.Info("notification",
		zap.String("recipient_id", n.RecipientID.String()),
		zap.String("type", n.Type),
		zap.String("title", n.Title),
	)
	return nil
}

// NotifyService fans notifications out asynchronously, same shape as the
// audit worker: buffered channel, drop on overflow, failures logged and
// never propagated to the triggering operation.
type NotifyService struct {
	sender NotificationSender
	log    *zap.Logger
	queue  chan *Notification
	done   chan struct{}
}

const notifyBufferSize = 5_000

func NewNotifyService(sender NotificationSender, log *zap.Logger) *NotifyService {
	svc := &NotifyService{
		sender: sender,
		log:    log,
		queue:  make(chan *Notification, notifyBufferSize),
		done:   make(chan struct{}),
	}
	go svc.worker()
	return svc
}

func (s *NotifyService) SendAsync(n *Notification) {
	select {
	case s.queue <- n:
	default:
		s.log.Warn("notification buffer full, dropping",
			zap.String("type", n.Type),
			zap.String("recipient_id", n.RecipientID.String()),
		)
	}
}

func (s *NotifyService) Shutdown() {
	close(s.queue)
	select {
	case <-s.done:
	case <-time.After(10 * time.Second):
		s.log.Warn("notify service shutdown timed out; some notifications may be lost")
	}
}

func (s *NotifyService) worker() {
	defer close(s.done)
	for n := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.sender.Send(ctx, n); err != nil {
			s.log.Error("failed to deliver notification",
				zap.String("type", n.Type),
				zap.Error(err),
			)
		}
		cancel()
	}
}
