package repository

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultJournalBuffer = 1024
	journalWriteTimeout  = 5 * time.Second
)

// MessageSaver persists journaled frames.
type MessageSaver interface {
	Save(ctx context.Context, msg OCPPMessage) error
}

// Journal writes OCPP frames in the background. Record never blocks: when the buffer is
// full the frame is dropped and a warning is logged.
type Journal struct {
	saver     MessageSaver
	logger    *zap.Logger
	queue     chan OCPPMessage
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	now       func() time.Time
}

// NewJournal starts the background writer.
func NewJournal(saver MessageSaver, buffer int, logger *zap.Logger) *Journal {
	if buffer <= 0 {
		buffer = defaultJournalBuffer
	}
	j := &Journal{
		saver:  saver,
		logger: logger,
		queue:  make(chan OCPPMessage, buffer),
		done:   make(chan struct{}),
		now:    func() time.Time { return time.Now().UTC() },
	}
	go j.run()
	return j
}

// Record enqueues a frame.
func (j *Journal) Record(stationID, direction, messageType, messageID string, payload []byte) {
	msg := OCPPMessage{
		StationID:   stationID,
		Direction:   direction,
		MessageType: messageType,
		MessageID:   messageID,
		Payload:     append([]byte(nil), payload...),
		RecordedAt:  j.now(),
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.queue <- msg:
	default:
		j.logger.Warn("journal buffer full, dropping frame",
			zap.String("station_id", stationID),
			zap.String("message_id", messageID),
		)
	}
}

// Close stops accepting frames and waits for queued ones to be written.
func (j *Journal) Close(ctx context.Context) error {
	j.closeOnce.Do(func() {
		j.mu.Lock()
		j.closed = true
		close(j.queue)
		j.mu.Unlock()
	})
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Journal) run() {
	defer close(j.done)
	for msg := range j.queue {
		ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
		if err := j.saver.Save(ctx, msg); err != nil {
			j.logger.Warn("journal write failed",
				zap.String("station_id", msg.StationID),
				zap.String("message_id", msg.MessageID),
				zap.Error(err),
			)
		}
		cancel()
	}
}
