package session

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Notices pushed to the room view.
const (
	// NoticeStreamUnavailable tells a non-owner that the room has no live session.
	NoticeStreamUnavailable = "Stream not available. The host has not started broadcasting yet."
	// NoticeStopFailed follows a Stop whose provider delete failed.
	NoticeStopFailed = "Failed to stop streaming. Please try again."
)

// Notifier is the sink for human-readable status messages.
type Notifier interface {
	Notify(roomID uuid.UUID, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(roomID uuid.UUID, message string)

// Notify calls f.
func (f NotifierFunc) Notify(roomID uuid.UUID, message string) { f(roomID, message) }

// LogNotifier writes notices to a zap logger.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier that logs at info level.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the message with the room id.
func (n *LogNotifier) Notify(roomID uuid.UUID, message string) {
	n.logger.Info("room notice", zap.String("room_id", roomID.String()), zap.String("message", message))
}
