package retry

import (
	"context"
)

// EventHandler observes retry decisions
type EventHandler interface {
	OnRetryAttempt(ctx context.Context, attempt int, err error)
	OnGiveUp(ctx context.Context, attempt int, err error)
	OnMaxAttemptsReached(ctx context.Context, attempt int, err error)
}

// Logger is the printf-style logger used by DefaultEventHandler; *zap.SugaredLogger satisfies it
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// DefaultEventHandler logs retry decisions
type DefaultEventHandler struct {
	logger Logger
}

// NewDefaultEventHandler creates a logging event handler
func NewDefaultEventHandler(logger Logger) *DefaultEventHandler {
	return &DefaultEventHandler{logger: logger}
}

// OnRetryAttempt handles a failure that will be retried
func (h *DefaultEventHandler) OnRetryAttempt(ctx context.Context, attempt int, err error) {
	if h.logger != nil {
		h.logger.Infof("attempt %d failed, retrying: %v", attempt, err)
	}
}

// OnGiveUp handles a failure that is not worth retrying
func (h *DefaultEventHandler) OnGiveUp(ctx context.Context, attempt int, err error) {
	if h.logger != nil {
		h.logger.Warnf("attempt %d failed with a permanent error: %v", attempt, err)
	}
}

// OnMaxAttemptsReached handles a failure on the last allowed attempt
func (h *DefaultEventHandler) OnMaxAttemptsReached(ctx context.Context, attempt int, err error) {
	if h.logger != nil {
		h.logger.Errorf("max retry attempts (%d) reached, final error: %v", attempt, err)
	}
}
