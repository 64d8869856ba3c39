package temporal

import "go.uber.org/zap"

// ZapAdapter bridges a zap logger into the Temporal SDK's log.Logger.
// It is sugared because the SDK hands over loose keyvals.
type ZapAdapter struct{ *zap.SugaredLogger }

// NewZapAdapter wraps logger for use as the SDK client logger.
func NewZapAdapter(logger *zap.Logger) *ZapAdapter {
	return &ZapAdapter{logger.Sugar()}
}

func (z *ZapAdapter) Debug(msg string, keyvals ...interface{}) { z.Debugw(msg, keyvals...) }
func (z *ZapAdapter) Info(msg string, keyvals ...interface{})  { z.Infow(msg, keyvals...) }
func (z *ZapAdapter) Warn(msg string, keyvals ...interface{})  { z.Warnw(msg, keyvals...) }
func (z *ZapAdapter) Error(msg string, keyvals ...interface{}) { z.Errorw(msg, keyvals...) }
