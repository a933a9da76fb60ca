package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/realtime-ai/voice-client/pkg/talk"
	"github.com/realtime-ai/voice-client/pkg/trace"
)

// checkNewVersion polls the version endpoint until the device is activated.
// While an activation code is pending the conversation shows Activating
// with the activation message. Without a checker the check is skipped.
func (a *App) checkNewVersion(ctx context.Context) error {
	if a.ota == nil {
		return nil
	}

	notified := false
	for attempt := 1; attempt <= a.cfg.OTAMaxRetries; attempt++ {
		spanCtx, span := trace.InstrumentOTACheck(ctx, a.cfg.OTAURL, attempt)
		res, err := a.ota.CheckVersion(spanCtx)
		if err != nil {
			trace.RecordError(span, err)
		} else {
			span.SetAttributes(trace.OTAResultAttrs(res.FirmwareVersion, res.NeedsActivation())...)
		}
		span.End()

		switch {
		case err != nil:
			a.log.Warn("check version", zap.Int("attempt", attempt), zap.Error(err))
		case !res.NeedsActivation():
			a.log.Info("version checked", zap.String("firmware", res.FirmwareVersion))
			return nil
		default:
			a.talk.SetState(talk.StateActivating)
			a.talk.SetChat(res.ActivationMessage)
			if !notified {
				notified = true
				a.notify(MsgActivationCode)
			}
		}

		if attempt == a.cfg.OTAMaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.cfg.OTARetryInterval):
		}
	}
	return ErrActivationFailed
}
