package trace

import (
	"go.opentelemetry.io/otel/attribute"
)

const (
	AttrDeviceID  = "device.id"
	AttrSessionID = "session.id"

	AttrListeningMode = "talk.listening_mode"
	AttrAbortReason   = "talk.abort_reason"
	AttrBreakMode     = "talk.break_mode"
	AttrDanceName     = "dance.name"

	// upstream audio of a turn
	AttrAudioSampleRate = "audio.sample_rate"
	AttrAudioChannels   = "audio.channels"
	AttrAudioFrameMs    = "audio.frame_ms"

	AttrProtocolURL = "protocol.url"

	AttrOTAURL        = "ota.url"
	AttrOTAAttempt    = "ota.attempt"
	AttrOTAVersion    = "ota.firmware_version"
	AttrOTAActivation = "ota.activation_pending"

	AttrErrorKind    = "error.kind"
	AttrErrorMessage = "error.message"
)

func SessionAttrs(sessionID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSessionID, sessionID),
	}
}

// AudioAttrs describes the encoded stream sent during a turn.
func AudioAttrs(sampleRate, channels, frameMs int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrAudioSampleRate, sampleRate),
		attribute.Int(AttrAudioChannels, channels),
		attribute.Int(AttrAudioFrameMs, frameMs),
	}
}

// OTAResultAttrs records what a successful version check returned.
func OTAResultAttrs(firmwareVersion string, activationPending bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrOTAVersion, firmwareVersion),
		attribute.Bool(AttrOTAActivation, activationPending),
	}
}

func ErrorAttrs(kind, msg string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrErrorKind, kind),
		attribute.String(AttrErrorMessage, msg),
	}
}
