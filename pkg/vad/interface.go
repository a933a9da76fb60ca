// Package vad turns a stream of PCM into speech segments.
//
// A DetectorInterface scores one fixed-size window at a time; the Segmenter
// applies hysteresis on top of those scores and cuts the stream into
// segments with a little pre-roll so the onset of speech is kept.
//
// Detectors:
//   - EnergyDetector: pure Go RMS scoring, always available
//   - Detector: Silero through onnxruntime (build tag vad)
//   - SpeechGate: Silero through silero-vad-go (build tag vad)
//   - MockDetector: scripted probabilities for tests
package vad

// DetectorInterface scores audio windows for speech.
type DetectorInterface interface {
	// Infer returns the speech probability in [0, 1] for one window of
	// samples normalised to [-1, 1].
	Infer(samples []float32) (float32, error)

	// Reset clears recurrent state before a new stream.
	Reset() error

	// Destroy releases native resources. The detector is unusable afterwards.
	Destroy() error
}
