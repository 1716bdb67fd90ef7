package protocol

// ClientCommand represents a command sent from the browser page to the
// gateway. It intentionally keeps wire-compatible field names with the
// current frontend.
type ClientCommand struct {
	Type        string    `json:"type"`
	Audio       []float64 `json:"audio,omitempty"`
	AudioPCM    string    `json:"audio_pcm,omitempty"`
	AudioRate   float64   `json:"audio_sample_rate,omitempty"`
	AudioCh     int       `json:"audio_channels,omitempty"`
	CaptureMode string    `json:"capture_mode,omitempty"`
	File        string    `json:"file,omitempty"`
	Message     string    `json:"message,omitempty"`
}
