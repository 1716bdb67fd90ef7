package relay

// AudioParams describes the PCM stream sent upstream.
type AudioParams struct {
	Format        string
	SampleRate    int
	Channels      int
	FrameDuration int
}

// Config carries the connection settings for the speech backend link.
type Config struct {
	BackendURL      string
	ProtocolVersion int
	AudioParams     AudioParams
	CaptureMode     string
	DeviceID        string
	ClientID        string
	AccessToken     string
	FeaturePartials bool
}
