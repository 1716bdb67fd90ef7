package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	relaycodec "github.com/micrelay/micrelay/internal/transport/relay/codec"
)

// Callbacks carries the hooks a session registers on the backend link. All
// callbacks run on the client's read goroutine.
type Callbacks struct {
	OnConnected    func()
	OnDisconnected func(err error)
	OnTranscript   func(text string, final bool)
	OnStatus       func(state string, text string)
	OnGoodbye      func()
	OnError        func(err error)
}

// Client maintains one websocket link to the speech backend: it dials with
// identification headers, performs the hello handshake, reconnects with
// doubling backoff, and frames outgoing PCM per the negotiated protocol
// version.
type Client struct {
	cfg       Config
	logger    *zap.Logger
	callbacks Callbacks

	mu sync.Mutex

	conn      *websocket.Conn
	closed    bool
	capture   string
	sessionID string

	protocolVersion int
	helloReady      bool
	negotiated      AudioParams

	writeMu sync.Mutex
	packBuf []byte
}

// NewClient prepares a backend client. Connect starts the link.
func NewClient(cfg Config, callbacks Callbacks, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg.ProtocolVersion = relaycodec.NormalizeVersion(cfg.ProtocolVersion)
	cfg.AudioParams = normalizeAudioParams(cfg.AudioParams)
	cfg.CaptureMode = normalizeCaptureMode(cfg.CaptureMode)

	return &Client{
		cfg:             cfg,
		logger:          logger,
		callbacks:       callbacks,
		capture:         cfg.CaptureMode,
		protocolVersion: cfg.ProtocolVersion,
		negotiated:      cfg.AudioParams,
	}
}

// Connect starts the supervision loop in its own goroutine. The loop ends
// when ctx is cancelled or Close is called.
func (c *Client) Connect(ctx context.Context) {
	go c.run(ctx)
}

// Close tears down the link and stops reconnecting.
func (c *Client) Close() {
	c.mu.Lock()
	c.closed = true
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
}

// SendAudio frames one PCM payload per the negotiated protocol version and
// writes it to the backend.
func (c *Client) SendAudio(ctx context.Context, audio []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.waitHelloReady(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	version := c.protocolVersion
	c.mu.Unlock()
	if conn == nil {
		return errors.New("relay connection not ready")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.packBuf = relaycodec.PackInto(version, c.packBuf, audio)
	return conn.WriteMessage(websocket.BinaryMessage, c.packBuf)
}

// SendStreamState announces a capture stream transition ("start" or "stop")
// together with the current capture mode.
func (c *Client) SendStreamState(ctx context.Context, state string) error {
	if err := c.waitHelloReady(ctx); err != nil {
		return err
	}
	payload := map[string]any{
		"type":      "stream",
		"state":     state,
		"mode":      c.captureMode(),
		"device_id": c.cfg.DeviceID,
	}
	c.attachSessionID(payload)
	return c.sendJSON(ctx, payload)
}

// Abort asks the backend to drop the in-flight utterance.
func (c *Client) Abort(ctx context.Context) error {
	if err := c.waitHelloReady(ctx); err != nil {
		return err
	}
	payload := map[string]any{
		"type":   "abort",
		"reason": "user_interrupt",
	}
	c.attachSessionID(payload)
	return c.sendJSON(ctx, payload)
}

// SetCaptureMode updates the capture mode announced with stream transitions.
func (c *Client) SetCaptureMode(mode string) {
	mode = normalizeCaptureMode(mode)
	c.mu.Lock()
	c.capture = mode
	c.mu.Unlock()
}

// SessionID returns the backend-assigned session id, empty before hello.
func (c *Client) SessionID() string {
	return c.getSessionID()
}

// NegotiatedAudioParams returns the audio parameters acknowledged by the
// backend, falling back to the configured ones before hello completes.
func (c *Client) NegotiatedAudioParams() AudioParams {
	c.mu.Lock()
	params := c.negotiated
	c.mu.Unlock()
	return params
}

func (c *Client) captureMode() string {
	c.mu.Lock()
	mode := c.capture
	c.mu.Unlock()
	if mode == "" {
		return "auto"
	}
	return mode
}

func (c *Client) sendJSON(ctx context.Context, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("relay connection not ready")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(payload)
}

func (c *Client) waitHelloReady(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timer := time.NewTimer(5 * time.Second)
	defer timer.Stop()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		c.mu.Lock()
		connReady := c.conn != nil
		helloReady := c.helloReady
		c.mu.Unlock()

		if !connReady {
			return errors.New("relay connection not ready")
		}
		if helloReady {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return errors.New("relay hello not acknowledged")
		case <-ticker.C:
		}
	}
}

func (c *Client) run(ctx context.Context) {
	delay := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		if c.isClosed() {
			return
		}
		c.logger.Info("relay connecting",
			zap.String("backend_url", c.cfg.BackendURL),
			zap.String("device_id", c.cfg.DeviceID),
			zap.String("client_id", c.cfg.ClientID),
		)
		if err := c.connectOnce(ctx); err != nil {
			c.reportError(err)
			c.logger.Warn("relay connect failed", zap.Error(err))
			time.Sleep(delay)
			delay = nextBackoff(delay)
			continue
		}
		c.logger.Info("relay connected",
			zap.String("backend_url", c.cfg.BackendURL),
			zap.String("device_id", c.cfg.DeviceID),
			zap.Int("protocol_version", c.getProtocolVersion()),
		)
		delay = time.Second
		if err := c.readLoop(); err != nil {
			if c.callbacks.OnDisconnected != nil {
				c.callbacks.OnDisconnected(err)
			}
			c.reportError(err)
			c.logger.Warn("relay connection lost", zap.Error(err))
			time.Sleep(delay)
			delay = nextBackoff(delay)
			continue
		}
	}
}

func (c *Client) connectOnce(ctx context.Context) error {
	if c.cfg.BackendURL == "" {
		return errors.New("relay backend url is empty")
	}

	headers := http.Header{}
	headers.Set("Protocol-Version", strconv.Itoa(c.getProtocolVersion()))
	headers.Set("Client-Id", c.cfg.ClientID)
	headers.Set("Device-Id", c.cfg.DeviceID)
	if c.cfg.AccessToken != "" {
		headers.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	}

	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, c.cfg.BackendURL, headers)
	if err != nil {
		return err
	}
	conn.SetPingHandler(func(appData string) error {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return errors.New("client closed")
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	c.sessionID = ""
	c.helloReady = false
	c.negotiated = c.cfg.AudioParams
	c.mu.Unlock()

	return c.sendHello(ctx)
}

func (c *Client) sendHello(ctx context.Context) error {
	payload := map[string]any{
		"type":      "hello",
		"device_id": c.cfg.DeviceID,
		"version":   c.getProtocolVersion(),
		"features": map[string]any{
			"partial_transcripts": c.cfg.FeaturePartials,
		},
		"transport": "websocket",
		"audio_params": map[string]any{
			"format":         c.cfg.AudioParams.Format,
			"sample_rate":    c.cfg.AudioParams.SampleRate,
			"channels":       c.cfg.AudioParams.Channels,
			"frame_duration": c.cfg.AudioParams.FrameDuration,
		},
	}
	return c.sendJSON(ctx, payload)
}

func (c *Client) readLoop() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("relay connection not ready")
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				_ = c.conn.Close()
				c.conn = nil
			}
			c.mu.Unlock()
			return err
		}

		switch msgType {
		case websocket.TextMessage:
			c.handleTextMessage(data)
		case websocket.BinaryMessage:
			payload, kind, decodeErr := relaycodec.Decode(c.getProtocolVersion(), data)
			if decodeErr != nil {
				c.reportError(decodeErr)
				continue
			}
			if len(payload) == 0 {
				continue
			}
			if kind == relaycodec.PayloadKindCommand {
				c.handleTextMessage(payload)
				continue
			}
			// capture-only link, backend audio has nowhere to go
			c.logger.Debug("dropping backend audio frame", zap.Int("bytes", len(payload)))
		}
	}
}

func (c *Client) handleTextMessage(data []byte) {
	var payload struct {
		Type      string `json:"type"`
		Text      string `json:"text"`
		State     string `json:"state"`
		SessionID string `json:"session_id,omitempty"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		c.reportError(err)
		return
	}
	if payload.SessionID != "" {
		c.setSessionID(payload.SessionID)
	}

	switch payload.Type {
	case "hello":
		c.handleHelloMessage(data)
	case "transcript":
		if payload.Text != "" && c.callbacks.OnTranscript != nil {
			c.callbacks.OnTranscript(payload.Text, payload.State == "final")
		}
	case "status":
		if c.callbacks.OnStatus != nil {
			c.callbacks.OnStatus(payload.State, payload.Text)
		}
	case "goodbye":
		if c.callbacks.OnGoodbye != nil {
			c.callbacks.OnGoodbye()
		}
	}
}

func (c *Client) handleHelloMessage(data []byte) {
	var payload struct {
		Type      string `json:"type"`
		SessionID string `json:"session_id,omitempty"`
		Version   int    `json:"version,omitempty"`
		Audio     struct {
			Format     string `json:"format,omitempty"`
			SampleRate int    `json:"sample_rate,omitempty"`
			Channels   int    `json:"channels,omitempty"`
			FrameMs    int    `json:"frame_duration,omitempty"`
		} `json:"audio_params,omitempty"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		c.reportError(err)
		return
	}

	if payload.SessionID != "" {
		c.setSessionID(payload.SessionID)
	}
	if payload.Version > 0 {
		c.setProtocolVersion(payload.Version)
	}
	c.updateNegotiatedAudio(payload.Audio.Format, payload.Audio.SampleRate, payload.Audio.Channels, payload.Audio.FrameMs)

	params := c.NegotiatedAudioParams()
	c.logger.Info("relay hello acknowledged",
		zap.String("session_id", c.getSessionID()),
		zap.Int("protocol_version", c.getProtocolVersion()),
		zap.String("format", params.Format),
		zap.Int("sample_rate", params.SampleRate),
		zap.Int("channels", params.Channels),
		zap.Int("frame_duration", params.FrameDuration),
	)

	if c.markHelloReady() && c.callbacks.OnConnected != nil {
		c.callbacks.OnConnected()
	}
}

func (c *Client) updateNegotiatedAudio(format string, sampleRate int, channels int, frameDuration int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f := normalizeAudioFormat(format); f != "" {
		c.negotiated.Format = f
	}
	if sampleRate > 0 {
		c.negotiated.SampleRate = sampleRate
	}
	if channels > 0 {
		c.negotiated.Channels = channels
	}
	if frameDuration > 0 {
		c.negotiated.FrameDuration = frameDuration
	}
}

func (c *Client) attachSessionID(payload map[string]any) {
	if payload == nil {
		return
	}
	sessionID := c.getSessionID()
	if sessionID == "" {
		return
	}
	payload["session_id"] = sessionID
}

func (c *Client) getSessionID() string {
	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()
	return sessionID
}

func (c *Client) setSessionID(sessionID string) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return
	}
	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()
}

func (c *Client) getProtocolVersion() int {
	c.mu.Lock()
	version := c.protocolVersion
	c.mu.Unlock()
	return version
}

func (c *Client) setProtocolVersion(version int) {
	normalized := relaycodec.NormalizeVersion(version)
	c.mu.Lock()
	changed := c.protocolVersion != normalized
	c.protocolVersion = normalized
	c.mu.Unlock()
	if changed {
		c.logger.Info("relay negotiated protocol version updated", zap.Int("protocol_version", normalized))
	}
}

func (c *Client) markHelloReady() bool {
	c.mu.Lock()
	if c.helloReady {
		c.mu.Unlock()
		return false
	}
	c.helloReady = true
	c.mu.Unlock()
	return true
}

func (c *Client) reportError(err error) {
	if c.callbacks.OnError != nil {
		c.callbacks.OnError(err)
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	return closed
}

func nextBackoff(delay time.Duration) time.Duration {
	if delay >= 30*time.Second {
		return 30 * time.Second
	}
	return delay * 2
}

func normalizeAudioParams(params AudioParams) AudioParams {
	params.Format = normalizeAudioFormat(params.Format)
	if params.Format == "" {
		params.Format = "pcm_s16le"
	}
	if params.SampleRate <= 0 {
		params.SampleRate = 16000
	}
	if params.Channels <= 0 {
		params.Channels = 1
	}
	if params.FrameDuration <= 0 {
		params.FrameDuration = 20
	}
	return params
}

func normalizeCaptureMode(mode string) string {
	switch strings.TrimSpace(strings.ToLower(mode)) {
	case "manual", "realtime", "auto":
		return strings.TrimSpace(strings.ToLower(mode))
	default:
		return "auto"
	}
}

func normalizeAudioFormat(format string) string {
	switch strings.TrimSpace(strings.ToLower(format)) {
	case "":
		return ""
	case "pcm", "pcm16", "pcm_s16le":
		return "pcm_s16le"
	default:
		return strings.TrimSpace(strings.ToLower(format))
	}
}
