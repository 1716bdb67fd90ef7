package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	appconfig "github.com/micrelay/micrelay/internal/config"
	"github.com/micrelay/micrelay/internal/protocol"
	"github.com/micrelay/micrelay/internal/registry"
	"github.com/micrelay/micrelay/internal/session/fsm"
	"github.com/micrelay/micrelay/internal/storage"
	"github.com/micrelay/micrelay/pkg/audio"
	"github.com/micrelay/micrelay/pkg/relay"
)

// Handler represents a handler.
type Handler struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader
	config   appconfig.Config
	registry *registry.Manager
}

type session struct {
	conn    *websocket.Conn
	sendMu  sync.Mutex
	logger  *zap.Logger
	handler *Handler

	uid        string
	remoteAddr string
	deviceID   string
	clientID   string
	startedAt  time.Time

	machine   *fsm.Machine
	resampler *audio.Resampler
	framer    *audio.Framer
	relay     *relay.Client

	profile      appconfig.ProfileConfig
	frameSamples int
	streaming    bool

	int16Scratch []int16
	floatScratch []float64
	pcmScratch   []byte

	statsMu sync.Mutex
	stats   sessionStats
}

type sessionStats struct {
	profileName string
	profileUID  string
	captureMode string
	targetRate  float64
	currentRate float64
	audioChunks uint64
	samplesIn   uint64
	framesOut   uint64
	rateChanges uint64
	transcripts uint64
	interrupts  uint64
}

// NewHandler executes the newHandler function.
func NewHandler(logger *zap.Logger, cfg appconfig.Config) *Handler {
	return &Handler{
		logger:   logger,
		config:   cfg,
		registry: registry.NewManager(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Registry exposes the live session registry for the HTTP listing.
func (h *Handler) Registry() *registry.Manager {
	return h.registry
}

// Handle executes the handle method.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	uid := storage.NewReportUID()
	sess := &session{
		conn:       conn,
		logger:     h.logger,
		handler:    h,
		uid:        uid,
		remoteAddr: r.RemoteAddr,
		deviceID:   fallbackID(h.config.UpstreamDeviceID, "mrl-device-"+uid),
		clientID:   fallbackID(h.config.UpstreamClientID, "mrl-client-"+uid),
		startedAt:  time.Now(),
		machine:    fsm.New(),
		framer:     &audio.Framer{},
	}
	sess.applyProfile(h.config.ProfileConfig)

	sess.logger.Info("ws session opened",
		zap.String("session_id", sess.uid),
		zap.String("remote_addr", sess.remoteAddr),
		zap.String("device_id", sess.deviceID),
		zap.String("profile", sess.profile.ProfileName),
		zap.Int("target_sample_rate", sess.profile.TargetSampleRate),
		zap.Int("frame_duration", sess.profile.FrameDuration),
		zap.String("capture_mode", sess.profile.CaptureMode),
	)

	h.registry.Register(sess.uid, sess.snapshotInfo)
	sess.startRelay(ctx)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			sess.logger.Debug("ws connection closed", zap.Error(err))
			break
		}
		var msg protocol.ClientCommand
		if err := json.Unmarshal(data, &msg); err != nil {
			sess.sendJSON(map[string]any{"type": "error", "message": "invalid json"})
			continue
		}
		if msg.Type != "heartbeat" {
			sess.logger.Debug("ws incoming message",
				zap.String("session_id", sess.uid),
				zap.String("type", msg.Type),
			)
		}
		sess.handleIncoming(ctx, msg)
	}

	sess.relay.Close()
	h.registry.Remove(sess.uid)
	sess.writeReport()
	sess.logger.Info("ws session closed", zap.String("session_id", sess.uid))
}

// applyProfile rebuilds the audio pipeline for a profile. Missing profile
// fields fall back to the upstream defaults; the resampler is replaced because
// its target rate is fixed at construction.
func (s *session) applyProfile(profile appconfig.ProfileConfig) {
	cfg := s.handler.config
	if profile.TargetSampleRate <= 0 {
		profile.TargetSampleRate = cfg.UpstreamSampleRate
	}
	if profile.FrameDuration <= 0 {
		profile.FrameDuration = cfg.UpstreamFrameDuration
	}
	if profile.CaptureMode == "" {
		profile.CaptureMode = cfg.UpstreamCaptureMode
	}

	s.profile = profile
	s.resampler = audio.NewResampler(float64(profile.TargetSampleRate))
	s.framer.Reset()
	s.frameSamples = profile.TargetSampleRate * profile.FrameDuration / 1000
	if s.frameSamples <= 0 {
		s.frameSamples = audio.DefaultTargetRate * 20 / 1000
	}
	s.machine.SetMode(profile.CaptureMode)
	s.streaming = false

	s.statsMu.Lock()
	s.stats.profileName = profile.ProfileName
	s.stats.profileUID = profile.ProfileUID
	s.stats.captureMode = string(s.machine.Mode())
	s.stats.targetRate = s.resampler.TargetRate()
	s.stats.currentRate = s.resampler.CurrentRate()
	s.statsMu.Unlock()
}

func (s *session) startRelay(ctx context.Context) {
	cfg := s.handler.config
	relayCfg := relay.Config{
		BackendURL:      cfg.UpstreamURL,
		ProtocolVersion: cfg.UpstreamProtocolVersion,
		AudioParams: relay.AudioParams{
			Format:        cfg.UpstreamAudioFormat,
			SampleRate:    s.profile.TargetSampleRate,
			Channels:      cfg.UpstreamChannels,
			FrameDuration: s.profile.FrameDuration,
		},
		CaptureMode:     s.profile.CaptureMode,
		DeviceID:        s.deviceID,
		ClientID:        s.clientID,
		AccessToken:     cfg.UpstreamAccessToken,
		FeaturePartials: cfg.UpstreamFeaturePartials,
	}

	callbacks := relay.Callbacks{
		OnConnected: func() {
			s.handleRelayReady()
		},
		OnDisconnected: func(err error) {
			s.logger.Debug("relay disconnected", zap.Error(err))
		},
		OnTranscript: func(text string, final bool) {
			s.handleTranscript(text, final)
		},
		OnStatus: func(state string, text string) {
			if state == "" {
				return
			}
			payload := map[string]any{"type": "control", "text": state}
			if text != "" {
				payload["message"] = text
			}
			s.sendJSON(payload)
		},
		OnGoodbye: func() {
			s.sendJSON(map[string]any{"type": "error", "message": "speech backend closed the session"})
			_ = s.machine.Force(fsm.StateIdle)
		},
		OnError: func(err error) {
			s.logger.Warn("relay error", zap.Error(err))
		},
	}

	s.relay = relay.NewClient(relayCfg, callbacks, s.handler.logger)
	s.relay.Connect(ctx)
}

func (s *session) handleRelayReady() {
	params := s.relay.NegotiatedAudioParams()
	s.statsMu.Lock()
	target := s.stats.targetRate
	profileName := s.stats.profileName
	s.statsMu.Unlock()

	if params.SampleRate > 0 && float64(params.SampleRate) != target {
		s.logger.Warn("backend negotiated a different sample rate",
			zap.String("session_id", s.uid),
			zap.Float64("target_sample_rate", target),
			zap.Int("negotiated_sample_rate", params.SampleRate),
		)
	}

	s.sendJSON(map[string]any{
		"type":                 "capture-ready",
		"session_id":           s.relay.SessionID(),
		"profile_name":         profileName,
		"target_sample_rate":   target,
		"upstream_format":      params.Format,
		"upstream_sample_rate": params.SampleRate,
		"frame_duration":       params.FrameDuration,
	})
}

func (s *session) handleTranscript(text string, final bool) {
	if final {
		s.machine.OnTranscriptFinal()
		s.statsMu.Lock()
		s.stats.transcripts++
		s.statsMu.Unlock()
	}
	s.logger.Debug("relay transcript",
		zap.String("session_id", s.uid),
		zap.Bool("final", final),
		zap.Int("chars", len(text)),
	)
	s.sendJSON(map[string]any{"type": "transcript", "text": text, "final": final})
}

func (s *session) handleIncoming(ctx context.Context, msg protocol.ClientCommand) {
	switch msg.Type {
	case "mic-audio-data":
		s.handleMicAudio(ctx, msg)
	case "mic-audio-end":
		s.handleMicEnd(ctx)
	case "interrupt-signal":
		s.handleInterrupt(ctx)
	case "set-capture-mode":
		s.handleSetCaptureMode(msg.CaptureMode)
	case "fetch-profiles":
		s.handleFetchProfiles()
	case "switch-profile":
		s.handleProfileSwitch(ctx, msg.File)
	case "heartbeat":
		return
	default:
		s.logger.Debug("ws unknown message type",
			zap.String("session_id", s.uid),
			zap.String("type", msg.Type),
		)
	}
}

func (s *session) handleMicAudio(ctx context.Context, msg protocol.ClientCommand) {
	samples, err := s.decodeAudio(msg)
	if err != nil {
		s.sendJSON(map[string]any{"type": "error", "message": err.Error()})
		return
	}
	if len(samples) == 0 {
		return
	}

	if msg.AudioRate > 0 && msg.AudioRate != s.resampler.CurrentRate() {
		s.resampler.SetSampleRate(msg.AudioRate)
		s.statsMu.Lock()
		s.stats.rateChanges++
		s.statsMu.Unlock()
		s.logger.Info("mic sample rate declared",
			zap.String("session_id", s.uid),
			zap.Float64("sample_rate", msg.AudioRate),
		)
	}

	if !s.streaming {
		if err := s.relay.SendStreamState(ctx, "start"); err == nil {
			s.logger.Info("relay stream start", zap.String("session_id", s.uid))
		} else {
			s.logger.Warn("relay stream start failed", zap.Error(err))
		}
		s.streaming = true
		s.machine.OnCaptureStart()
		s.sendJSON(map[string]any{"type": "control", "text": "capture-start"})
	}

	s.logger.Debug("mic audio received",
		zap.String("session_id", s.uid),
		zap.Int("samples", len(samples)),
	)

	out := s.resampler.Process(samples)

	s.statsMu.Lock()
	s.stats.audioChunks++
	s.stats.samplesIn += uint64(len(samples))
	s.stats.currentRate = s.resampler.CurrentRate()
	s.statsMu.Unlock()

	if len(out) > 0 {
		s.framer.Push(out)
	}
	s.relayFrames(ctx)
}

func (s *session) handleMicEnd(ctx context.Context) {
	if tail := s.resampler.Flush(); len(tail) > 0 {
		s.framer.Push(tail)
	}
	s.relayFrames(ctx)
	if remainder := s.framer.PopRemainderPadded(s.frameSamples); remainder != nil {
		s.sendFrame(ctx, remainder)
	}

	if !s.streaming {
		return
	}
	if err := s.relay.SendStreamState(ctx, "stop"); err == nil {
		s.logger.Info("relay stream stop", zap.String("session_id", s.uid))
	} else {
		s.logger.Warn("relay stream stop failed", zap.Error(err))
	}
	s.streaming = false
	s.machine.OnCaptureEnd()
	s.sendJSON(map[string]any{"type": "control", "text": "capture-end"})
}

func (s *session) handleInterrupt(ctx context.Context) {
	if err := s.relay.Abort(ctx); err != nil {
		s.sendJSON(map[string]any{"type": "error", "message": err.Error()})
	}
	s.resampler.Reset()
	s.framer.Reset()
	s.streaming = false
	s.machine.OnInterrupt()

	s.statsMu.Lock()
	s.stats.interrupts++
	s.stats.currentRate = s.resampler.CurrentRate()
	s.statsMu.Unlock()

	s.sendJSON(map[string]any{"type": "control", "text": "capture-interrupted"})
}

func (s *session) handleSetCaptureMode(mode string) {
	if mode == "" {
		return
	}
	s.machine.SetMode(mode)
	s.relay.SetCaptureMode(mode)
	applied := string(s.machine.Mode())
	s.profile.CaptureMode = applied

	s.statsMu.Lock()
	s.stats.captureMode = applied
	s.statsMu.Unlock()

	s.logger.Info("capture mode set",
		zap.String("session_id", s.uid),
		zap.String("mode", applied),
	)
}

func (s *session) handleFetchProfiles() {
	files, err := appconfig.ScanProfiles(s.handler.config.RootDir, s.handler.config.ProfilesDir)
	if err != nil {
		s.sendJSON(map[string]any{"type": "error", "message": err.Error()})
		return
	}
	s.sendJSON(map[string]any{"type": "profile-files", "profiles": files})
}

func (s *session) handleProfileSwitch(ctx context.Context, filename string) {
	if filename == "" {
		return
	}
	profilePath := filepath.Join(s.handler.config.ProfilesDir, filepath.Base(filename))
	if filename == "conf.yaml" {
		profilePath = filepath.Join(s.handler.config.RootDir, "conf.yaml")
	}
	profile, err := appconfig.ReadProfile(profilePath)
	if err != nil {
		s.sendJSON(map[string]any{"type": "error", "message": err.Error()})
		return
	}

	if s.streaming {
		if err := s.relay.SendStreamState(ctx, "stop"); err != nil {
			s.logger.Warn("relay stream stop failed", zap.Error(err))
		}
		s.streaming = false
	}
	s.relay.Close()
	s.applyProfile(profile)
	_ = s.machine.Force(fsm.StateIdle)
	s.startRelay(ctx)

	s.logger.Info("profile switched",
		zap.String("session_id", s.uid),
		zap.String("profile", s.profile.ProfileName),
		zap.Int("target_sample_rate", s.profile.TargetSampleRate),
	)
	s.sendJSON(map[string]any{
		"type":               "profile-switched",
		"profile_name":       s.profile.ProfileName,
		"profile_uid":        s.profile.ProfileUID,
		"target_sample_rate": s.profile.TargetSampleRate,
		"frame_duration":     s.profile.FrameDuration,
		"capture_mode":       s.profile.CaptureMode,
	})
}

// decodeAudio extracts mono float samples from a mic message. Floats arrive
// in audio, packed little-endian PCM16 in audio_pcm; interleaved multichannel
// input is averaged down to mono.
func (s *session) decodeAudio(msg protocol.ClientCommand) ([]float64, error) {
	if len(msg.Audio) > 0 {
		return downmixMono(msg.Audio, msg.AudioCh), nil
	}
	if msg.AudioPCM == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(msg.AudioPCM)
	if err != nil {
		return nil, errors.New("invalid audio_pcm encoding")
	}
	s.int16Scratch = audio.BytesToInt16SliceInto(s.int16Scratch, raw)
	s.floatScratch = audio.Int16SliceToFloat64Into(s.floatScratch, s.int16Scratch)
	return downmixMono(s.floatScratch, msg.AudioCh), nil
}

func (s *session) relayFrames(ctx context.Context) {
	framesSent := 0
	for {
		frame, ok := s.framer.PopFrame(s.frameSamples)
		if !ok {
			break
		}
		if !s.sendFrame(ctx, frame) {
			return
		}
		framesSent++
	}
	if framesSent > 0 {
		s.logger.Debug("relay frames sent",
			zap.String("session_id", s.uid),
			zap.Int("frames", framesSent),
		)
	}
}

func (s *session) sendFrame(ctx context.Context, frame []int16) bool {
	defer audio.ReleaseInt16(frame)
	level := rmsLevel(frame)
	s.pcmScratch = audio.Int16SliceToBytesInto(s.pcmScratch, frame)
	if err := s.relay.SendAudio(ctx, s.pcmScratch); err != nil {
		s.logger.Warn("relay send audio failed", zap.Error(err))
		s.sendJSON(map[string]any{"type": "error", "message": err.Error()})
		return false
	}

	s.statsMu.Lock()
	s.stats.framesOut++
	s.statsMu.Unlock()

	s.sendJSON(map[string]any{"type": "input-level", "level": level})
	return true
}

func (s *session) snapshotInfo() registry.SessionInfo {
	s.statsMu.Lock()
	stats := s.stats
	s.statsMu.Unlock()
	return registry.SessionInfo{
		UID:         s.uid,
		RemoteAddr:  s.remoteAddr,
		ProfileName: stats.profileName,
		ProfileUID:  stats.profileUID,
		TargetRate:  stats.targetRate,
		CurrentRate: stats.currentRate,
		CaptureMode: stats.captureMode,
		State:       string(s.machine.State()),
		StartedAt:   s.startedAt,
		AudioChunks: stats.audioChunks,
		SamplesIn:   stats.samplesIn,
		FramesOut:   stats.framesOut,
		RateChanges: stats.rateChanges,
		Transcripts: stats.transcripts,
	}
}

func (s *session) writeReport() {
	endedAt := time.Now()
	s.statsMu.Lock()
	stats := s.stats
	s.statsMu.Unlock()

	report := storage.SessionReport{
		UID:           s.uid,
		ProfileName:   stats.profileName,
		ProfileUID:    stats.profileUID,
		RemoteAddr:    s.remoteAddr,
		TargetRate:    stats.targetRate,
		LastInputRate: stats.currentRate,
		CaptureMode:   stats.captureMode,
		StartedAt:     s.startedAt.Format(time.RFC3339),
		EndedAt:       endedAt.Format(time.RFC3339),
		AudioChunks:   stats.audioChunks,
		SamplesIn:     stats.samplesIn,
		FramesOut:     stats.framesOut,
		RateChanges:   stats.rateChanges,
		Transcripts:   stats.transcripts,
		Interrupts:    stats.interrupts,
	}
	if err := storage.WriteReport(s.handler.config.ReportsDir, report); err != nil {
		s.logger.Warn("session report write failed",
			zap.String("session_id", s.uid),
			zap.Error(err),
		)
	}
}

func (s *session) sendJSON(payload any) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.conn.WriteJSON(payload); err != nil {
		s.logger.Debug("ws send failed", zap.Error(err))
	}
}

func fallbackID(value string, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func downmixMono(samples []float64, channels int) []float64 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	for i := 0; i < frames; i++ {
		sum := 0.0
		for ch := 0; ch < channels; ch++ {
			sum += samples[i*channels+ch]
		}
		samples[i] = sum / float64(channels)
	}
	return samples[:frames]
}

func rmsLevel(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	sum := 0.0
	for _, sample := range frame {
		value := float64(sample)
		sum += value * value
	}
	return math.Sqrt(sum/float64(len(frame))) / 32768.0
}
