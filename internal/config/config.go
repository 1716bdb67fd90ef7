package config

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	appdefaults "github.com/micrelay/micrelay/config"

	"github.com/micrelay/micrelay/internal/logger"
	"github.com/spf13/viper"
)

// SystemConfig mirrors the system_config block of conf.yaml. Top-level keys
// win over it; it exists so one file can carry deploy-wide settings next to
// per-install overrides.
type SystemConfig struct {
	Host                    string `mapstructure:"host"`
	Port                    int    `mapstructure:"port"`
	ProfilesDir             string `mapstructure:"profiles_dir"`
	UpstreamURL             string `mapstructure:"upstream_url"`
	UpstreamProtocolVersion int    `mapstructure:"upstream_protocol_version"`
	UpstreamAudioFormat     string `mapstructure:"upstream_audio_format"`
	UpstreamSampleRate      int    `mapstructure:"upstream_sample_rate"`
	UpstreamChannels        int    `mapstructure:"upstream_channels"`
	UpstreamFrameDuration   int    `mapstructure:"upstream_frame_duration"`
	UpstreamCaptureMode     string `mapstructure:"upstream_capture_mode"`
	UpstreamDeviceID        string `mapstructure:"upstream_device_id"`
	UpstreamClientID        string `mapstructure:"upstream_client_id"`
	UpstreamAccessToken     string `mapstructure:"upstream_access_token"`
}

// ProfileConfig is an audio pipeline preset: the rate the capture stream is
// normalized to, the frame duration sent upstream, and the capture mode a
// session starts in. Profiles beyond the inline one live as YAML files in the
// profiles dir.
type ProfileConfig struct {
	ProfileName      string `mapstructure:"profile_name" yaml:"profile_name"`
	ProfileUID       string `mapstructure:"profile_uid" yaml:"profile_uid"`
	TargetSampleRate int    `mapstructure:"target_sample_rate" yaml:"target_sample_rate"`
	FrameDuration    int    `mapstructure:"frame_duration" yaml:"frame_duration"`
	CaptureMode      string `mapstructure:"capture_mode" yaml:"capture_mode"`
	Description      string `mapstructure:"description" yaml:"description"`
}

// Config is the resolved server configuration.
type Config struct {
	RootDir                 string        `mapstructure:"-"`
	HTTPAddr                string        `mapstructure:"http_addr"`
	UpstreamURL             string        `mapstructure:"upstream_url"`
	UpstreamProtocolVersion int           `mapstructure:"upstream_protocol_version"`
	UpstreamAudioFormat     string        `mapstructure:"upstream_audio_format"`
	UpstreamSampleRate      int           `mapstructure:"upstream_sample_rate"`
	UpstreamChannels        int           `mapstructure:"upstream_channels"`
	UpstreamFrameDuration   int           `mapstructure:"upstream_frame_duration"`
	UpstreamCaptureMode     string        `mapstructure:"upstream_capture_mode"`
	UpstreamFeaturePartials bool          `mapstructure:"upstream_feature_partials"`
	UpstreamDeviceID        string        `mapstructure:"upstream_device_id"`
	UpstreamClientID        string        `mapstructure:"upstream_client_id"`
	UpstreamAccessToken     string        `mapstructure:"upstream_access_token"`
	ProfilesDir             string        `mapstructure:"profiles_dir"`
	ReportsDir              string        `mapstructure:"reports_dir"`
	FrontendDir             string        `mapstructure:"frontend_dir"`
	TLSCertPath             string        `mapstructure:"tls_cert_path"`
	TLSKeyPath              string        `mapstructure:"tls_key_path"`
	TLSRequired             bool          `mapstructure:"tls_required"`
	TLSDisable              bool          `mapstructure:"tls_disable"`
	SystemConfig            SystemConfig  `mapstructure:"system_config"`
	ProfileConfig           ProfileConfig `mapstructure:"profile_config"`
	Log                     logger.Config `mapstructure:"log"`
}

// Load resolves the root directory, reads conf.yaml from it on top of the
// embedded defaults, and applies MRL_ environment overrides. A missing
// conf.yaml is fine; the defaults stand.
func Load() (Config, error) {
	rootDir, err := resolveRootDir()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigName("conf")
	v.SetConfigType("yaml")
	v.AddConfigPath(rootDir)

	if err := readDefaults(v); err != nil {
		return Config{}, err
	}

	if err := v.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	}

	return finishLoad(v, rootDir)
}

// LoadConfig loads an explicit config file instead of searching for
// conf.yaml. An empty path falls back to Load.
func LoadConfig(configPath string) (Config, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		return Load()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, err
	}

	rootDir := strings.TrimSpace(os.Getenv("MRL_ROOT_DIR"))
	if rootDir == "" {
		rootDir = filepath.Dir(absPath)
		if filepath.Base(rootDir) == "config" {
			rootDir = filepath.Dir(rootDir)
		}
	}

	v := viper.New()
	v.SetConfigType("yaml")

	if err := readDefaults(v); err != nil {
		return Config{}, err
	}

	v.SetConfigFile(absPath)
	if err := v.MergeInConfig(); err != nil {
		return Config{}, err
	}

	return finishLoad(v, rootDir)
}

func readDefaults(v *viper.Viper) error {
	if err := v.ReadConfig(bytes.NewReader(appdefaults.Default)); err != nil {
		return fmt.Errorf("load embedded config: %w", err)
	}

	v.SetDefault("http_addr", "")
	v.SetDefault("upstream_url", "")
	v.SetDefault("upstream_protocol_version", 2)
	v.SetDefault("upstream_audio_format", "pcm_s16le")
	v.SetDefault("upstream_sample_rate", 16000)
	v.SetDefault("upstream_channels", 1)
	v.SetDefault("upstream_frame_duration", 20)
	v.SetDefault("upstream_capture_mode", "auto")
	v.SetDefault("upstream_feature_partials", true)
	v.SetDefault("tls_required", false)
	v.SetDefault("tls_disable", false)
	v.SetDefault("tls_cert_path", "")
	v.SetDefault("tls_key_path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.stdout", true)
	v.SetDefault("log.file.enabled", true)
	v.SetDefault("log.file.path", "./data/logs")
	v.SetDefault("log.file.name", "micrelay.log")
	v.SetDefault("log.file.max_size_mb", 100)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.max_age_days", 30)
	v.SetDefault("log.file.compress", true)

	v.SetEnvPrefix("mrl")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return nil
}

func finishLoad(v *viper.Viper, rootDir string) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	cfg.RootDir = rootDir
	applySystemConfig(&cfg)
	deriveHTTPAddr(&cfg)
	derivePaths(&cfg)
	deriveProfileConfig(&cfg)

	return cfg, nil
}

func applySystemConfig(cfg *Config) {
	system := cfg.SystemConfig
	if cfg.UpstreamURL == "" {
		cfg.UpstreamURL = system.UpstreamURL
	}
	if cfg.UpstreamProtocolVersion == 0 {
		cfg.UpstreamProtocolVersion = system.UpstreamProtocolVersion
	}
	if cfg.UpstreamAudioFormat == "" {
		cfg.UpstreamAudioFormat = system.UpstreamAudioFormat
	}
	if cfg.UpstreamSampleRate == 0 {
		cfg.UpstreamSampleRate = system.UpstreamSampleRate
	}
	if cfg.UpstreamChannels == 0 {
		cfg.UpstreamChannels = system.UpstreamChannels
	}
	if cfg.UpstreamFrameDuration == 0 {
		cfg.UpstreamFrameDuration = system.UpstreamFrameDuration
	}
	if cfg.UpstreamCaptureMode == "" {
		cfg.UpstreamCaptureMode = system.UpstreamCaptureMode
	}
	if cfg.UpstreamDeviceID == "" {
		cfg.UpstreamDeviceID = system.UpstreamDeviceID
	}
	if cfg.UpstreamClientID == "" {
		cfg.UpstreamClientID = system.UpstreamClientID
	}
	if cfg.UpstreamAccessToken == "" {
		cfg.UpstreamAccessToken = system.UpstreamAccessToken
	}
}

func deriveHTTPAddr(cfg *Config) {
	if cfg.HTTPAddr != "" {
		return
	}
	host := cfg.SystemConfig.Host
	port := cfg.SystemConfig.Port
	if port == 0 {
		port = 8150
	}
	if host == "" {
		cfg.HTTPAddr = fmt.Sprintf(":%d", port)
		return
	}
	cfg.HTTPAddr = net.JoinHostPort(host, strconv.Itoa(port))
}

func resolveRootDir() (string, error) {
	if root := strings.TrimSpace(os.Getenv("MRL_ROOT_DIR")); root != "" {
		return filepath.Abs(root)
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := wd
	for i := 0; i < 6; i++ {
		if fileExists(filepath.Join(dir, "conf.yaml")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return wd, nil
}

func derivePaths(cfg *Config) {
	profiles := cfg.ProfilesDir
	if profiles == "" {
		profiles = cfg.SystemConfig.ProfilesDir
	}
	cfg.ProfilesDir = resolvePath(cfg.RootDir, profiles, "profiles")
	cfg.ReportsDir = resolvePath(cfg.RootDir, cfg.ReportsDir, filepath.Join("data", "micrelay", "reports"))
	cfg.FrontendDir = resolvePath(cfg.RootDir, cfg.FrontendDir, filepath.Join("webassets", "demo"))
	cfg.TLSCertPath = resolvePath(cfg.RootDir, cfg.TLSCertPath, filepath.Join("certs", "server.crt"))
	cfg.TLSKeyPath = resolvePath(cfg.RootDir, cfg.TLSKeyPath, filepath.Join("certs", "server.key"))
}

func deriveProfileConfig(cfg *Config) {
	if cfg == nil {
		return
	}
	profile := &cfg.ProfileConfig
	if profile.ProfileName == "" {
		profile.ProfileName = "default"
	}
	if profile.ProfileUID == "" {
		profile.ProfileUID = sanitizeProfileUID(profile.ProfileName)
	}
	if profile.TargetSampleRate == 0 {
		profile.TargetSampleRate = cfg.UpstreamSampleRate
	}
	if profile.FrameDuration == 0 {
		profile.FrameDuration = cfg.UpstreamFrameDuration
	}
	if profile.CaptureMode == "" {
		profile.CaptureMode = cfg.UpstreamCaptureMode
	}
}

func sanitizeProfileUID(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "default"
	}
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '_' || r == '-' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "._-")
	if out == "" {
		return "default"
	}
	return out
}

func resolvePath(rootDir string, configured string, fallback string) string {
	path := strings.TrimSpace(configured)
	if path == "" {
		path = fallback
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(rootDir, path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
