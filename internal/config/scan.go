package config

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProfileFileInfo lists one selectable profile for the frontend.
type ProfileFileInfo struct {
	Filename string `json:"filename"`
	Name     string `json:"name"`
}

type profileFilePayload struct {
	ProfileConfig ProfileConfig `yaml:"profile_config"`
}

// ScanProfiles returns the inline profile from conf.yaml followed by every
// YAML profile in profilesDir. Unreadable files still appear under their
// file name so the frontend can show them.
func ScanProfiles(rootDir string, profilesDir string) ([]ProfileFileInfo, error) {
	profiles := []ProfileFileInfo{}
	defaultProfile, err := ReadProfile(filepath.Join(rootDir, "conf.yaml"))
	if err == nil {
		profiles = append(profiles, ProfileFileInfo{Filename: "conf.yaml", Name: defaultProfile.ProfileName})
	} else {
		profiles = append(profiles, ProfileFileInfo{Filename: "conf.yaml", Name: "conf.yaml"})
	}

	if profilesDir == "" {
		return profiles, nil
	}

	_ = filepath.WalkDir(profilesDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil || d == nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".yaml") && !strings.HasSuffix(d.Name(), ".yml") {
			return nil
		}
		profile, err := ReadProfile(path)
		name := d.Name()
		if err == nil && profile.ProfileName != "" {
			name = profile.ProfileName
		}
		profiles = append(profiles, ProfileFileInfo{Filename: d.Name(), Name: name})
		return nil
	})

	return profiles, nil
}

// ReadProfile loads the profile_config block of one YAML file. A missing
// profile name falls back to the file name; a missing uid is derived from
// the name.
func ReadProfile(path string) (ProfileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ProfileConfig{}, err
	}
	var payload profileFilePayload
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return ProfileConfig{}, err
	}
	profile := payload.ProfileConfig
	if profile.ProfileName == "" {
		profile.ProfileName = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if profile.ProfileUID == "" {
		profile.ProfileUID = sanitizeProfileUID(profile.ProfileName)
	}
	return profile, nil
}
