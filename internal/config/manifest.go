package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DeviceManifest is an optional on-disk, version-controlled alternative to
// the CAMERA_ANGLE_MAP environment variable: operators provisioning a new
// court can check in a manifest file naming every camera on that device
// rather than hand-assembling a JSON blob for an env var.
type DeviceManifest struct {
	Cameras []struct {
		Name  string `yaml:"name"`
		Angle string `yaml:"angle"`
	} `yaml:"cameras"`
}

// LoadDeviceManifest reads and parses a YAML device manifest into the same
// friendly-name -> angle-code map shape CameraAngleMap already uses.
func LoadDeviceManifest(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read device manifest %s: %w", path, err)
	}

	var manifest DeviceManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse device manifest %s: %w", path, err)
	}

	out := make(map[string]string, len(manifest.Cameras))
	for _, c := range manifest.Cameras {
		if c.Name == "" || c.Angle == "" {
			return nil, fmt.Errorf("device manifest %s: camera entry missing name or angle", path)
		}
		out[c.Name] = c.Angle
	}
	return out, nil
}
