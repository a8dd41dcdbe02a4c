// Package device builds the fingerprint sent with every authentication
// request so the server can bind sessions to this installation.
package device

import (
	"context"
	"os"
	"runtime"

	"github.com/google/uuid"

	"github.com/linxtalk/linxtalk-cli/internal/storage"
	"github.com/linxtalk/linxtalk-cli/internal/version"
)

// StorageKey is the general-store key holding the installation id.
const StorageKey = "device-storage"

// Unknown stands in for any attribute that can't be determined.
const Unknown = "unknown"

// Fingerprint identifies this device to the auth service.
type Fingerprint struct {
	DeviceID    string `json:"deviceId"`
	Platform    string `json:"platform"`
	DeviceName  string `json:"deviceName"`
	DeviceModel string `json:"deviceModel"`
	OSVersion   string `json:"osVersion"`
	AppVersion  string `json:"appVersion"`
}

type identity struct {
	DeviceID string `json:"deviceId"`
}

// ID returns the installation id, generating and persisting one on first use.
func ID(ctx context.Context, kv storage.KV) (string, error) {
	repo := storage.NewJSON[identity](kv, StorageKey)
	stored, found, err := repo.Load(ctx)
	if err != nil {
		return "", err
	}
	if found && stored.DeviceID != "" {
		return stored.DeviceID, nil
	}
	id := uuid.NewString()
	if err := repo.Save(ctx, identity{DeviceID: id}); err != nil {
		return "", err
	}
	return id, nil
}

// Detect returns the fingerprint for this machine. Non-empty fields in
// overrides win over detected values.
func Detect(ctx context.Context, kv storage.KV, overrides Fingerprint) (Fingerprint, error) {
	fp := Fingerprint{
		DeviceID:    overrides.DeviceID,
		Platform:    firstNonEmpty(overrides.Platform, runtime.GOOS),
		DeviceName:  firstNonEmpty(overrides.DeviceName, hostname()),
		DeviceModel: firstNonEmpty(overrides.DeviceModel, runtime.GOARCH),
		OSVersion:   firstNonEmpty(overrides.OSVersion, osVersion()),
		AppVersion:  firstNonEmpty(overrides.AppVersion, version.Version),
	}
	if fp.DeviceID == "" {
		id, err := ID(ctx, kv)
		if err != nil {
			return Fingerprint{}, err
		}
		fp.DeviceID = id
	}
	return fp, nil
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return ""
	}
	return name
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return Unknown
}
