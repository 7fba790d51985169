package nativehost

import (
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/jnakagawa/loggy/internal/platform"
)

// HostName is the native-messaging host identifier registered with the
// browser; the manifest file is named after it.
const HostName = "com.analytics_logger.proxy"

// Manifest is the native-messaging host manifest the browser reads to
// find and authorize this binary.
type Manifest struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Path           string   `json:"path"`
	Type           string   `json:"type"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// Install writes the wrapper script and host manifest for the given
// extension id. The manifest points at a shell wrapper rather than the
// binary itself: some browsers sanitize argv when spawning hosts, and the
// exec indirection keeps the no-argument dispatch intact.
func Install(extensionID string) error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	execPath, err = filepath.Abs(execPath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	wrapperPath := filepath.Join(filepath.Dir(execPath), "loggy-proxy-host")
	wrapper := fmt.Sprintf("#!/bin/bash\nexec %q \"$@\"\n", execPath)
	if err := os.WriteFile(wrapperPath, []byte(wrapper), 0755); err != nil {
		return fmt.Errorf("failed to create wrapper script: %w", err)
	}

	manifest := Manifest{
		Name:        HostName,
		Description: "Loggy Analytics Proxy Control",
		Path:        wrapperPath,
		Type:        "stdio",
		AllowedOrigins: []string{
			fmt.Sprintf("chrome-extension://%s/", extensionID),
		},
	}

	hostsDir, err := platform.NativeMessagingHostsDir()
	if err != nil {
		return fmt.Errorf("failed to locate native messaging hosts directory: %w", err)
	}
	if err := os.MkdirAll(hostsDir, 0755); err != nil {
		return fmt.Errorf("failed to create native messaging hosts directory: %w", err)
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	manifestPath := filepath.Join(hostsDir, HostName+".json")
	if err := os.WriteFile(manifestPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	fmt.Printf("Wrapper script created: %s\n", wrapperPath)
	fmt.Printf("Manifest written to: %s\n", manifestPath)
	return nil
}
