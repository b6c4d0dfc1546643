package sdkbackend

import (
	"path/filepath"

	"github.com/skiffdesk/rvpgateway/internal/rvplog"
)

// AddonDir is the conventional add-on search location.
const AddonDir = "/etc/guacamole/realvnc/*.addon"

// LoadAddons globs pattern (normally AddonDir) and calls enable once
// per matched file,
// collecting rather than aborting on a per-file error so one broken
// add-on does not block the rest from loading.
func LoadAddons(pattern string, enable func(path string) error) []error {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return []error{err}
	}

	var errs []error
	for _, path := range matches {
		if err := enable(path); err != nil {
			rvplog.L().Error("sdkbackend: addon failed to load", "path", path, "err", err)
			errs = append(errs, err)
			continue
		}
		rvplog.L().Info("sdkbackend: addon loaded", "path", path)
	}
	return errs
}

// EnableAddon adapts sdk.EnableAddon into the enable func LoadAddons
// expects; kept separate so tests can substitute a fake.
func (h *Handle) EnableAddon(path string) error {
	return h.sdk.EnableAddon(path)
}
