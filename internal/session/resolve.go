package session

import (
	"os"

	"github.com/mfadhil/qchat/internal/config"
)

// DefaultProfile is the profile used when nothing else is specified.
const DefaultProfile = "default"

// Resolve determines the active profile name using precedence:
// 1. flagOverride (--profile flag)
// 2. QCHAT_PROFILE environment variable
// 3. config.toml default_profile
// 4. "default"
func Resolve(flagOverride string) string {
	if flagOverride != "" {
		return flagOverride
	}
	if env := os.Getenv("QCHAT_PROFILE"); env != "" {
		return env
	}
	cfg, err := config.Load(ConfigPath())
	if err == nil && cfg.DefaultProfile != "" {
		return cfg.DefaultProfile
	}
	return DefaultProfile
}
