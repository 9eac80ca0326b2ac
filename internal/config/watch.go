package config

import (
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watch re-reads the config file whenever it changes on disk and passes the
// freshly validated Config to onChange. Invalid edits are logged and ignored.
// Only settings that are safe to swap at runtime (currently the log level)
// should be applied by the callback; everything else needs a restart.
func Watch(cfg *Config, onChange func(*Config)) {
	path := cfg.ConfigFile()
	if path == "" {
		return
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		slog.Warn("config watch disabled", "file", path, "error", err)
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := Load(path)
		if err != nil {
			slog.Warn("ignoring invalid config change", "file", e.Name, "error", err)
			return
		}
		slog.Info("config file changed", "file", e.Name)
		onChange(next)
	})
	v.WatchConfig()
}
