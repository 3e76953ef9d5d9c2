package config

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fjacquet/mediagen/internal/models"
	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// ReloadFunc receives the freshly loaded configuration on each reload.
type ReloadFunc func(cfg models.Config)

// SetupSIGHUPHandler triggers a configuration reload on SIGHUP, the
// conventional Unix reload signal. The handler keeps listening after each
// reload.
func SetupSIGHUPHandler(configPath string, reload ReloadFunc) {
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)

	go func() {
		for range sighup {
			log.Info("SIGHUP received, reloading configuration")
			reloadFromFile(configPath, reload)
		}
	}()
}

// Watch reloads the configuration whenever the file changes on disk.
//
// The watch is on the directory, not the file: editors and config
// management tools write a temp file and rename it over the original, which
// replaces the inode a file-level watch would be bound to.
//
// The caller owns the returned watcher and should defer Close.
func Watch(configPath string, reload ReloadFunc) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	configDir := filepath.Dir(configPath)
	configName := filepath.Base(configPath)

	if err := watcher.Add(configDir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != configName {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					log.Info("Configuration file changed, reloading")
					reloadFromFile(configPath, reload)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Errorf("Configuration watcher error: %v", err)
			}
		}
	}()

	log.WithField("path", configPath).Info("Watching configuration file")
	return watcher, nil
}

func reloadFromFile(configPath string, reload ReloadFunc) {
	cfg, err := Load(configPath)
	if err != nil {
		log.Errorf("Configuration reload failed, keeping previous settings: %v", err)
		return
	}
	reload(cfg)
}
