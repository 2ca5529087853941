package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/fsnotify/fsnotify"

	logx "github.com/shcheglovnd/us-visa-scheduler-telegram/pkg/logx"
)

const (
	reloadDebounce     = 250 * time.Millisecond
	restartBackoffBase = 250 * time.Millisecond
	restartBackoffMax  = 5 * time.Second
)

type ConfigManager struct {
	path string

	// env is applied to every parsed config before it is committed.
	env Env

	mu       sync.RWMutex
	cfg      *Config
	lastHash uint64

	// subsMu guards subs and keeps publish from sending on a channel that
	// Unsubscribe is closing.
	subsMu sync.Mutex
	subs   []chan *Config

	log       logx.Logger
	validator func(ctx context.Context, cfg *Config) error
}

func NewConfigManager(path string, env Env) *ConfigManager {
	return &ConfigManager{path: path, env: env}
}

func (m *ConfigManager) SetLogger(log logx.Logger) { m.log = log }

// SetValidator installs the hook Watch runs before committing a reloaded file.
func (m *ConfigManager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validator = fn
}

// Parse reads and strictly decodes the file, then applies env overrides.
func (m *ConfigManager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	cfg, err := Decode(m.path, b)
	if err != nil {
		return nil, err
	}
	m.env.Apply(cfg)
	return cfg, nil
}

// Decode parses data as JSON, or YAML when path ends in .yaml/.yml.
func Decode(path string, data []byte) (*Config, error) {
	jb, format, err := coerceToJSONBytes(path, data)
	if err != nil {
		return nil, err
	}
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s config: %w", format, err)
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	return &cfg, nil
}

func (m *ConfigManager) Commit(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = hashConfig(cfg)
	m.mu.Unlock()
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *ConfigManager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *ConfigManager) Unsubscribe(ch chan *Config) {
	if ch == nil {
		return
	}
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s == ch {
			last := len(m.subs) - 1
			m.subs[i] = m.subs[last]
			m.subs[last] = nil
			m.subs = m.subs[:last]
			close(ch)
			return
		}
	}
}

// publish delivers the latest config to every subscriber. A full buffer loses
// its oldest entry rather than the new one.
func (m *ConfigManager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		select {
		case ch <- cfg:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- cfg:
		default:
			m.log.Debug("config update dropped (subscriber slow)", logx.Int("queue_cap", cap(ch)))
		}
	}
}

// reload parses the file and commits/publishes it when it changed and passes
// the validator.
func (m *ConfigManager) reload(ctx context.Context) {
	cfg, err := m.Parse()
	if err != nil {
		m.log.Warn("config parse failed", logx.String("path", m.path), logx.Err(err))
		return
	}
	h := hashConfig(cfg)
	m.mu.RLock()
	unchanged := h != 0 && h == m.lastHash
	m.mu.RUnlock()
	if unchanged {
		m.log.Debug("config unchanged; skipping publish", logx.String("path", m.path))
		return
	}
	if m.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := m.validator(vctx, cfg)
		cancel()
		if err != nil {
			m.log.Warn("config rejected", logx.String("path", m.path), logx.Err(err))
			return
		}
	}
	m.Commit(cfg)
	m.publish(cfg)
	m.log.Info("config reloaded", logx.String("path", m.path), logx.String("hash", fmt.Sprintf("%x", h)))
}

// Watch reloads the file on change until ctx is done. Reloads are debounced
// and run on the calling goroutine. A broken fsnotify watcher is recreated
// with jittered exponential backoff.
func (m *ConfigManager) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = restartBackoffBase
	bo.MaxInterval = restartBackoffMax
	bo.RandomizationFactor = 0.5
	pause := func(reason string, err error) bool {
		wait := bo.NextBackOff()
		m.log.Warn(reason, logx.String("dir", dir), logx.Duration("backoff", wait), logx.Err(err))
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-t.C:
			return true
		}
	}

	for ctx.Err() == nil {
		w, err := fsnotify.NewWatcher()
		if err == nil {
			if err = w.Add(dir); err != nil {
				_ = w.Close()
			}
		}
		if err != nil {
			if !pause("config watch setup failed", err) {
				return nil
			}
			continue
		}
		bo.Reset()
		m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

		err = m.watchLoop(ctx, w, file)
		_ = w.Close()
		if ctx.Err() != nil {
			return nil
		}
		if !pause("config watcher stopped; restarting", err) {
			return nil
		}
	}
	return nil
}

// watchLoop runs until ctx is done or the watcher breaks. A pending reload is
// flushed before returning on a broken watcher.
func (m *ConfigManager) watchLoop(ctx context.Context, w *fsnotify.Watcher, file string) error {
	debounce := time.NewTimer(reloadDebounce)
	debounce.Stop()
	defer debounce.Stop()
	pending := false
	arm := func() {
		debounce.Reset(reloadDebounce)
		pending = true
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-debounce.C:
			pending = false
			m.reload(ctx)
		case ev, ok := <-w.Events:
			if !ok {
				if pending {
					m.reload(ctx)
				}
				return errors.New("event channel closed")
			}
			// Editors often replace the file, so match by basename and accept any op.
			if strings.EqualFold(filepath.Base(ev.Name), file) {
				arm()
			}
		case err, ok := <-w.Errors:
			switch {
			case !ok:
				return errors.New("error channel closed")
			case err == nil:
			case errors.Is(err, fsnotify.ErrEventOverflow):
				m.log.Warn("config watch overflow; forcing reload", logx.Err(err))
				arm()
			case errors.Is(err, fsnotify.ErrClosed):
				return err
			default:
				m.log.Warn("config watch error", logx.Err(err))
			}
		}
	}
}
