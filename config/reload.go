// 配置文件热重载。
//
// 轮询配置文件修改时间，变更后重新加载、验证并通知回调。
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"
)

// --- 类型定义 ---

// Change 描述一个字段的变更
type Change struct {
	Path     string `json:"path"`
	OldValue any    `json:"old_value"`
	NewValue any    `json:"new_value"`
}

// ReloadCallback 在新配置生效后调用
type ReloadCallback func(old, current *Config, changes []Change)

// ReloaderOption 配置 Reloader
type ReloaderOption func(*Reloader)

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) ReloaderOption {
	return func(r *Reloader) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithReloaderLogger 设置日志记录器
func WithReloaderLogger(logger *zap.Logger) ReloaderOption {
	return func(r *Reloader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// ErrNoConfigFile 未指定配置文件时无法热重载
var ErrNoConfigFile = errors.New("config: reloader needs a config file path")

// Reloader watches the loader's config file and swaps in valid new configs.
type Reloader struct {
	loader   *Loader
	interval time.Duration
	logger   *zap.Logger

	mu        sync.RWMutex
	current   *Config
	version   int
	lastMod   time.Time
	callbacks []ReloadCallback

	stop chan struct{}
	done chan struct{}
}

// NewReloader 创建热重载器，current 为已加载的配置
func NewReloader(loader *Loader, current *Config, opts ...ReloaderOption) (*Reloader, error) {
	if loader.ConfigPath() == "" {
		return nil, ErrNoConfigFile
	}
	r := &Reloader{
		loader:   loader,
		interval: 2 * time.Second,
		logger:   zap.NewNop(),
		current:  current,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "config_reloader"))
	if info, err := os.Stat(loader.ConfigPath()); err == nil {
		r.lastMod = info.ModTime()
	}
	return r, nil
}

// OnReload 注册回调
func (r *Reloader) OnReload(cb ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

// Current 返回当前生效的配置
func (r *Reloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Version 返回成功重载的次数
func (r *Reloader) Version() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// Start 启动轮询
func (r *Reloader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.stop != nil {
		r.mu.Unlock()
		return fmt.Errorf("reloader already running")
	}
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	stop, done := r.stop, r.done
	r.mu.Unlock()

	go r.pollLoop(ctx, stop, done)
	r.logger.Info("config reloader started",
		zap.String("path", r.loader.ConfigPath()),
		zap.Duration("interval", r.interval))
	return nil
}

// Stop 停止轮询并等待退出
func (r *Reloader) Stop() {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (r *Reloader) pollLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if !r.modified() {
				continue
			}
			if _, err := r.Reload(); err != nil {
				r.logger.Warn("config reload rejected, keeping current config", zap.Error(err))
			}
		}
	}
}

func (r *Reloader) modified() bool {
	info, err := os.Stat(r.loader.ConfigPath())
	if err != nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !info.ModTime().After(r.lastMod) {
		return false
	}
	r.lastMod = info.ModTime()
	return true
}

// Reload 立即重新加载并返回生效的变更；新配置无效时保持旧配置
func (r *Reloader) Reload() ([]Change, error) {
	next, err := r.loader.Load()
	if err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	old := r.current
	changes := Diff(old, next)
	if len(changes) == 0 {
		r.mu.Unlock()
		return nil, nil
	}
	r.current = next
	r.version++
	version := r.version
	callbacks := make([]ReloadCallback, len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.mu.Unlock()

	for _, c := range changes {
		r.logger.Info("configuration changed", zap.String("path", c.Path))
	}
	r.logger.Info("config reloaded", zap.Int("version", version), zap.Int("changes", len(changes)))

	for _, cb := range callbacks {
		r.notify(cb, old, next, changes)
	}
	return changes, nil
}

func (r *Reloader) notify(cb ReloadCallback, old, next *Config, changes []Change) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("reload callback panicked", zap.Any("panic", p))
		}
	}()
	cb(old, next, changes)
}

// --- 变更检测 ---

// Diff 返回两个配置之间变化的字段（按 Go 字段路径）
func Diff(old, next *Config) []Change {
	var changes []Change
	compareStructs("", reflect.ValueOf(old).Elem(), reflect.ValueOf(next).Elem(), &changes)
	return changes
}

func compareStructs(prefix string, oldVal, newVal reflect.Value, changes *[]Change) {
	t := oldVal.Type()
	for i := 0; i < oldVal.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		path := field.Name
		if prefix != "" {
			path = prefix + "." + field.Name
		}

		oldField, newField := oldVal.Field(i), newVal.Field(i)
		if oldField.Kind() == reflect.Struct {
			compareStructs(path, oldField, newField, changes)
			continue
		}
		if !reflect.DeepEqual(oldField.Interface(), newField.Interface()) {
			*changes = append(*changes, Change{
				Path:     path,
				OldValue: oldField.Interface(),
				NewValue: newField.Interface(),
			})
		}
	}
}
