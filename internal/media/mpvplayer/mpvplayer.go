// Package mpvplayer implements the audio backend on top of mpv's JSON-IPC
// protocol. Each player owns one mpv process with a private socket; Close
// terminates the process, which keeps clip lifetimes strictly disjoint.
package mpvplayer

import (
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/orgball2608/story-viewer-engine/internal/media"
	"github.com/orgball2608/story-viewer-engine/pkg/config"
	"github.com/orgball2608/story-viewer-engine/pkg/logger"
	"go.uber.org/fx"
)

const (
	socketWaitRetries = 10
	socketWaitDelay   = 300 * time.Millisecond
)

type FactoryOpts struct {
	fx.In

	Config *config.Config
	Logger logger.Logger
}

type Factory struct {
	mpvPath    string
	socketBase string
	logger     logger.Logger
}

func NewFactory(opts FactoryOpts) *Factory {
	socketBase := opts.Config.Media.SocketPath
	if socketBase == "" {
		socketBase = filepath.Join(os.TempDir(), "story-viewer-mpv.sock")
	}
	return &Factory{
		mpvPath:    opts.Config.Media.MpvPath,
		socketBase: socketBase,
		logger:     opts.Logger,
	}
}

var _ media.Factory = (*Factory)(nil)

func (f *Factory) NewPlayer() media.AudioPlayer {
	return &Player{
		mpvPath:    f.mpvPath,
		socketBase: f.socketBase,
		logger:     f.logger,
	}
}

// Player is a single-use mpv instance playing one audio clip.
type Player struct {
	mpvPath    string
	socketBase string
	logger     logger.Logger
	socketPath string
	cmd        *exec.Cmd
	exited     chan struct{}
	closed     bool
}

var _ media.AudioPlayer = (*Player)(nil)

// Load starts mpv paused on the given URL and returns once the IPC socket
// answers and track metadata (duration) is known. Seeks issued before Load
// returns would be undefined, which is why the synchronizer waits for it.
func (p *Player) Load(ctx context.Context, url string) error {
	// one socket per player; clips never share an mpv instance
	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return fmt.Errorf("generate socket name: %w", err)
	}
	p.socketPath = fmt.Sprintf("%s.%x", p.socketBase, randomBytes)

	args := []string{
		"--no-terminal",
		"--really-quiet",
		"--no-video",
		"--pause",
		fmt.Sprintf("--input-ipc-server=%s", p.socketPath),
		url,
	}

	p.cmd = exec.CommandContext(ctx, p.mpvPath, args...)
	p.cmd.Stdout = nil
	p.cmd.Stderr = nil
	p.cmd.Stdin = nil

	if err := p.cmd.Start(); err != nil {
		return fmt.Errorf("start mpv: %w", err)
	}

	p.exited = make(chan struct{})
	go func() {
		_ = p.cmd.Wait()
		close(p.exited)
	}()

	if err := p.waitForSocket(ctx); err != nil {
		p.kill()
		return fmt.Errorf("mpv socket not ready: %w", err)
	}
	if err := p.waitForMetadata(ctx); err != nil {
		p.kill()
		return fmt.Errorf("clip metadata not available: %w", err)
	}
	return nil
}

func (p *Player) Play() error {
	return p.setProperty("pause", false)
}

func (p *Player) Pause() error {
	return p.setProperty("pause", true)
}

func (p *Player) Seek(seconds float64) error {
	_, err := p.sendCommand([]interface{}{"seek", seconds, "absolute"})
	return err
}

func (p *Player) Position() (float64, error) {
	return p.getFloatProperty("time-pos")
}

func (p *Player) SetMuted(muted bool) error {
	return p.setProperty("mute", muted)
}

// Close shuts the mpv process down. Safe to call more than once.
func (p *Player) Close() error {
	if p.closed || p.cmd == nil {
		return nil
	}
	p.closed = true

	if _, err := p.sendCommand([]interface{}{"quit"}); err != nil {
		p.kill()
	} else {
		select {
		case <-p.exited:
		case <-time.After(2 * time.Second):
			p.kill()
		}
	}

	_ = os.Remove(p.socketPath)
	return nil
}

func (p *Player) kill() {
	if p.cmd == nil || p.cmd.Process == nil {
		return
	}
	select {
	case <-p.exited:
	default:
		p.logger.Warn("Killing unresponsive mpv process", "socket", p.socketPath)
		_ = p.cmd.Process.Kill()
	}
}

// waitForSocket polls until the mpv IPC socket is accepting connections.
func (p *Player) waitForSocket(ctx context.Context) error {
	for i := 0; i < socketWaitRetries; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.exited:
			return fmt.Errorf("mpv exited before socket was ready")
		case <-time.After(socketWaitDelay):
		}

		conn, err := net.Dial("unix", p.socketPath)
		if err == nil {
			conn.Close()
			return nil
		}
	}
	return fmt.Errorf("socket %s not ready after %d attempts", p.socketPath, socketWaitRetries)
}

// waitForMetadata polls the duration property, which mpv exposes only after
// the track's metadata is loaded.
func (p *Player) waitForMetadata(ctx context.Context) error {
	for i := 0; i < socketWaitRetries; i++ {
		if dur, err := p.getFloatProperty("duration"); err == nil && dur > 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.exited:
			return fmt.Errorf("mpv exited while loading metadata")
		case <-time.After(socketWaitDelay):
		}
	}
	return fmt.Errorf("duration not reported after %d attempts", socketWaitRetries)
}

func (p *Player) setProperty(name string, value interface{}) error {
	_, err := p.sendCommand([]interface{}{"set_property", name, value})
	return err
}

func (p *Player) getFloatProperty(name string) (float64, error) {
	data, err := p.sendCommand([]interface{}{"get_property", name})
	if err != nil {
		return 0, err
	}
	value, ok := data.(float64)
	if !ok {
		return 0, fmt.Errorf("property %s is not a number: %T", name, data)
	}
	return value, nil
}
