// Package device queries and drives the phone through the termux-api tools.
package device

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const DefaultTimeout = 10 * time.Second

var (
	ErrUnavailable = errors.New("device command unavailable")
	ErrTimeout     = errors.New("device command timed out")
	ErrFailed      = errors.New("device command failed")
)

// Executor runs an OS command and returns its standard output
type Executor interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Shell executes commands with a per-command time limit
type Shell struct {
	Timeout time.Duration
}

func (s Shell) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := exec.LookPath(name); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, name)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, name)
		}
		return nil, fmt.Errorf("%w: %s: %v: %s", ErrFailed, name, err, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.Bytes(), nil
}

// Battery is the output of termux-battery-status
type Battery struct {
	Percentage  int     `json:"percentage"`
	Status      string  `json:"status"`
	Health      string  `json:"health"`
	Plugged     string  `json:"plugged"`
	Temperature float64 `json:"temperature"`
}

// WiFi is the output of termux-wifi-connectioninfo
type WiFi struct {
	SSID      string `json:"ssid"`
	BSSID     string `json:"bssid"`
	IP        string `json:"ip"`
	Frequency int    `json:"frequency_mhz"`
	LinkSpeed int    `json:"link_speed_mbps"`
	RSSI      int    `json:"rssi"`
	State     string `json:"supplicant_state"`
}

// Controller exposes the device commands
type Controller struct {
	exec Executor
	log  *zap.Logger
}

func NewController(exec Executor, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{exec: exec, log: log.Named("device")}
}

func (c *Controller) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := c.exec.Run(ctx, name, args...)
	if err != nil {
		c.log.Debug("device command failed", zap.String("command", name), zap.Error(err))
		return nil, err
	}
	return out, nil
}

func (c *Controller) Battery(ctx context.Context) (*Battery, error) {
	out, err := c.run(ctx, "termux-battery-status")
	if err != nil {
		return nil, err
	}
	var b Battery
	if err := json.Unmarshal(out, &b); err != nil {
		return nil, fmt.Errorf("%w: bad battery status: %v", ErrFailed, err)
	}
	return &b, nil
}

// Vibrate vibrates for d (termux clamps it to a few seconds)
func (c *Controller) Vibrate(ctx context.Context, d time.Duration) error {
	ms := d.Milliseconds()
	if ms <= 0 {
		ms = 500
	}
	_, err := c.run(ctx, "termux-vibrate", "-d", strconv.FormatInt(ms, 10))
	return err
}

func (c *Controller) Torch(ctx context.Context, on bool) error {
	state := "off"
	if on {
		state = "on"
	}
	_, err := c.run(ctx, "termux-torch", state)
	return err
}

func (c *Controller) WiFi(ctx context.Context) (*WiFi, error) {
	out, err := c.run(ctx, "termux-wifi-connectioninfo")
	if err != nil {
		return nil, err
	}
	var w WiFi
	if err := json.Unmarshal(out, &w); err != nil {
		return nil, fmt.Errorf("%w: bad wifi info: %v", ErrFailed, err)
	}
	return &w, nil
}
