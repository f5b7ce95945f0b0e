package playback

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// ErrUnavailable is returned by a Sensor when the browser does not expose
// the requested signal.
var ErrUnavailable = errors.New("playback: capability not available")

// lowBatteryLevel is the charge below which an unplugged device skips video.
const lowBatteryLevel = 0.2

// NetworkInfo is the Network Information API snapshot.
type NetworkInfo struct {
	// EffectiveType is one of slow-2g, 2g, 3g, 4g.
	EffectiveType string
	SaveData      bool
}

// Slow reports whether the connection is too slow for background video.
func (n NetworkInfo) Slow() bool {
	switch strings.ToLower(strings.TrimSpace(n.EffectiveType)) {
	case "slow-2g", "2g":
		return true
	}
	return false
}

// BatteryStatus is the Battery Status API snapshot.
type BatteryStatus struct {
	// Level is the charge in [0, 1].
	Level    float64
	Charging bool
}

// Low reports whether the battery should gate loading.
func (b BatteryStatus) Low() bool {
	return b.Level < lowBatteryLevel && !b.Charging
}

// Sensor answers capability queries.
type Sensor interface {
	Network(ctx context.Context) (NetworkInfo, error)
	Battery(ctx context.Context) (BatteryStatus, error)
}

// EvaluateLoadConditions reports whether the video may be loaded. Probing
// failures allow loading.
func EvaluateLoadConditions(ctx context.Context, p Sensor) bool {
	if p == nil {
		return true
	}

	if n, err := p.Network(ctx); err == nil {
		if n.SaveData || n.Slow() {
			return false
		}
	} else if !errors.Is(err, ErrUnavailable) {
		slog.Debug("Network information unavailable", "error", err)
	}

	if b, err := p.Battery(ctx); err == nil {
		if b.Low() {
			return false
		}
	} else if !errors.Is(err, ErrUnavailable) {
		slog.Debug("Battery status unavailable", "error", err)
	}

	return true
}

// StaticSensor answers from values captured elsewhere, e.g. client hints
// posted by the page. Nil fields are reported as unavailable.
type StaticSensor struct {
	NetworkInfo   *NetworkInfo
	BatteryStatus *BatteryStatus
}

// Network implements Sensor.
func (s StaticSensor) Network(context.Context) (NetworkInfo, error) {
	if s.NetworkInfo == nil {
		return NetworkInfo{}, ErrUnavailable
	}
	return *s.NetworkInfo, nil
}

// Battery implements Sensor.
func (s StaticSensor) Battery(context.Context) (BatteryStatus, error) {
	if s.BatteryStatus == nil {
		return BatteryStatus{}, ErrUnavailable
	}
	return *s.BatteryStatus, nil
}
