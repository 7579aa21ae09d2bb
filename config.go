package gins

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
)

// MapOrigin fixes the local-frame origin in UTM coordinates. When absent from
// the config, the origin is latched on the first valid GNSS fix.
type MapOrigin struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Config holds every tunable of the fusion pipeline. All sigmas are standard
// deviations, not variances.
type Config struct {
	WithOdom bool `json:"with_odom"`
	WithZUPT bool `json:"with_zupt"`

	// GNSS antenna extrinsics in the vehicle frame.
	AntennaPosX     float64 `json:"antenna_pos_x"`     // meters
	AntennaPosY     float64 `json:"antenna_pos_y"`     // meters
	AntennaAngleDeg float64 `json:"antenna_angle_deg"` // degrees

	MapOrigin *MapOrigin `json:"map_origin,omitempty"` // nil: latch on first fix

	WheelRadius  float64 `json:"wheel_radius"` // meters
	PulsesPerRev float64 `json:"pulses_per_rev"`
	OdomSpeedCap float64 `json:"odom_speed_cap"` // m/s; faster readings are ignored

	// Process noise.
	SigmaGyro     float64 `json:"sigma_gyro"` // rad/s/sqrt(s)
	SigmaAcc      float64 `json:"sigma_acc"`  // m/s^2/sqrt(s)
	SigmaGyroBias float64 `json:"sigma_bg"`
	SigmaAccBias  float64 `json:"sigma_ba"`

	// Measurement noise.
	SigmaGNSSPos     float64 `json:"sigma_gnss_pos"`     // meters
	SigmaGNSSHeading float64 `json:"sigma_gnss_heading"` // radians
	SigmaOdomVel     float64 `json:"sigma_odom_v"`       // m/s
	SigmaZUPT        float64 `json:"sigma_zupt"`         // m/s

	// Initial covariance, one sigma per error-state block.
	InitSigmaPos      float64 `json:"init_sigma_pos"`
	InitSigmaVel      float64 `json:"init_sigma_vel"`
	InitSigmaRot      float64 `json:"init_sigma_rot"`
	InitSigmaGyroBias float64 `json:"init_sigma_bg"`
	InitSigmaAccBias  float64 `json:"init_sigma_ba"`
	InitSigmaGravity  float64 `json:"init_sigma_g"`

	MaxIMUDt    float64 `json:"max_imu_dt"` // seconds
	IEKFMaxIter int     `json:"iekf_max_iter"`
	IEKFEps     float64 `json:"iekf_eps"`

	// Static / initialization gating.
	InitSamples       int     `json:"init_samples"`
	InitTimeout       float64 `json:"init_timeout"` // seconds of IMU data
	AssumeStaticInit  bool    `json:"assume_static_init"`
	AllowIdentityInit bool    `json:"allow_identity_init"`
	InitGyroVarMax    float64 `json:"init_gyro_var_max"`
	InitAccVarMax     float64 `json:"init_acc_var_max"`
	StaticWindow      int     `json:"static_window"`
	StaticGyroThresh  float64 `json:"static_gyro_thresh"` // rad/s
	StaticAccThresh   float64 `json:"static_acc_thresh"`  // m/s^2

	MaxBacktrack    float64 `json:"max_backtrack"`    // seconds; older GNSS dropped
	DivergenceTrace float64 `json:"divergence_trace"` // covariance-trace fatal threshold

	Gravity float64 `json:"gravity"` // m/s^2 magnitude
}

// DefaultConfig returns the reference tuning for a 100 Hz automotive IMU with
// RTK GNSS at 10 Hz.
func DefaultConfig() Config {
	return Config{
		WithOdom: false,
		WithZUPT: false,

		WheelRadius:  0.155,
		PulsesPerRev: 1024,
		OdomSpeedCap: 35,

		SigmaGyro:     1e-2,
		SigmaAcc:      1e-1,
		SigmaGyroBias: 1e-4,
		SigmaAccBias:  1e-3,

		SigmaGNSSPos:     0.1,
		SigmaGNSSHeading: 0.02,
		SigmaOdomVel:     0.05,
		SigmaZUPT:        0.01,

		InitSigmaPos:      0.1,
		InitSigmaVel:      0.1,
		InitSigmaRot:      0.01,
		InitSigmaGyroBias: 1e-4,
		InitSigmaAccBias:  1e-3,
		InitSigmaGravity:  1e-2,

		MaxIMUDt:    0.1,
		IEKFMaxIter: 3,
		IEKFEps:     1e-6,

		InitSamples:      200,
		InitTimeout:      30,
		InitGyroVarMax:   1e-4,
		InitAccVarMax:    1e-2,
		StaticWindow:     5,
		StaticGyroThresh: 0.02,
		StaticAccThresh:  0.1,

		MaxBacktrack:    0.05,
		DivergenceTrace: 1e6,

		Gravity: 9.81,
	}
}

// Validate checks the config before the driver starts; no partial runs.
func (c *Config) Validate(path string) error {
	for _, f := range []struct {
		name string
		val  float64
	}{
		{"sigma_gyro", c.SigmaGyro},
		{"sigma_acc", c.SigmaAcc},
		{"sigma_bg", c.SigmaGyroBias},
		{"sigma_ba", c.SigmaAccBias},
		{"sigma_gnss_pos", c.SigmaGNSSPos},
		{"sigma_gnss_heading", c.SigmaGNSSHeading},
		{"init_sigma_pos", c.InitSigmaPos},
		{"init_sigma_vel", c.InitSigmaVel},
		{"init_sigma_rot", c.InitSigmaRot},
		{"init_sigma_bg", c.InitSigmaGyroBias},
		{"init_sigma_ba", c.InitSigmaAccBias},
		{"init_sigma_g", c.InitSigmaGravity},
		{"max_imu_dt", c.MaxIMUDt},
		{"gravity", c.Gravity},
	} {
		if f.val <= 0 {
			return goutils.NewConfigValidationError(path,
				errors.Errorf("%s must be positive, got %v", f.name, f.val))
		}
	}

	if c.WithOdom {
		if c.WheelRadius <= 0 {
			return goutils.NewConfigValidationFieldRequiredError(path, "wheel_radius")
		}
		if c.PulsesPerRev <= 0 {
			return goutils.NewConfigValidationFieldRequiredError(path, "pulses_per_rev")
		}
		if c.SigmaOdomVel <= 0 {
			return goutils.NewConfigValidationFieldRequiredError(path, "sigma_odom_v")
		}
	}
	if c.WithZUPT && c.SigmaZUPT <= 0 {
		return goutils.NewConfigValidationFieldRequiredError(path, "sigma_zupt")
	}

	if c.IEKFMaxIter < 1 {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("iekf_max_iter must be at least 1, got %d", c.IEKFMaxIter))
	}
	if c.InitSamples < 2 {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("init_samples must be at least 2, got %d", c.InitSamples))
	}
	if c.StaticWindow < 1 {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("static_window must be at least 1, got %d", c.StaticWindow))
	}
	if c.MaxBacktrack < 0 {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("max_backtrack must be non-negative, got %v", c.MaxBacktrack))
	}
	return nil
}

// LoadConfig reads a JSON config file over the defaults and validates it.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "reading config")
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parsing config")
	}
	if err := cfg.Validate(path); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
