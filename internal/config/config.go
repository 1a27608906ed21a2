package config

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"time"
)

// ErrValidateConfig indicates that the configuration, or a requested change to it, is invalid.
var ErrValidateConfig = errors.New("configuration validation failed")

var (
	ErrInvalidUnit     = fmt.Errorf("%w: invalid time unit", ErrValidateConfig)
	ErrInvalidCadence  = fmt.Errorf("%w: invalid date type", ErrValidateConfig)
	ErrInvalidMode     = fmt.Errorf("%w: invalid backup mode", ErrValidateConfig)
	ErrInvalidTier     = fmt.Errorf("%w: invalid compression level", ErrValidateConfig)
	ErrInvalidInterval = fmt.Errorf("%w: invalid interval", ErrValidateConfig)
)

// Mode selects which set of schedule parameters is authoritative.
type Mode string

const (
	ModeInterval Mode = "interval"
	ModeDate     Mode = "date"
)

// ParseMode validates a schedule mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeInterval, ModeDate:
		return m, nil
	}
	return "", fmt.Errorf("%w %q, valid values: interval, date", ErrInvalidMode, s)
}

// Unit is the unit of the auto backup interval.
type Unit string

const (
	UnitSeconds Unit = "s"
	UnitMinutes Unit = "m"
	UnitHours   Unit = "h"
	UnitDays    Unit = "d"
)

var unitSeconds = map[Unit]int64{
	UnitSeconds: 1,
	UnitMinutes: 60,
	UnitHours:   3600,
	UnitDays:    86400,
}

// ParseUnit validates an interval unit.
func ParseUnit(s string) (Unit, error) {
	u := Unit(strings.TrimSpace(s))
	if _, ok := unitSeconds[u]; ok {
		return u, nil
	}
	return "", fmt.Errorf("%w %q, valid values: s, m, h, d", ErrInvalidUnit, s)
}

// Seconds returns how many seconds one unit lasts.
func (u Unit) Seconds() int64 {
	return unitSeconds[u]
}

// MaxInterval is the largest interval in u that still fits in a time.Duration.
func (u Unit) MaxInterval() int64 {
	return math.MaxInt64 / int64(time.Second) / u.Seconds()
}

// Cadence is the calendar class used in date mode.
type Cadence string

const (
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
)

// ParseCadence validates a date type.
func ParseCadence(s string) (Cadence, error) {
	switch c := Cadence(strings.ToLower(strings.TrimSpace(s))); c {
	case CadenceDaily, CadenceWeekly, CadenceMonthly:
		return c, nil
	}
	return "", fmt.Errorf("%w %q, valid values: monthly, weekly, daily", ErrInvalidCadence, s)
}

// Describe returns a human readable description of when the cadence fires.
func (c Cadence) Describe() string {
	switch c {
	case CadenceMonthly:
		return "monthly on the 1st at 01:00"
	case CadenceWeekly:
		return "weekly on Monday at 01:00"
	default:
		return "daily at 01:00"
	}
}

// Tier is the archive compression tier.
type Tier string

const (
	TierSpeed Tier = "speed"
	TierBest  Tier = "best"
)

// ParseTier validates a compression tier name.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case TierSpeed, TierBest:
		return t, nil
	}
	return "", fmt.Errorf("%w %q, valid values: speed, best", ErrInvalidTier, s)
}

// Describe returns a short description of the tier.
func (t Tier) Describe() string {
	switch t {
	case TierSpeed:
		return "fastest (store only)"
	case TierBest:
		return "best ratio (lzma)"
	default:
		return "unknown"
	}
}

// Server connection modes.
const (
	ServerModeProcess = "process"
	ServerModeRCON    = "rcon"
)

// ServerConfig describes how to reach the game server console.
type ServerConfig struct {
	Mode                  string   `mapstructure:"mode"                     json:"mode"`
	Command               []string `mapstructure:"command"                  json:"command"`
	RCONAddress           string   `mapstructure:"rcon_address"             json:"rcon_address"`
	RCONPassword          string   `mapstructure:"rcon_password"            json:"rcon_password"`
	RCONPasswordVaultPath string   `mapstructure:"rcon_password_vault_path" json:"rcon_password_vault_path"`
	VaultAddress          string   `mapstructure:"vault_address"            json:"vault_address"`
	VaultRoleID           string   `mapstructure:"vault_role_id"            json:"vault_role_id"`
	VaultRoleName         string   `mapstructure:"vault_role_name"          json:"vault_role_name"`
	LogFile               string   `mapstructure:"log_file"                 json:"log_file"`
}

// Config is the persisted plugin configuration.
type Config struct {
	TurnOffAutoSave   bool     `mapstructure:"turn_off_auto_save"  json:"turn_off_auto_save"`
	IgnoreSessionLock bool     `mapstructure:"ignore_session_lock" json:"ignore_session_lock"`
	BackupPath        string   `mapstructure:"backup_path"         json:"backup_path"`
	ServerPath        string   `mapstructure:"server_path"         json:"server_path"`
	WorldNames        []string `mapstructure:"world_names"         json:"world_names"`

	AutoBackupEnabled  bool    `mapstructure:"auto_backup_enabled"   json:"auto_backup_enabled"`
	AutoBackupMode     Mode    `mapstructure:"auto_backup_mode"      json:"auto_backup_mode"`
	AutoBackupInterval int     `mapstructure:"auto_backup_interval"  json:"auto_backup_interval"`
	AutoBackupUnit     Unit    `mapstructure:"auto_backup_unit"      json:"auto_backup_unit"`
	AutoBackupDateType Cadence `mapstructure:"auto_backup_date_type" json:"auto_backup_date_type"`
	CompressionLevel   Tier    `mapstructure:"compression_level"     json:"compression_level"`

	MinimumPermissionLevel map[string]int `mapstructure:"minimum_permission_level" json:"minimum_permission_level"`
	// Permissions maps lower-cased player names to permission levels.
	Permissions map[string]int `mapstructure:"permissions" json:"permissions"`

	Server        ServerConfig `mapstructure:"server"         json:"server"`
	MetricsListen string       `mapstructure:"metrics_listen" json:"metrics_listen"`
	Timezone      string       `mapstructure:"timezone"       json:"timezone"`
}

// Default returns the configuration written on first start.
func Default() Config {
	return Config{
		TurnOffAutoSave:    true,
		IgnoreSessionLock:  true,
		BackupPath:         "./perma_backup",
		ServerPath:         "./server",
		WorldNames:         []string{"world"},
		AutoBackupEnabled:  true,
		AutoBackupMode:     ModeInterval,
		AutoBackupInterval: 3600,
		AutoBackupUnit:     UnitSeconds,
		AutoBackupDateType: CadenceDaily,
		CompressionLevel:   TierBest,
		MinimumPermissionLevel: map[string]int{
			"make":          2,
			"list":          0,
			"listall":       2,
			"stats":         0,
			"time.enable":   3,
			"time.disable":  3,
			"time.interval": 3,
			"time.date":     3,
			"time.change":   3,
			"ziplevel":      3,
		},
		Permissions: map[string]int{},
		Server: ServerConfig{
			Mode:    ServerModeProcess,
			Command: []string{"java", "-Xmx2G", "-jar", "server.jar", "nogui"},
			LogFile: "logs/latest.log",
		},
	}
}

// DefaultPermissionLevel applies to commands missing from MinimumPermissionLevel.
const DefaultPermissionLevel = 2

// RequiredLevel returns the minimum permission level for the named command.
func (c Config) RequiredLevel(command string) int {
	if lvl, ok := c.MinimumPermissionLevel[command]; ok {
		return lvl
	}
	return DefaultPermissionLevel
}

// Interval returns the auto backup interval as a duration.
func (c Config) Interval() time.Duration {
	return time.Duration(int64(c.AutoBackupInterval)*c.AutoBackupUnit.Seconds()) * time.Second
}

// Location returns the timezone calendar triggers are evaluated in.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrValidateConfig, c.Timezone, err)
	}
	return loc, nil
}

// Validate checks every enumerated field and the required paths.
func (c Config) Validate() error {
	if _, err := ParseMode(string(c.AutoBackupMode)); err != nil {
		return err
	}
	if _, err := ParseUnit(string(c.AutoBackupUnit)); err != nil {
		return err
	}
	if _, err := ParseCadence(string(c.AutoBackupDateType)); err != nil {
		return err
	}
	if _, err := ParseTier(string(c.CompressionLevel)); err != nil {
		return err
	}
	if c.AutoBackupInterval <= 0 {
		return fmt.Errorf("%w %d, must be a positive number", ErrInvalidInterval, c.AutoBackupInterval)
	}
	if limit := c.AutoBackupUnit.MaxInterval(); int64(c.AutoBackupInterval) > limit {
		return fmt.Errorf("%w %d%s, must be at most %d%s",
			ErrInvalidInterval, c.AutoBackupInterval, c.AutoBackupUnit, limit, c.AutoBackupUnit)
	}
	if strings.TrimSpace(c.BackupPath) == "" {
		return fmt.Errorf("%w: backup_path is required", ErrValidateConfig)
	}
	if strings.TrimSpace(c.ServerPath) == "" {
		return fmt.Errorf("%w: server_path is required", ErrValidateConfig)
	}
	if len(c.WorldNames) == 0 {
		return fmt.Errorf("%w: world_names must name at least one directory", ErrValidateConfig)
	}
	switch c.Server.Mode {
	case ServerModeProcess, ServerModeRCON:
	default:
		return fmt.Errorf("%w: server.mode %q, valid values: process, rcon", ErrValidateConfig, c.Server.Mode)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Clone returns a deep copy so callers never share slices or maps with the store.
func (c Config) Clone() Config {
	out := c
	out.WorldNames = slices.Clone(c.WorldNames)
	out.MinimumPermissionLevel = maps.Clone(c.MinimumPermissionLevel)
	out.Permissions = maps.Clone(c.Permissions)
	out.Server.Command = slices.Clone(c.Server.Command)
	return out
}
