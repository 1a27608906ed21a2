package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// ErrLoadConfig indicates a failure to read or parse the JSON configuration.
var ErrLoadConfig = errors.New("config load failed")

// DefaultPath is where the configuration lives relative to the working directory.
const DefaultPath = "config/zip_backup.json"

// EnvPrefix prefixes environment overrides, e.g. ZIPBACKUP_BACKUP_PATH.
const EnvPrefix = "ZIPBACKUP"

// keyDelimiter replaces viper's "." so permission keys such as "time.enable" stay flat.
const keyDelimiter = "::"

// Load reads the configuration from the given JSON file using Viper, layered
// over Default() and environment overrides, and validates the result.
// A missing file is not an error: the defaults are returned and created reports true.
func Load(path string) (cfg Config, created bool, err error) {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if _, statErr := os.Stat(path); statErr != nil {
		if !errors.Is(statErr, fs.ErrNotExist) {
			return Config{}, false, fmt.Errorf("%w: stat %s: %v", ErrLoadConfig, path, statErr)
		}
		created = true
	} else if err := v.ReadInConfig(); err != nil {
		return Config{}, false, fmt.Errorf("%w: read config %s: %v", ErrLoadConfig, path, err)
	}

	if err := v.UnmarshalExact(&cfg); err != nil {
		return Config{}, false, fmt.Errorf("%w: unmarshal config: %v", ErrLoadConfig, err)
	}
	normalize(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, false, err
	}
	return cfg, created, nil
}

// setDefaults registers every field of d so that env overrides and
// UnmarshalExact see the complete key set.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("turn_off_auto_save", d.TurnOffAutoSave)
	v.SetDefault("ignore_session_lock", d.IgnoreSessionLock)
	v.SetDefault("backup_path", d.BackupPath)
	v.SetDefault("server_path", d.ServerPath)
	v.SetDefault("world_names", d.WorldNames)
	v.SetDefault("auto_backup_enabled", d.AutoBackupEnabled)
	v.SetDefault("auto_backup_mode", string(d.AutoBackupMode))
	v.SetDefault("auto_backup_interval", d.AutoBackupInterval)
	v.SetDefault("auto_backup_unit", string(d.AutoBackupUnit))
	v.SetDefault("auto_backup_date_type", string(d.AutoBackupDateType))
	v.SetDefault("compression_level", string(d.CompressionLevel))
	for name, lvl := range d.MinimumPermissionLevel {
		v.SetDefault("minimum_permission_level"+keyDelimiter+name, lvl)
	}
	v.SetDefault("permissions", d.Permissions)
	v.SetDefault("server"+keyDelimiter+"mode", d.Server.Mode)
	v.SetDefault("server"+keyDelimiter+"command", d.Server.Command)
	v.SetDefault("server"+keyDelimiter+"rcon_address", d.Server.RCONAddress)
	v.SetDefault("server"+keyDelimiter+"rcon_password", d.Server.RCONPassword)
	v.SetDefault("server"+keyDelimiter+"rcon_password_vault_path", d.Server.RCONPasswordVaultPath)
	v.SetDefault("server"+keyDelimiter+"vault_address", d.Server.VaultAddress)
	v.SetDefault("server"+keyDelimiter+"vault_role_id", d.Server.VaultRoleID)
	v.SetDefault("server"+keyDelimiter+"vault_role_name", d.Server.VaultRoleName)
	v.SetDefault("server"+keyDelimiter+"log_file", d.Server.LogFile)
	v.SetDefault("metrics_listen", d.MetricsListen)
	v.SetDefault("timezone", d.Timezone)
}

// normalize lower-cases enumerations and player names so lookups are case-insensitive.
func normalize(c *Config) {
	c.AutoBackupMode = Mode(strings.ToLower(string(c.AutoBackupMode)))
	c.AutoBackupDateType = Cadence(strings.ToLower(string(c.AutoBackupDateType)))
	c.CompressionLevel = Tier(strings.ToLower(string(c.CompressionLevel)))
	c.Server.Mode = strings.ToLower(c.Server.Mode)

	if c.Permissions == nil {
		c.Permissions = map[string]int{}
	}
	players := make(map[string]int, len(c.Permissions))
	for name, lvl := range c.Permissions {
		players[strings.ToLower(name)] = lvl
	}
	c.Permissions = players
}
