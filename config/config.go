package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. GUILDHALL_SERVER_PORT.
const EnvPrefix = "GUILDHALL"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Security SecurityConfig `mapstructure:"security"`
	Guild    GuildConfig    `mapstructure:"guild"`
}

type ServerConfig struct {
	Port  int  `mapstructure:"port"`
	Debug bool `mapstructure:"debug"`
	// AdminKey guards /api/admin; empty disables those routes.
	AdminKey string `mapstructure:"admin_key"`
}

type DatabaseConfig struct {
	Mode         string        `mapstructure:"mode"` // memory | sqlite | mysql
	SQLitePath   string        `mapstructure:"sqlite_path"`
	MySQLDSN     string        `mapstructure:"mysql_dsn"`
	MySQLMaxOpen int           `mapstructure:"mysql_max_open"`
	MySQLMaxIdle int           `mapstructure:"mysql_max_idle"`
	MySQLMaxLife time.Duration `mapstructure:"mysql_max_life"`
}

type CacheConfig struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	LocalGCInterval time.Duration `mapstructure:"local_gc_interval"`
	LocalPubSubBuf  int           `mapstructure:"local_pubsub_buf"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	JWTTTLH        time.Duration `mapstructure:"jwt_ttl_h"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// AllowedOrigins lists the SSE origins that are permitted.
	// An empty slice allows all origins (useful for local development only).
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// AdminIPs restricts /api/admin to these addresses or CIDR ranges.
	AdminIPs []string `mapstructure:"admin_ips"`
	// MutationRPS and MutationBurst bound guild writes per user.
	MutationRPS   float64 `mapstructure:"mutation_rps"`
	MutationBurst int     `mapstructure:"mutation_burst"`
}

type GuildConfig struct {
	InvitationTTL      time.Duration `mapstructure:"invitation_ttl"`
	DefaultMaxMembers  int           `mapstructure:"default_max_members"`
	DefaultMemberLevel int           `mapstructure:"default_member_level"`
	DefaultMinRank     string        `mapstructure:"default_min_rank"`
	// ExpirySweepInterval persists expired invitation status; 0 disables it.
	ExpirySweepInterval    time.Duration `mapstructure:"expiry_sweep_interval"`
	RankingRefreshInterval time.Duration `mapstructure:"ranking_refresh_interval"`
	LockTTL                time.Duration `mapstructure:"lock_ttl"`
}

// Load reads config from the given YAML file path. A .env file in the
// working directory, when present, is loaded into the environment first,
// and GUILDHALL_* variables override file values.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.admin_key", "")
	v.SetDefault("database.mode", "sqlite")
	v.SetDefault("database.sqlite_path", "./data/guildhall.db")
	v.SetDefault("database.mysql_dsn", "")
	v.SetDefault("database.mysql_max_open", 50)
	v.SetDefault("database.mysql_max_idle", 10)
	v.SetDefault("database.mysql_max_life", "1h")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.local_gc_interval", "30s")
	v.SetDefault("cache.local_pubsub_buf", 256)
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.jwt_ttl_h", "72h")
	v.SetDefault("security.rate_limit_rps", 100)
	v.SetDefault("security.rate_limit_burst", 200)
	v.SetDefault("security.admin_ips", []string{"127.0.0.1", "::1"})
	v.SetDefault("security.mutation_rps", 5)
	v.SetDefault("security.mutation_burst", 20)
	v.SetDefault("guild.invitation_ttl", "168h")
	v.SetDefault("guild.default_max_members", 25)
	v.SetDefault("guild.default_member_level", 2)
	v.SetDefault("guild.default_min_rank", "G")
	v.SetDefault("guild.expiry_sweep_interval", "0s")
	v.SetDefault("guild.ranking_refresh_interval", "10m")
	v.SetDefault("guild.lock_ttl", "10s")
}
