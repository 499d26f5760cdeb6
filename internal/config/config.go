package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the dialer process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Dialer DialerConfig
	VoIP   VoIPConfig
}

type AppConfig struct {
	Env  string
	Port int
}

// DBConfig points at the call directory database. Outside production an
// empty host selects the in-memory directory.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

// RedisConfig points at the redis holding line leases. Outside production an
// empty host disables the lease.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// AgentPasswordHash is the bcrypt hash the dialer's agent logs in with.
	AgentPasswordHash string
}

type DialerConfig struct {
	AgentID       string
	PollInterval  time.Duration
	AutoDialPause time.Duration
	LeaseTTL      time.Duration

	// AllowedOrigins lists browser origins allowed on the event websocket.
	// Empty allows any origin outside production.
	AllowedOrigins []string
}

const (
	VoIPModeDemo = "demo"
	VoIPModeProd = "prod"
)

type VoIPConfig struct {
	Mode            string
	PBXIP           string
	WebsocketServer string
	Login           string
	Password        string

	ExternalPhone  string
	AlwaysTransfer bool

	// RingNumber is how many rings an outbound call may take before it is
	// given up.
	RingNumber int

	ListenAddr    string
	Transport     string
	AdvertiseHost string
	MediaPort     int
}

// ringPeriod is the length of one ring cadence.
const ringPeriod = 5 * time.Second

func (v VoIPConfig) RingTimeout() time.Duration {
	return time.Duration(v.RingNumber) * ringPeriod
}

func (v VoIPConfig) IsDemo() bool { return v.Mode == VoIPModeDemo }

// SignalingHost is the host SIP requests are addressed to. Websocket
// transports reach the PBX through VOIP_WEBSOCKET_SERVER when it is set.
func (v VoIPConfig) SignalingHost() string {
	if (v.Transport == "ws" || v.Transport == "wss") && v.WebsocketServer != "" {
		if u, err := url.Parse(v.WebsocketServer); err == nil && u.Host != "" {
			return u.Host
		}
	}
	return v.PBXIP
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port, parseErrs = requiredInt(parseErrs, "APP_PORT")

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port, parseErrs = optionalInt(parseErrs, "DB_PORT")
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port, parseErrs = optionalInt(parseErrs, "REDIS_PORT")
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL, parseErrs = optionalDuration(parseErrs, "JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL, parseErrs = optionalDuration(parseErrs, "JWT_REFRESH_TTL")
	c.Auth.AgentPasswordHash = strings.TrimSpace(os.Getenv("AUTH_AGENT_PASSWORD_HASH"))

	c.Dialer.AgentID = strings.TrimSpace(os.Getenv("DIALER_AGENT_ID"))
	c.Dialer.PollInterval, parseErrs = optionalDuration(parseErrs, "DIALER_POLL_INTERVAL")
	c.Dialer.AutoDialPause, parseErrs = optionalDuration(parseErrs, "DIALER_AUTODIAL_PAUSE")
	c.Dialer.LeaseTTL, parseErrs = optionalDuration(parseErrs, "DIALER_LEASE_TTL")
	c.Dialer.AllowedOrigins = splitList(os.Getenv("DIALER_ALLOWED_ORIGINS"))

	c.VoIP.Mode = strings.TrimSpace(os.Getenv("VOIP_MODE"))
	c.VoIP.PBXIP = strings.TrimSpace(os.Getenv("VOIP_PBX_IP"))
	c.VoIP.WebsocketServer = strings.TrimSpace(os.Getenv("VOIP_WEBSOCKET_SERVER"))
	c.VoIP.Login = strings.TrimSpace(os.Getenv("VOIP_LOGIN"))
	c.VoIP.Password = os.Getenv("VOIP_PASSWORD")
	c.VoIP.ExternalPhone = strings.TrimSpace(os.Getenv("VOIP_EXTERNAL_PHONE"))
	c.VoIP.AlwaysTransfer, parseErrs = optionalBool(parseErrs, "VOIP_ALWAYS_TRANSFER")
	c.VoIP.RingNumber, parseErrs = optionalInt(parseErrs, "VOIP_RING_NUMBER")
	c.VoIP.ListenAddr = strings.TrimSpace(os.Getenv("VOIP_SIP_LISTEN"))
	c.VoIP.Transport = strings.TrimSpace(os.Getenv("VOIP_SIP_TRANSPORT"))
	c.VoIP.AdvertiseHost = strings.TrimSpace(os.Getenv("VOIP_ADVERTISE_HOST"))
	c.VoIP.MediaPort, parseErrs = optionalInt(parseErrs, "VOIP_MEDIA_PORT")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// ApplyDefaults fills optional values. Production must still set the
// security-relevant ones explicitly; Validate enforces that.
func (c *Config) ApplyDefaults() {
	if c.DB.Host != "" {
		if c.DB.Port == 0 {
			c.DB.Port = 5432
		}
		if c.DB.SSLMode == "" && !c.IsProduction() {
			c.DB.SSLMode = "disable"
		}
	}
	if c.Redis.Host != "" && c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}

	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}

	if c.Dialer.PollInterval == 0 {
		c.Dialer.PollInterval = 30 * time.Second
	}
	if c.Dialer.LeaseTTL <= 0 {
		c.Dialer.LeaseTTL = 2 * time.Minute
	}

	if c.VoIP.Mode == "" {
		c.VoIP.Mode = VoIPModeDemo
	}
	if c.VoIP.PBXIP == "" {
		c.VoIP.PBXIP = "localhost"
	}
	if c.VoIP.RingNumber == 0 {
		c.VoIP.RingNumber = 6
	}
	if c.VoIP.ListenAddr == "" {
		c.VoIP.ListenAddr = "0.0.0.0:5060"
	}
	if c.VoIP.Transport == "" {
		c.VoIP.Transport = "udp"
	}
}

func (c Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if !validPort(c.App.Port) {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_HOST is required in production"))
		}
	} else {
		if !validPort(c.DB.Port) {
			errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
		}
		if c.DB.User == "" {
			errs = append(errs, errors.New("DB_USER is required"))
		}
		if c.DB.Name == "" {
			errs = append(errs, errors.New("DB_NAME is required"))
		}
		if c.DB.SSLMode == "" {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else if !isValidSSLMode(c.DB.SSLMode) {
			errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
		}
	}

	if c.Redis.Host == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("REDIS_HOST is required in production"))
		}
	} else if !validPort(c.Redis.Port) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AgentPasswordHash == "" {
		errs = append(errs, errors.New("AUTH_AGENT_PASSWORD_HASH is required"))
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Dialer.AgentID == "" {
		errs = append(errs, errors.New("DIALER_AGENT_ID is required"))
	}
	if c.Dialer.PollInterval < 0 {
		errs = append(errs, errors.New("DIALER_POLL_INTERVAL must not be negative"))
	}
	if c.Dialer.AutoDialPause < 0 {
		errs = append(errs, errors.New("DIALER_AUTODIAL_PAUSE must not be negative"))
	}

	switch c.VoIP.Mode {
	case VoIPModeDemo:
	case VoIPModeProd:
		if c.VoIP.Login == "" {
			errs = append(errs, errors.New("VOIP_LOGIN is required in prod mode"))
		}
		if c.VoIP.AdvertiseHost == "" {
			errs = append(errs, errors.New("VOIP_ADVERTISE_HOST is required in prod mode"))
		}
		if _, _, err := net.SplitHostPort(c.VoIP.ListenAddr); err != nil {
			errs = append(errs, fmt.Errorf("VOIP_SIP_LISTEN must be host:port, got %q", c.VoIP.ListenAddr))
		}
	default:
		errs = append(errs, fmt.Errorf("VOIP_MODE must be one of demo, prod, got %q", c.VoIP.Mode))
	}
	if c.VoIP.RingNumber < 1 {
		errs = append(errs, fmt.Errorf("VOIP_RING_NUMBER must be positive, got %d", c.VoIP.RingNumber))
	}
	if c.VoIP.AlwaysTransfer && c.VoIP.ExternalPhone == "" {
		errs = append(errs, errors.New("VOIP_EXTERNAL_PHONE is required when VOIP_ALWAYS_TRANSFER is set"))
	}
	switch c.VoIP.Transport {
	case "udp", "tcp", "ws", "wss", "tls":
	default:
		errs = append(errs, fmt.Errorf("VOIP_SIP_TRANSPORT must be one of udp, tcp, tls, ws, wss, got %q", c.VoIP.Transport))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// UsePostgres reports whether the directory lives in Postgres.
func (c Config) UsePostgres() bool { return c.DB.Host != "" }

func (c Config) UseRedis() bool { return c.Redis.Host != "" }

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

// AllowOrigin reports whether a browser origin may open the event websocket.
// With no configured origins every origin is allowed outside production and
// none in it.
func (c Config) AllowOrigin(origin string) bool {
	if len(c.Dialer.AllowedOrigins) == 0 {
		return !c.IsProduction()
	}
	for _, o := range c.Dialer.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func requiredInt(errs []error, key string) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, append(errs, fmt.Errorf("%s is required", key))
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

func optionalInt(errs []error, key string) (int, []error) {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return 0, errs
	}
	return requiredInt(errs, key)
}

func optionalDuration(errs []error, key string) (time.Duration, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be a duration, got %q", key, v))
	}
	return d, errs
}

func optionalBool(errs []error, key string) (bool, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, errs
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, append(errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
	}
	return b, errs
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func validPort(p int) bool { return p > 0 && p <= 65535 }

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
