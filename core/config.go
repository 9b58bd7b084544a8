package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName                string
		Env                    string // DEV (local; default), TEST, QA, PROD
		Build                  string
		Debug                  bool
		TestMode               bool
		SecretKey              string
		FrontendBaseURL        string
		InstitutionEmailDomain string // e.g. "@iiitdwd.ac.in"
		RollbarToken           string
		SendgridAPIKey         string
		WorkDir                string

		JWTExpirationDelta            time.Duration
		JWTRefreshExpirationDelta     time.Duration
		PasswordResetTimeoutDelta     time.Duration
		EmailVerificationTimeoutDelta time.Duration

		Server    ServerConfig
		Database  DatabaseConfig
		Storage   StorageConfig
		Scheduler SchedulerConfig

		defaultFromEmail string
	}

	ServerConfig struct {
		Host            string
		DebugHost       string
		ShutdownTimeout time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Name          string
		DisableTLS    bool
		InMemory      bool // use the in-memory store (DEV only)
	}

	StorageConfig struct {
		Backend      string // "disk" | "s3"
		MediaRoot    string
		MediaBaseURL string
		S3Bucket     string
		S3Region     string
		S3Endpoint   string
		S3AccessKey  string
		S3SecretKey  string
		S3PublicURL  string        // base of public object URLs (bucket website or CDN)
		URLExpiry    time.Duration // > 0: the S3 backend hands out presigned URLs that expire
	}

	SchedulerConfig struct {
		ConcludeSpec string // cron spec of the job that concludes past events
	}
)

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, db.Port)
}

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
	}
	return *addr
}

// IsInstitutionEmail reports whether email belongs to the institution's domain.
func (c *Config) IsInstitutionEmail(email string) bool {
	domain := strings.ToLower(c.InstitutionEmailDomain)
	if domain == "" {
		return true
	}
	if !strings.HasPrefix(domain, "@") {
		domain = "@" + domain
	}
	return strings.HasSuffix(CleanString(email, true /* lower */), domain)
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "IEMS")
	v.SetDefault("build", "dev")
	v.SetDefault("secretKey", "k8!x0v$-b#qz=t1ed^7nq4(3s*m0@ra+w6uhy2_l9f)cj5pg")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("institutionEmailDomain", "@iiitdwd.ac.in")
	v.SetDefault("defaultFromEmail", "IEMS <noreply@localhost>")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("emailVerificationTimeoutDelta", 7*24*time.Hour)

	v.SetDefault("serverHost", "0.0.0.0:8000")
	v.SetDefault("serverDebugHost", "0.0.0.0:4000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)

	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbUser", "iems")
	v.SetDefault("dbPassword", "iems")
	v.SetDefault("dbAdminUser", "postgres")
	v.SetDefault("dbAdminPassword", "postgres")
	v.SetDefault("dbName", "iems")
	v.SetDefault("dbDisableTLS", true)
	v.SetDefault("dbInMemory", false)

	v.SetDefault("storageBackend", "disk")
	v.SetDefault("storageMediaRoot", "media")
	v.SetDefault("storageMediaBaseURL", "http://localhost:8000/media")
	v.SetDefault("storageS3Bucket", "iems")
	v.SetDefault("storageS3Region", "us-east-1")
	v.SetDefault("storageS3Endpoint", "")
	v.SetDefault("storageS3AccessKey", "")
	v.SetDefault("storageS3SecretKey", "")
	v.SetDefault("storageS3PublicURL", "")
	v.SetDefault("storageUrlExpiry", time.Duration(0))

	v.SetDefault("schedulerConcludeSpec", "@hourly")
}

// NewConfig loads the configuration of the current environment (env var ENV).
// Values are read from defaults, then config/.env.<env> (if it exists), then env vars prefixed by <ENV>_.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("config.Getwd(): %v", err)
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := fromViper(v)
	conf.Env = env
	conf.WorkDir = wd
	return conf
}

// NewTestConfig returns a deterministic configuration for tests.
func NewTestConfig() *Config {
	v := viper.New()
	setDefaults(v)
	v.Set("debug", false)
	v.Set("testMode", true)
	v.Set("secretKey", "test-secret")
	v.Set("dbInMemory", true)

	conf := fromViper(v)
	conf.Env = "TEST"
	return conf
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		AppName:                v.GetString("appName"),
		Build:                  v.GetString("build"),
		Debug:                  v.GetBool("debug"),
		TestMode:               v.GetBool("testMode"),
		SecretKey:              v.GetString("secretKey"),
		FrontendBaseURL:        strings.TrimSuffix(v.GetString("frontendBaseURL"), "/"),
		InstitutionEmailDomain: v.GetString("institutionEmailDomain"),
		RollbarToken:           v.GetString("rollbarToken"),
		SendgridAPIKey:         v.GetString("sendgridApiKey"),

		JWTExpirationDelta:            v.GetDuration("jwtExpirationDelta"),
		JWTRefreshExpirationDelta:     v.GetDuration("jwtRefreshExpirationDelta"),
		PasswordResetTimeoutDelta:     v.GetDuration("passwordResetTimeoutDelta"),
		EmailVerificationTimeoutDelta: v.GetDuration("emailVerificationTimeoutDelta"),

		Server: ServerConfig{
			Host:            v.GetString("serverHost"),
			DebugHost:       v.GetString("serverDebugHost"),
			ShutdownTimeout: v.GetDuration("serverShutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetString("dbPort"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			Name:          v.GetString("dbName"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
			InMemory:      v.GetBool("dbInMemory"),
		},
		Storage: StorageConfig{
			Backend:      v.GetString("storageBackend"),
			MediaRoot:    v.GetString("storageMediaRoot"),
			MediaBaseURL: strings.TrimSuffix(v.GetString("storageMediaBaseURL"), "/"),
			S3Bucket:     v.GetString("storageS3Bucket"),
			S3Region:     v.GetString("storageS3Region"),
			S3Endpoint:   v.GetString("storageS3Endpoint"),
			S3AccessKey:  v.GetString("storageS3AccessKey"),
			S3SecretKey:  v.GetString("storageS3SecretKey"),
			S3PublicURL:  strings.TrimSuffix(v.GetString("storageS3PublicURL"), "/"),
			URLExpiry:    v.GetDuration("storageUrlExpiry"),
		},
		Scheduler: SchedulerConfig{
			ConcludeSpec: v.GetString("schedulerConcludeSpec"),
		},
		defaultFromEmail: v.GetString("defaultFromEmail"),
	}
}

func (c *Config) String() string {
	return fmt.Sprintf("%s (%s, build %s)", c.AppName, c.Env, c.Build)
}
