package core

import (
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AppName      string
	Env          string // DEV (local; default), TEST, QA, PROD
	Build        string
	Debug        bool
	TestMode     bool
	SecretKey    string
	RollbarToken string

	Server struct {
		Host               string
		Address            string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	Database struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	Content struct {
		Route  string // URL prefix packages are served under, without slashes
		Root   string // directory holding every package's base path
		Origin string // empty when content is served by this host
	}

	Runtime struct {
		CommitQueueSize   int
		CommitTimeout     time.Duration
		StrictDataModel   bool
		PlayerIdleTimeout time.Duration
		InMemory          bool
	}
}

func (c *Config) DatabaseAddress() string {
	return net.JoinHostPort(c.Database.Host, c.Database.Port)
}

// NewConfig loads the app configuration: defaults < config/.env.<env> < environment.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Masomo")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverAddress", ":8000")
	v.SetDefault("serverDebugHost", ":4000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)

	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbName", "masomo")
	v.SetDefault("dbUser", "masomo")
	v.SetDefault("dbPassword", "masomo")
	v.SetDefault("dbAdminUser", "postgres")
	v.SetDefault("dbAdminPassword", "")
	v.SetDefault("dbDisableTLS", true)

	v.SetDefault("contentRoute", "scorm-content")
	v.SetDefault("contentRoot", "media/packages")
	v.SetDefault("contentOrigin", "")

	v.SetDefault("commitQueueSize", 256)
	v.SetDefault("commitTimeout", 10*time.Second)
	v.SetDefault("strictDataModel", false)
	v.SetDefault("playerIdleTimeout", 4*time.Hour)
	v.SetDefault("inMemory", false)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		AppName:      v.GetString("appName"),
		Env:          env,
		Build:        v.GetString("build"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
	}

	conf.Server.Host = v.GetString("serverHost")
	conf.Server.Address = v.GetString("serverAddress")
	conf.Server.DebugHost = v.GetString("serverDebugHost")
	conf.Server.ShutdownTimeout = v.GetDuration("serverShutdownTimeout")
	conf.Server.JWTExpirationDelta = v.GetDuration("jwtExpirationDelta")

	conf.Database.Engine = v.GetString("dbEngine")
	conf.Database.Host = v.GetString("dbHost")
	conf.Database.Port = v.GetString("dbPort")
	conf.Database.Name = v.GetString("dbName")
	conf.Database.User = v.GetString("dbUser")
	conf.Database.Password = v.GetString("dbPassword")
	conf.Database.AdminUser = v.GetString("dbAdminUser")
	conf.Database.AdminPassword = v.GetString("dbAdminPassword")
	conf.Database.DisableTLS = v.GetBool("dbDisableTLS")

	conf.Content.Route = strings.Trim(v.GetString("contentRoute"), "/")
	conf.Content.Root = v.GetString("contentRoot")
	conf.Content.Origin = strings.TrimRight(v.GetString("contentOrigin"), "/")

	conf.Runtime.CommitQueueSize = v.GetInt("commitQueueSize")
	conf.Runtime.CommitTimeout = v.GetDuration("commitTimeout")
	conf.Runtime.StrictDataModel = v.GetBool("strictDataModel")
	conf.Runtime.PlayerIdleTimeout = v.GetDuration("playerIdleTimeout")
	conf.Runtime.InMemory = v.GetBool("inMemory")

	return conf
}
