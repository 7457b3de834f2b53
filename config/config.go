// config/config.go
package config

import (
	"fmt"
	"log"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Configuration stores all the configurations
type Configuration struct {
	Server        ServerConfiguration
	Neo4j         DatabaseConfiguration
	Redis         RedisConfiguration
	Elasticsearch ElasticsearchConfiguration
	SQLite        SQLiteConfiguration
	Decision      DecisionConfiguration
	Trust         TrustConfiguration
	Keys          KeyConfiguration
}

// ServerConfiguration stores the port and other web server settings
type ServerConfiguration struct {
	Port string
}

// DatabaseConfiguration stores data for database connection
type DatabaseConfiguration struct {
	URI string
}

// RedisConfiguration stores data for Redis connection
type RedisConfiguration struct {
	Addr string
}

// ElasticsearchConfiguration stores data for Elasticsearch connection
type ElasticsearchConfiguration struct {
	URL string
}

// SQLiteConfiguration stores the path of the local security store
type SQLiteConfiguration struct {
	Path string
}

// DecisionConfiguration stores decision cache and evaluator settings
type DecisionConfiguration struct {
	CacheBackend     string
	CacheTTL         time.Duration
	CacheSize        int
	EvaluatorTimeout time.Duration
}

// TrustConfiguration stores device-trust thresholds and scoring deltas
type TrustConfiguration struct {
	FullThreshold       int
	RestrictedThreshold int
	InitialScore        int
	SessionTTL          time.Duration
}

// KeyConfiguration stores key management settings
type KeyConfiguration struct {
	MasterSecret     string
	DefaultAlgorithm string
}

var config *Configuration

func InitConfig() error {
	viper.AddConfigPath("config") // path to look for the config file in
	viper.SetConfigName("config") // name of the config file (without extension)
	viper.SetConfigType("yaml")

	viper.AutomaticEnv() // read in environment variables that match

	// Set default configurations
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("neo4j.uri", "bolt://localhost:7687")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("elasticsearch.url", "http://localhost:9200")
	viper.SetDefault("sqlite.path", "bastion.db")
	viper.SetDefault("log.dir", "logging")

	viper.SetDefault("decision.cacheBackend", "memory")
	viper.SetDefault("decision.cacheTTL", "5m")
	viper.SetDefault("decision.cacheSize", 1000)
	viper.SetDefault("decision.evaluatorTimeout", "80ms")

	viper.SetDefault("trust.fullThreshold", 80)
	viper.SetDefault("trust.restrictedThreshold", 50)
	viper.SetDefault("trust.initialScore", 100)
	viper.SetDefault("trust.sessionTTL", "24h")

	viper.SetDefault("keys.defaultAlgorithm", "AES-256-GCM")
	viper.SetDefault("sessions.jwtSecret", "")
	viper.SetDefault("notifier.urls", []string{})

	// Attempt to read the config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found. Using default settings and environment variables.")
		} else {
			return err
		}
	}

	// Unmarshal the configuration into the Configuration struct
	if err := viper.Unmarshal(&config); err != nil {
		return err
	}

	return validate()
}

func validate() error {
	if viper.GetInt("trust.fullThreshold") < viper.GetInt("trust.restrictedThreshold") {
		return fmt.Errorf("trust.fullThreshold (%d) must be >= trust.restrictedThreshold (%d)",
			viper.GetInt("trust.fullThreshold"), viper.GetInt("trust.restrictedThreshold"))
	}
	if backend := viper.GetString("decision.cacheBackend"); backend != "memory" && backend != "redis" {
		return fmt.Errorf("decision.cacheBackend must be \"memory\" or \"redis\", got %q", backend)
	}
	return nil
}

// Watch re-reads the config file on change and invokes onChange for values
// that can be applied at runtime (trust thresholds, scoring deltas).
func Watch(onChange func()) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if err := viper.Unmarshal(&config); err != nil {
			log.Printf("Failed to reload config after %s: %v", e.Name, err)
			return
		}
		if err := validate(); err != nil {
			log.Printf("Ignoring invalid config reload: %v", err)
			return
		}
		onChange()
	})
	viper.WatchConfig()
}

// GetConfig returns the loaded configuration
func GetConfig() *Configuration {
	return config
}

// GetString retrieves a string value from the configuration
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt retrieves an integer value from the configuration
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool retrieves a boolean value from the configuration
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration retrieves a duration value from the configuration
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// GetStringSlice retrieves a string slice value from the configuration
func GetStringSlice(key string) []string {
	return viper.GetStringSlice(key)
}
