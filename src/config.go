package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Config holds everything the command needs, resolved from .env, the
// environment and flags (in increasing priority)
type Config struct {
	ModelPath   string
	UseCase     string
	OthersShare float64 // Breakdown rows below this share of the total are merged
	Workers     int     // 0 = one goroutine per use case
	Device      string  // MQTT device id, also the topic prefix

	MQTTBroker   string
	MQTTUsername string
	MQTTPassword string
	MQTTClientID string

	Publish    bool
	Shell      bool
	Validate   bool
	Losses     bool // Split efficiency losses out of the breakdown
	SankeyPath string
	SavePath   string
}

// Environment variable names
const (
	EnvModel       = "POWERTREE_MODEL"
	EnvUseCase     = "POWERTREE_USE_CASE"
	EnvOthersShare = "POWERTREE_OTHERS_SHARE"
	EnvWorkers     = "POWERTREE_WORKERS"
	EnvDevice      = "POWERTREE_DEVICE"
	EnvMQTTBroker  = "MQTT_BROKER"
	EnvMQTTUser    = "MQTT_USERNAME"
	EnvMQTTPass    = "MQTT_PASSWORD"
	EnvMQTTClient  = "MQTT_CLIENT_ID"
)

var errNoModel = errors.New("no model file given (set " + EnvModel + " or pass -model)")

// loadConfig builds the config from environment lookups and command line args.
// godotenv has already populated the environment by the time this runs.
func loadConfig(getenv func(string) string, args []string, output io.Writer) (Config, error) {
	cfg := Config{
		ModelPath:    getenv(EnvModel),
		UseCase:      getenv(EnvUseCase),
		OthersShare:  0.01,
		Device:       "powertree",
		MQTTBroker:   "homeassistant.lan",
		MQTTUsername: getenv(EnvMQTTUser),
		MQTTPassword: getenv(EnvMQTTPass),
		MQTTClientID: "powertree",
	}

	if v := getenv(EnvOthersShare); v != "" {
		share, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", EnvOthersShare, err)
		}
		cfg.OthersShare = share
	}
	if v := getenv(EnvWorkers); v != "" {
		workers, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("%s: %w", EnvWorkers, err)
		}
		cfg.Workers = workers
	}
	if v := getenv(EnvDevice); v != "" {
		cfg.Device = v
	}
	if v := getenv(EnvMQTTBroker); v != "" {
		cfg.MQTTBroker = v
	}
	if v := getenv(EnvMQTTClient); v != "" {
		cfg.MQTTClientID = v
	}

	fs := flag.NewFlagSet("powertree", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&cfg.ModelPath, "model", cfg.ModelPath, "model file (.json, .yaml, .yml)")
	fs.StringVar(&cfg.UseCase, "usecase", cfg.UseCase, "use case to detail (default: first by name)")
	fs.Float64Var(&cfg.OthersShare, "others", cfg.OthersShare, "merge breakdown rows below this share of the total")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "use cases evaluated in parallel (0 = all)")
	fs.StringVar(&cfg.Device, "device", cfg.Device, "MQTT device id")
	fs.BoolVar(&cfg.Publish, "publish", false, "publish results to Home Assistant over MQTT")
	fs.BoolVar(&cfg.Shell, "shell", false, "start the interactive shell")
	fs.BoolVar(&cfg.Validate, "validate", false, "print validation findings and exit")
	fs.BoolVar(&cfg.Losses, "losses", false, "list conversion losses as their own breakdown rows")
	fs.StringVar(&cfg.SankeyPath, "sankey", "", "write the sankey card YAML for the use case to this path")
	fs.StringVar(&cfg.SavePath, "save", "", "save the model to this path (format by extension)")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if cfg.ModelPath == "" {
		return cfg, errNoModel
	}
	if cfg.OthersShare < 0 || cfg.OthersShare >= 1 {
		return cfg, fmt.Errorf("others share %v must be in [0, 1)", cfg.OthersShare)
	}
	if cfg.Publish && (cfg.MQTTUsername == "" || cfg.MQTTPassword == "") {
		return cfg, fmt.Errorf("%s and %s must be set to publish", EnvMQTTUser, EnvMQTTPass)
	}
	return cfg, nil
}

// loadConfigFromOS reads the process environment and arguments
func loadConfigFromOS() (Config, error) {
	return loadConfig(os.Getenv, os.Args[1:], os.Stderr)
}
