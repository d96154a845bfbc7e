package main

import (
	"flag"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(values map[string]string) func(string) string {
	return func(key string) string {
		return values[key]
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(envFrom(map[string]string{EnvModel: "model.json"}), nil, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "model.json", cfg.ModelPath)
	assert.Equal(t, 0.01, cfg.OthersShare)
	assert.Equal(t, 0, cfg.Workers)
	assert.Equal(t, "powertree", cfg.Device)
	assert.Equal(t, "homeassistant.lan", cfg.MQTTBroker)
	assert.False(t, cfg.Publish)
}

func TestLoadConfig_EnvironmentThenFlags(t *testing.T) {
	env := envFrom(map[string]string{
		EnvModel:       "env.json",
		EnvUseCase:     "Sleep",
		EnvOthersShare: "0.05",
		EnvWorkers:     "2",
		EnvDevice:      "tracker",
		EnvMQTTBroker:  "broker.local",
	})

	cfg, err := loadConfig(env, []string{"-model", "flag.yaml", "-workers", "8", "-losses"}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "flag.yaml", cfg.ModelPath, "Flags override the environment")
	assert.Equal(t, "Sleep", cfg.UseCase)
	assert.Equal(t, 0.05, cfg.OthersShare)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "tracker", cfg.Device)
	assert.Equal(t, "broker.local", cfg.MQTTBroker)
	assert.True(t, cfg.Losses)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{"no model", nil, nil},
		{"bad share", map[string]string{EnvModel: "m.json", EnvOthersShare: "lots"}, nil},
		{"share out of range", map[string]string{EnvModel: "m.json"}, []string{"-others", "1.5"}},
		{"bad workers", map[string]string{EnvModel: "m.json", EnvWorkers: "many"}, nil},
		{"publish without credentials", map[string]string{EnvModel: "m.json"}, []string{"-publish"}},
		{"unknown flag", map[string]string{EnvModel: "m.json"}, []string{"-nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(envFrom(tt.env), tt.args, io.Discard)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_NoModel(t *testing.T) {
	_, err := loadConfig(envFrom(nil), nil, io.Discard)
	assert.ErrorIs(t, err, errNoModel)
}

func TestLoadConfig_Help(t *testing.T) {
	_, err := loadConfig(envFrom(nil), []string{"-h"}, io.Discard)
	assert.ErrorIs(t, err, flag.ErrHelp)
}
