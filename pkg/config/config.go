package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samsamfire/gocanbus/pkg/can"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"gopkg.in/ini.v1"
)

// Interface configuration files, in the can.ini format :
//
//	[default]
//	interface = pcan
//	channel = PCAN_USBBUS1
//	bitrate = 500000
//
//	[bench]
//	interface = virtual
//	channel = localhost:18000
//	receive_own = true
//
// A named section inherits the keys of [default]. Every key can be
// overridden with an environment variable, e.g. CAN_INTERFACE or CAN_BITRATE.

const (
	EnvPrefix     = "can"
	EnvConfigFile = "CAN_CONFIG_FILE"
	DefaultName   = "default"

	keyInterface = "interface"
	keyChannel   = "channel"
	keyBitrate   = "bitrate"
)

var (
	ErrNoConfigFile    = errors.New("no configuration file found")
	ErrSectionNotFound = errors.New("section not found")
)

// Everything needed to create a bus with [can.NewBus]
type BusConfig struct {
	Interface string
	Channel   string
	Bitrate   int
	Params    map[string]any
}

// Options converts the configuration to bus creation options
func (c *BusConfig) Options() []can.Option {
	opts := []can.Option{can.WithParams(c.Params)}
	if c.Bitrate != 0 {
		opts = append(opts, can.WithBitrate(c.Bitrate))
	}
	return opts
}

// Locations searched by [Find], in order
func SearchPaths() []string {
	paths := []string{}
	if path := os.Getenv(EnvConfigFile); path != "" {
		paths = append(paths, path)
	}
	paths = append(paths, "can.ini")
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, "can.conf"), filepath.Join(home, ".canrc"))
	}
	return paths
}

// Find returns the first existing configuration file
func Find() (string, error) {
	for _, path := range SearchPaths() {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", ErrNoConfigFile
}

// Load reads section of the configuration file at path and applies the
// environment overrides. An empty path only uses the environment, an empty
// section only uses [default].
func Load(path string, section string) (*BusConfig, error) {
	values := map[string]any{}
	if path != "" {
		fileValues, err := readFile(path, section)
		if err != nil {
			return nil, err
		}
		values = fileValues
	}
	return fromValues(values)
}

// LoadDefault is [Load] on the file returned by [Find], or on the environment alone
func LoadDefault(section string) (*BusConfig, error) {
	path, err := Find()
	if err != nil {
		log.Debugf("no configuration file, using environment only")
		path = ""
	}
	return Load(path, section)
}

func readFile(path string, section string) (map[string]any, error) {
	file, err := ini.LoadSources(ini.LoadOptions{Insensitive: true}, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration %v : %w", path, err)
	}
	values := map[string]any{}
	for _, key := range file.Section(DefaultName).Keys() {
		values[key.Name()] = key.Value()
	}
	section = strings.ToLower(section)
	if section == "" || section == DefaultName {
		return values, nil
	}
	named, err := file.GetSection(section)
	if err != nil {
		return nil, fmt.Errorf("%w : %w %q in %v", can.ErrInvalidConfiguration, ErrSectionNotFound, section, path)
	}
	for _, key := range named.Keys() {
		values[key.Name()] = key.Value()
	}
	return values, nil
}

func fromValues(values map[string]any) (*BusConfig, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	if err := v.MergeConfigMap(values); err != nil {
		return nil, err
	}
	config := &BusConfig{
		Interface: v.GetString(keyInterface),
		Channel:   v.GetString(keyChannel),
		Params:    map[string]any{},
	}
	if raw := v.Get(keyBitrate); raw != nil {
		bitrate, err := cast.ToIntE(raw)
		if err != nil {
			return nil, fmt.Errorf("%w : bitrate %q : %v", can.ErrInvalidConfiguration, raw, err)
		}
		config.Bitrate = bitrate
	}
	for key := range values {
		switch key {
		case keyInterface, keyChannel, keyBitrate:
		default:
			config.Params[key] = v.Get(key)
		}
	}
	return config, nil
}
