/*
 *    Copyright 2021 chenquan
 *
 *    Licensed under the Apache License, Version 2.0 (the "License");
 *    you may not use this file except in compliance with the License.
 *    You may obtain a copy of the License at
 *
 *        http://www.apache.org/licenses/LICENSE-2.0
 *
 *    Unless required by applicable law or agreed to in writing, software
 *    distributed under the License is distributed on an "AS IS" BASIS,
 *    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *    See the License for the specific language governing permissions and
 *    limitations under the License.
 */

package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Configuration interface {
	// Validate validates the configuration.
	// If returns error, the broker will not start.
	Validate() error
}

// Config is the root broker configuration, unmarshalled from YAML.
type Config struct {
	Mqtt    Mqtt    `yaml:"mqtt"`
	Logging Logging `yaml:"logging"`
}

// Mqtt holds the settings of the protocol core: listeners, connection
// timeouts and the in-flight retry policy.
type Mqtt struct {
	// ServerAddress is the bind address for the raw TCP listener.
	ServerAddress string `yaml:"server_address" validate:"required"`
	// ServerPort is the bind port for the raw TCP listener.
	ServerPort int `yaml:"server_port" validate:"gte=1,lte=65535"`
	// WebsocketAddress, if non-empty, additionally serves MQTT-over-WebSocket.
	WebsocketAddress string `yaml:"websocket_address"`
	// WebsocketPort is the bind port for the optional WebSocket listener.
	WebsocketPort int `yaml:"websocket_port" validate:"omitempty,gte=1,lte=65535"`
	// ConnTimeout is how long a connection may stay silent before sending
	// its first CONNECT before the server closes it.
	ConnTimeout time.Duration `yaml:"conn_timeout" validate:"gt=0"`
	// ConnReadBufferSize sizes the WebSocket upgrader's read buffer. Raw
	// TCP connections do not use it: their frame reader reads through a
	// bufio.Reader of the default size.
	ConnReadBufferSize int `yaml:"conn_rbuf_size" validate:"gt=0"`
	// ConnWriteBufferSize is the initial size of a connection's write buffer.
	ConnWriteBufferSize int `yaml:"conn_wbuf_size" validate:"gt=0"`
	// PubAckTimeout is how long the broker waits for a PUBACK/PUBREC/PUBCOMP
	// or PUBREL before retrying an in-flight publication.
	PubAckTimeout time.Duration `yaml:"pub_ack_timeout" validate:"gt=0"`
	// PubMaxRetries is the number of retries attempted before an in-flight
	// publication is abandoned and its packet identifier released.
	PubMaxRetries int `yaml:"pub_max_retries" validate:"gte=0"`
	// AuthServiceFactory names the registered spi.AuthenticatorFactory used
	// to authenticate CONNECT requests.
	AuthServiceFactory string `yaml:"auth_service_factory" validate:"required"`
	// MaximumQoS is the highest QoS level the server grants in a SUBACK.
	MaximumQoS uint8 `yaml:"maximum_qos" validate:"lte=2"`
	// RetainAvailable toggles whether retain=1 PUBLISHes are stored.
	RetainAvailable bool `yaml:"retain_available"`
	// WildcardAvailable is decoded and validated but not read by the
	// broker: '+'/'#' filters are always accepted.
	WildcardAvailable bool `yaml:"wildcard_subscription_available"`
	// AllowZeroLenClientID is decoded and validated but not read by the
	// broker: a CONNECT with an empty client identifier is always accepted
	// when CleanSession is set (MQTT-3.1.3-8 permits this) and rejected
	// otherwise.
	AllowZeroLenClientID bool `yaml:"allow_zero_len_client_id"`
	// Persistence selects the session/subscription store backends.
	Persistence Persistence `yaml:"persistence"`
}

// Logging controls the process-wide xlog sinks.
type Logging struct {
	File    string `yaml:"log_file"`
	Console bool   `yaml:"log_console"`
	Level   string `yaml:"log_level"`
	Disable bool   `yaml:"log_disable"`
}

// Persistence names the store implementations used by the session manager.
// The broker core itself is in-memory only (spec Non-goal: no
// cross-restart persistence); these entries select among in-memory and
// optional external backends via the registries in internal/persistence.
type Persistence struct {
	Session      StoreConfig `yaml:"session"`
	Subscription StoreConfig `yaml:"subscription"`
}

// StoreConfig names a registered store factory and its connection options.
type StoreConfig struct {
	// Type is the registered factory name, e.g. "memory" or "redis".
	Type  string      `yaml:"type" validate:"required"`
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures the optional redis-backed store implementations.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Default returns a Config populated with the broker's documented
// zero-configuration defaults.
func Default() *Config {
	return &Config{
		Mqtt: Mqtt{
			ServerAddress:        "0.0.0.0",
			ServerPort:           1883,
			ConnTimeout:          10000 * time.Millisecond,
			ConnReadBufferSize:   256,
			ConnWriteBufferSize:  256,
			PubAckTimeout:        2000 * time.Millisecond,
			PubMaxRetries:        3,
			AuthServiceFactory:   "accept_all",
			MaximumQoS:           2,
			RetainAvailable:      true,
			WildcardAvailable:    true,
			AllowZeroLenClientID: true,
			Persistence: Persistence{
				Session:      StoreConfig{Type: "memory"},
				Subscription: StoreConfig{Type: "memory"},
			},
		},
		Logging: Logging{
			Console: true,
			Level:   "info",
		},
	}
}

// Load reads and validates a YAML configuration file. The file is
// decoded onto Default(), so any key the file omits keeps its default
// value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks struct tags with go-playground/validator; the broker
// will not start if it returns an error.
func (c *Config) Validate() error {
	return validate.Struct(c)
}
