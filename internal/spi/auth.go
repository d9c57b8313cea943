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

// Package spi declares the authentication and logging service-provider
// interfaces the broker core consumes but does not implement, plus the
// named-factory registry used to resolve an Authenticator from
// config.Mqtt.AuthServiceFactory.
package spi

import (
	"fmt"
	"sync"

	"github.com/yunqi/lighthouse/config"
)

// Authenticator decides whether a CONNECT's credentials are acceptable.
// Username and Password are nil when the corresponding CONNECT flag was
// not set.
type Authenticator interface {
	Authenticate(remoteAddr string, username, password *string) bool
}

// AuthenticatorFactory builds an Authenticator from the full broker
// configuration, so a factory may read its own section of config.Config.
type AuthenticatorFactory func(cfg *config.Config) (Authenticator, error)

var (
	authMu        sync.RWMutex
	authFactories = map[string]AuthenticatorFactory{
		"accept_all": func(*config.Config) (Authenticator, error) {
			return acceptAll{}, nil
		},
	}
)

// RegisterAuthenticatorFactory adds a named factory to the registry. It
// panics on a duplicate name, matching the fail-fast registration idiom
// used for init-time registries.
func RegisterAuthenticatorFactory(name string, factory AuthenticatorFactory) {
	authMu.Lock()
	defer authMu.Unlock()
	if _, exists := authFactories[name]; exists {
		panic(fmt.Sprintf("spi: authenticator factory %q already registered", name))
	}
	authFactories[name] = factory
}

// NewAuthenticator resolves and invokes the named factory.
func NewAuthenticator(cfg *config.Config) (Authenticator, error) {
	name := cfg.Mqtt.AuthServiceFactory
	authMu.RLock()
	factory, ok := authFactories[name]
	authMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("spi: no authenticator factory registered for %q", name)
	}
	return factory(cfg)
}

// acceptAll is the default Authenticator: it admits every CONNECT.
type acceptAll struct{}

func (acceptAll) Authenticate(string, *string, *string) bool { return true }
