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

// Package persistence is a named factory registry for the session and
// subscription stores: a config-time lookup from a string name to a
// constructor, with "memory" registered as the zero-configuration
// default and "redis" available for deployments that want a
// cross-restart record.
package persistence

import (
	"fmt"

	"github.com/yunqi/lighthouse/config"
	"github.com/yunqi/lighthouse/internal/persistence/session"
	"github.com/yunqi/lighthouse/internal/persistence/subscription"
)

// SessionStoreFactory builds a session.Store from its StoreConfig.
type SessionStoreFactory func(cfg *config.StoreConfig) (session.Store, error)

// SubscriptionStoreFactory builds a subscription.Store from its StoreConfig.
type SubscriptionStoreFactory func(cfg *config.StoreConfig) (subscription.Store, error)

var sessionStoreFactories = map[string]SessionStoreFactory{
	"memory": func(*config.StoreConfig) (session.Store, error) {
		return session.NewMemoryStore(), nil
	},
	"redis": func(cfg *config.StoreConfig) (session.Store, error) {
		return session.NewRedisStore(cfg.Redis)
	},
}

var subscriptionStoreFactories = map[string]SubscriptionStoreFactory{
	"memory": func(*config.StoreConfig) (subscription.Store, error) {
		return subscription.NewMemoryStore(), nil
	},
	"redis": func(cfg *config.StoreConfig) (subscription.Store, error) {
		return subscription.NewRedisStore(cfg.Redis)
	},
}

// GetSessionStore resolves a registered SessionStoreFactory by name.
func GetSessionStore(name string) (SessionStoreFactory, bool) {
	f, ok := sessionStoreFactories[name]
	return f, ok
}

// GetSubscriptionStore resolves a registered SubscriptionStoreFactory by name.
func GetSubscriptionStore(name string) (SubscriptionStoreFactory, bool) {
	f, ok := subscriptionStoreFactories[name]
	return f, ok
}

// RegisterSessionStore adds or replaces a named factory; used by tests
// and by deployments wiring a custom backend.
func RegisterSessionStore(name string, f SessionStoreFactory) {
	sessionStoreFactories[name] = f
}

// RegisterSubscriptionStore adds or replaces a named factory.
func RegisterSubscriptionStore(name string, f SubscriptionStoreFactory) {
	subscriptionStoreFactories[name] = f
}

// ErrUnknownStore builds the error callers return when a configured
// store name is missing from the registry.
func ErrUnknownStore(name string) error {
	return fmt.Errorf("persistence: no store registered for %q", name)
}
