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

package subscription

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"github.com/yunqi/lighthouse/config"
)

const keyPrefix = "lighthouse:subs:"

type redisStore struct {
	client *redis.Client
}

// NewRedisStore dials a redis instance per cfg for the Store registry.
func NewRedisStore(cfg config.RedisConfig) (Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return &redisStore{client: client}, nil
}

func (s *redisStore) Load(clientID string) ([]Entry, error) {
	data, err := s.client.Get(context.Background(), keyPrefix+clientID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *redisStore) Save(clientID string, entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return s.client.Set(context.Background(), keyPrefix+clientID, data, 0).Err()
}

func (s *redisStore) Delete(clientID string) error {
	return s.client.Del(context.Background(), keyPrefix+clientID).Err()
}

func (s *redisStore) Close() error { return s.client.Close() }
