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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := Default()
	cfg.Mqtt.ServerPort = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsMissingAuthFactory(t *testing.T) {
	cfg := Default()
	cfg.Mqtt.AuthServiceFactory = ""
	assert.Error(t, cfg.Validate())
}

func TestLoadMergesYAMLOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lighthouse.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mqtt:
  server_address: "127.0.0.1"
  server_port: 18830
  conn_timeout: 5s
  conn_rbuf_size: 256
  conn_wbuf_size: 256
  pub_ack_timeout: 1s
  pub_max_retries: 5
  auth_service_factory: accept_all
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Mqtt.ServerAddress)
	assert.Equal(t, 18830, cfg.Mqtt.ServerPort)
	assert.Equal(t, 5, cfg.Mqtt.PubMaxRetries)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
