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

package spi_test

import (
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yunqi/lighthouse/config"
	"github.com/yunqi/lighthouse/internal/spi"
	"github.com/yunqi/lighthouse/internal/spi/mockspi"
)

func TestAcceptAllAuthenticatesEverything(t *testing.T) {
	cfg := config.Default()
	cfg.Mqtt.AuthServiceFactory = "accept_all"

	auth, err := spi.NewAuthenticator(cfg)
	require.NoError(t, err)

	user := "alice"
	pass := "wrong-password-entirely"
	assert.True(t, auth.Authenticate("127.0.0.1:1234", &user, &pass))
	assert.True(t, auth.Authenticate("127.0.0.1:1234", nil, nil))
}

func TestNewAuthenticatorUnknownFactory(t *testing.T) {
	cfg := config.Default()
	cfg.Mqtt.AuthServiceFactory = "does-not-exist"

	_, err := spi.NewAuthenticator(cfg)
	assert.Error(t, err)
}

func TestRegisterAuthenticatorFactoryIsConsulted(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockAuth := mockspi.NewMockAuthenticator(ctrl)
	mockAuth.EXPECT().Authenticate("10.0.0.1:5555", gomock.Nil(), gomock.Nil()).Return(false)

	spi.RegisterAuthenticatorFactory("t-reject-all", func(*config.Config) (spi.Authenticator, error) {
		return mockAuth, nil
	})

	cfg := config.Default()
	cfg.Mqtt.AuthServiceFactory = "t-reject-all"
	auth, err := spi.NewAuthenticator(cfg)
	require.NoError(t, err)

	assert.False(t, auth.Authenticate("10.0.0.1:5555", nil, nil))
}
