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

package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		topic  string
		want   bool
	}{
		{"hash alone matches everything", "#", "a/b/c", true},
		{"hash alone matches a single level", "#", "a", true},
		{"hash matches its own parent level", "sport/#", "sport", true},
		{"hash matches one level below its parent", "sport/#", "sport/tennis", true},
		{"hash matches several levels below its parent", "sport/#", "sport/tennis/player1", true},
		{"hash does not match an unrelated sibling prefix", "sport/#", "sporting", false},
		{"plus matches a single level", "sport/+", "sport/tennis", true},
		{"plus does not match two levels", "sport/+", "sport/tennis/player1", false},
		{"plus matches an empty level between slashes", "sport/+", "sport/", true},
		{"plus alone matches a single empty-string level", "+", "", true},
		{"plus/plus matches two non-empty levels", "+/+", "a/b", true},
		{"plus/plus matches a leading empty level", "+/+", "/b", true},
		{"plus/plus does not match a single level", "+/+", "a", false},
		{"exact match with no wildcards", "a/b", "a/b", true},
		{"differing level fails to match", "a/b", "a/c", false},
		{"filter longer than topic fails to match", "a/b/c", "a/b", false},
		{"topic longer than filter fails to match", "a/b", "a/b/c", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.filter, tt.topic))
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		wantErr bool
	}{
		{"plain topic", "a/b/c", false},
		{"empty topic is invalid", "", true},
		{"wildcard plus is invalid in a publish topic", "a/+/c", true},
		{"wildcard hash is invalid in a publish topic", "a/#", true},
		{"embedded NUL is invalid", "a/\x00/c", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.topic)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateFilter(t *testing.T) {
	tests := []struct {
		name    string
		filter  string
		wantErr bool
	}{
		{"plain filter", "a/b/c", false},
		{"hash alone", "#", false},
		{"plus alone", "+", false},
		{"hash as last level", "sport/#", false},
		{"plus as a whole level", "sport/+/score", false},
		{"empty filter is invalid", "", true},
		{"hash must be the last level", "sport/#/score", true},
		{"hash must occupy its whole level", "sport/tennis#", true},
		{"plus must occupy its whole level", "sport+/tennis", true},
		{"mixed wildcard within a level is invalid", "a/#b", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilter(tt.filter)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
