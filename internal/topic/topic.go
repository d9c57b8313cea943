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

// Package topic implements MQTT 3.1.1 topic and topic-filter
// well-formedness rules and the wildcard matching algorithm used to
// resolve a PUBLISH's subscribers.
package topic

import (
	"errors"
	"strings"
)

// ErrInvalid is returned by Validate/ValidateFilter for any topic or
// filter that fails MQTT-3.1.1 well-formedness rules.
var ErrInvalid = errors.New("topic: not well-formed")

const maxLength = 65535

// Validate checks a PUBLISH topic: length 1-65535, no NUL, no wildcards.
func Validate(t string) error {
	if len(t) < 1 || len(t) > maxLength {
		return ErrInvalid
	}
	if strings.ContainsRune(t, 0) {
		return ErrInvalid
	}
	if strings.ContainsAny(t, "+#") {
		return ErrInvalid
	}
	return nil
}

// ValidateFilter checks a SUBSCRIBE/UNSUBSCRIBE topic filter: the same
// base rules as Validate, plus the wildcard placement rules:
//   - '+' only as an entire level
//   - '#' only as the last level, and only preceded by '/' or alone
func ValidateFilter(f string) error {
	if len(f) < 1 || len(f) > maxLength {
		return ErrInvalid
	}
	if strings.ContainsRune(f, 0) {
		return ErrInvalid
	}
	levels := strings.Split(f, "/")
	for i, level := range levels {
		switch {
		case level == "+":
			continue
		case level == "#":
			if i != len(levels)-1 {
				return ErrInvalid
			}
		case strings.ContainsAny(level, "+#"):
			return ErrInvalid
		}
	}
	return nil
}

// Matches reports whether topic matches filter, per MQTT 3.1.1's
// wildcard rules: '+' matches exactly one level (including an empty
// level between two slashes), and a trailing '#' matches zero or more
// trailing levels — so "sport/#" also matches the parent level "sport".
func Matches(filter, t string) bool {
	filterLevels := strings.Split(filter, "/")
	topicLevels := strings.Split(t, "/")

	for i, fl := range filterLevels {
		if fl == "#" {
			return true
		}
		if i >= len(topicLevels) {
			return false
		}
		if fl == "+" {
			continue
		}
		if fl != topicLevels[i] {
			return false
		}
	}
	return len(filterLevels) == len(topicLevels)
}
