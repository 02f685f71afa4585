// Copyright 2026 Harald Albrecht.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fdferry

import "strings"

// Interest is the set of socket readiness conditions an adaptor wants to be
// told about: [Readable], [Writable], or both OR'ed together.
type Interest uint32

const (
	// Readable is the interest in the socket becoming readable.
	Readable Interest = 1 << iota
	// Writable is the interest in the socket becoming writable.
	Writable
)

// String renders the interest set in human-readable form.
func (i Interest) String() string {
	var names []string
	if i&Readable != 0 {
		names = append(names, "readable")
	}
	if i&Writable != 0 {
		names = append(names, "writable")
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "+")
}
