package kmip

/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

// ContainsEnum reports whether item occurs in slice
func ContainsEnum(slice []Enum, item Enum) bool {
	for _, element := range slice {
		if element == item {
			return true
		}
	}

	return false
}

// ContainsString reports whether item occurs in slice
func ContainsString(slice []string, item string) bool {
	for _, element := range slice {
		if element == item {
			return true
		}
	}

	return false
}
