// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package issue

import "github.com/kraklabs/odavl/pkg/odavl/model"

// BuiltinSeverityTables ships the per-detector mappings for the detectors
// bundled in pkg/odavl/detectors. Pluggable external detectors bring their
// own table.
var BuiltinSeverityTables = map[string]SeverityTable{
	"gofmt": {
		"diff": model.SeverityLow,
	},
	"govet": {
		"error":   model.SeverityHigh,
		"warning": model.SeverityMedium,
	},
	"longline": {
		"warning": model.SeverityLow,
	},
	"todoscan": {
		"todo":  model.SeverityInfo,
		"fixme": model.SeverityMedium,
	},
}
