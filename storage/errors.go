/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import "errors"

// Configuration errors are raised before any engine call: the request
// contradicts the declared schema or the facade state. Engine errors wrap
// the driver error and are additionally routed to Options.OnError.
var (
	ErrNoPrimaryKey    = errors.New("table has no primary key column")
	ErrMissingKey      = errors.New("primary key value not set")
	ErrUnknownTable    = errors.New("table not declared in schema")
	ErrUnknownColumn   = errors.New("column not declared in schema")
	ErrBadOperator     = errors.New("operator not allowed")
	ErrNotReady        = errors.New("storage not ready")
	ErrClosed          = errors.New("storage closed")
	ErrNotFound        = errors.New("row not found")
	ErrRenameConflict  = errors.New("rename target column already exists")
	ErrMaintenanceBusy = errors.New("maintenance operation already running")
	ErrArityMismatch   = errors.New("value count does not match declared columns")
)
