/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

// Status codes carried in Result.Code.
const (
	StatusOK       = 200
	StatusNoBackup = 204 // backup succeeded with no prior file to replace
	StatusNotFound = 404
	StatusConflict = 409
	StatusBusy     = 429
	StatusError    = 500
)

// Result is the uniform outcome envelope for storage operations. Code and OK
// always carry; the payload fields are filled per operation: Changes for
// writes, Rows/Row for reads, Value for scalar probes, Info for context a
// caller may want to surface. Err holds the underlying error for failed
// results and supports errors.Is against the package sentinels.
type Result struct {
	Code    int
	OK      bool
	Changes int64
	Value   any
	Rows    []Row
	Row     Row
	Info    string
	Err     error
}

func resOK() Result                { return Result{Code: StatusOK, OK: true} }
func resChanges(n int64) Result    { return Result{Code: StatusOK, OK: true, Changes: n} }
func resValue(v any) Result        { return Result{Code: StatusOK, OK: true, Value: v} }
func resRows(rows []Row) Result    { return Result{Code: StatusOK, OK: true, Rows: rows} }
func resRow(row Row) Result        { return Result{Code: StatusOK, OK: true, Row: row} }
func resInfo(info string) Result   { return Result{Code: StatusOK, OK: true, Info: info} }
func resNotFound(info string) Result {
	return Result{Code: StatusNotFound, Info: info, Err: ErrNotFound}
}
func resConflict(err error, info string) Result {
	return Result{Code: StatusConflict, Info: info, Err: err}
}
func resBusy(op string) Result {
	return Result{Code: StatusBusy, Info: op, Err: ErrMaintenanceBusy}
}
func resFailure(err error) Result { return Result{Code: StatusError, Err: err} }
