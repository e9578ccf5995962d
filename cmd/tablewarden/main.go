/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"tablewarden/internal/crash"
	applog "tablewarden/internal/log"
)

func main() {
	// initialize structured logging using environment defaults; the root
	// command re-initializes from the effective config once it is loaded
	applog.Init(applog.FromEnv())
	defer func() { crash.Recover(activeDB) }()

	Execute()
}
