/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage implements the schema-driven storage layer.
// It keeps an embedded SQLite database aligned with a declarative schema (creating, adding, renaming, reordering and optionally dropping tables and columns),
// generates one Model per declared table for row access, and runs periodic backup and compaction under a shared busy guard.
// Every operation reports through a uniform Result envelope; engine failures are routed to the configured error callback and never panic across the boundary.
package storage
