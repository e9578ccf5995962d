/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"tablewarden/schema"
)

func pairSchema(t *testing.T) *schema.Schema {
	t.Helper()
	cols := []schema.Column{
		{Name: "id", Type: schema.TypeText, PrimaryKey: true},
		{Name: "url", Type: schema.TypeText},
		{Name: "size", Type: schema.TypeInteger},
	}
	s, err := schema.New(
		schema.Table{Name: "items", Columns: cols},
		schema.Table{Name: "archive", Columns: cols},
	)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return s
}

func keylessSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New(schema.Table{
		Name: "events",
		Columns: []schema.Column{
			{Name: "name", Type: schema.TypeText},
			{Name: "payload", Type: schema.TypeText},
		},
	})
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return s
}

func TestCreateSaveFindRoundTrip(t *testing.T) {
	d := openDatabase(t, testOptions(t))
	m, _ := d.Model("items")

	inst, err := m.Create("a", "http://x", 10)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res := inst.Save(testCtx(t)); !res.OK || res.Code != StatusOK {
		t.Fatalf("save: code=%d err=%v", res.Code, res.Err)
	}

	found, res := m.Find(testCtx(t), "a")
	if !res.OK {
		t.Fatalf("find: code=%d err=%v", res.Code, res.Err)
	}
	obj := found.ToObject(true)
	if obj["id"] != "a" || obj["url"] != "http://x" || obj["size"] != int64(10) {
		t.Fatalf("round trip values: %v", obj)
	}

	url, ok := m.Column("url")
	if !ok {
		t.Fatalf("column url missing")
	}
	sres := url.SetValue(testCtx(t), "a", "http://y")
	if !sres.OK || sres.Changes != 1 {
		t.Fatalf("setvalue: code=%d changes=%d err=%v", sres.Code, sres.Changes, sres.Err)
	}
	found, res = m.Find(testCtx(t), "a")
	if !res.OK || found.Get("url") != "http://y" {
		t.Fatalf("after setvalue: %v err=%v", found.Get("url"), res.Err)
	}
}

func TestFindMissingReturnsNotFound(t *testing.T) {
	d := openDatabase(t, testOptions(t))
	m, _ := d.Model("items")
	inst, res := m.Find(testCtx(t), "missing")
	if inst != nil || res.OK || res.Code != StatusNotFound || !errors.Is(res.Err, ErrNotFound) {
		t.Fatalf("find missing: inst=%v code=%d err=%v", inst, res.Code, res.Err)
	}
}

func TestDeleteThenFindReturnsNotFound(t *testing.T) {
	d := openDatabase(t, testOptions(t))
	m, _ := d.Model("items")
	mustCreateSaved(t, m, "a", "http://x", 10)

	if res := m.Delete(testCtx(t), "a"); !res.OK || res.Changes != 1 {
		t.Fatalf("delete: code=%d changes=%d err=%v", res.Code, res.Changes, res.Err)
	}
	if _, res := m.Find(testCtx(t), "a"); res.Code != StatusNotFound {
		t.Fatalf("find after delete: code=%d", res.Code)
	}
	if res := m.Delete(testCtx(t), "a"); res.Code != StatusNotFound {
		t.Fatalf("second delete: code=%d", res.Code)
	}
}

func TestAllAndCount(t *testing.T) {
	d := openDatabase(t, testOptions(t))
	m, _ := d.Model("items")
	mustCreateSaved(t, m, "a", "http://x", 10)
	mustCreateSaved(t, m, "b", "http://y", 20)
	mustCreateSaved(t, m, "c", "http://z", 30)

	all, res := m.All(testCtx(t))
	if !res.OK || len(all) != 3 {
		t.Fatalf("all: %d err=%v", len(all), res.Err)
	}
	cres := m.Count(testCtx(t))
	if !cres.OK || cres.Value != int64(3) {
		t.Fatalf("count: %v err=%v", cres.Value, cres.Err)
	}
}

func TestCreateArityAndDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.db")
	s := schema.MustNew(schema.Table{
		Name: "items",
		Columns: []schema.Column{
			{Name: "id", Type: schema.TypeText, PrimaryKey: true},
			{Name: "url", Type: schema.TypeText, Default: "http://default"},
			{Name: "size", Type: schema.TypeInteger},
		},
	})
	d := openDatabase(t, Options{Path: path, Schema: s})
	m, _ := d.Model("items")

	if _, err := m.Create("a", "u", 1, "extra"); !errors.Is(err, ErrArityMismatch) {
		t.Fatalf("arity: %v", err)
	}

	inst, err := m.Create("a")
	if err != nil {
		t.Fatalf("create short: %v", err)
	}
	if inst.Get("url") != "http://default" || inst.Get("size") != nil {
		t.Fatalf("defaults: url=%v size=%v", inst.Get("url"), inst.Get("size"))
	}
	if res := inst.Save(testCtx(t)); !res.OK {
		t.Fatalf("save: %v", res.Err)
	}
	found, res := m.Find(testCtx(t), "a")
	if !res.OK || found.Get("url") != "http://default" || found.Get("size") != nil {
		t.Fatalf("persisted defaults: %v", found.ToObject(true))
	}
}

func TestKeylessTableIdentityRules(t *testing.T) {
	d := openDatabase(t, Options{
		Path:   filepath.Join(t.TempDir(), "events.db"),
		Schema: keylessSchema(t),
	})
	m, _ := d.Model("events")

	// A fresh instance may insert.
	inst, err := m.Create("boot", "{}")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res := inst.Save(testCtx(t)); !res.OK {
		t.Fatalf("keyless insert: code=%d err=%v", res.Code, res.Err)
	}

	// Identity operations fail before touching the engine.
	if _, res := m.Find(testCtx(t), "boot"); !errors.Is(res.Err, ErrNoPrimaryKey) {
		t.Fatalf("find on keyless: %v", res.Err)
	}
	if res := m.Delete(testCtx(t), "boot"); !errors.Is(res.Err, ErrNoPrimaryKey) {
		t.Fatalf("delete on keyless: %v", res.Err)
	}

	// A loaded instance has no addressable identity to save or delete.
	all, res := m.All(testCtx(t))
	if !res.OK || len(all) != 1 {
		t.Fatalf("all: %d err=%v", len(all), res.Err)
	}
	if res := all[0].Save(testCtx(t)); !errors.Is(res.Err, ErrNoPrimaryKey) {
		t.Fatalf("save loaded keyless: %v", res.Err)
	}
	if res := all[0].Delete(testCtx(t)); !errors.Is(res.Err, ErrNoPrimaryKey) {
		t.Fatalf("delete loaded keyless: %v", res.Err)
	}
}

func TestColumnFetchAndExists(t *testing.T) {
	d := openDatabase(t, testOptions(t))
	m, _ := d.Model("items")
	mustCreateSaved(t, m, "a", "http://x", 10)
	mustCreateSaved(t, m, "b", "http://y", 20)
	mustCreateSaved(t, m, "c", "ftp://z", 30)

	url, _ := m.Column("url")
	res := url.Fetch(testCtx(t), "http://%", "LIKE")
	if !res.OK || len(res.Rows) != 2 {
		t.Fatalf("fetch like: %d err=%v", len(res.Rows), res.Err)
	}

	size, _ := m.Column("size")
	res = size.Fetch(testCtx(t), 15, ">")
	if !res.OK || len(res.Rows) != 2 {
		t.Fatalf("fetch gt: %d err=%v", len(res.Rows), res.Err)
	}

	res = size.Fetch(testCtx(t), 10, "; DROP TABLE items")
	if res.OK || !errors.Is(res.Err, ErrBadOperator) {
		t.Fatalf("bad operator admitted: %v", res.Err)
	}

	eres := url.Exists(testCtx(t), "ftp://z")
	if !eres.OK || eres.Value != true {
		t.Fatalf("exists: %v err=%v", eres.Value, eres.Err)
	}
	eres = url.Exists(testCtx(t), "gopher://q")
	if !eres.OK || eres.Value != false {
		t.Fatalf("exists missing: %v err=%v", eres.Value, eres.Err)
	}
}

func TestColumnUpdateValues(t *testing.T) {
	d := openDatabase(t, testOptions(t))
	m, _ := d.Model("items")
	mustCreateSaved(t, m, "a", "http://x", 10)
	mustCreateSaved(t, m, "b", "http://y", 10)
	mustCreateSaved(t, m, "c", "http://z", 30)

	url, _ := m.Column("url")
	res := url.UpdateValues(testCtx(t), "http://same", "size", 10)
	if !res.OK || res.Changes != 2 {
		t.Fatalf("updatevalues: changes=%d err=%v", res.Changes, res.Err)
	}
	res = url.UpdateValues(testCtx(t), "x", "nope", 1)
	if res.OK || !errors.Is(res.Err, ErrUnknownColumn) {
		t.Fatalf("unknown where column admitted: %v", res.Err)
	}
}

func TestColumnMoveRelocatesMatchingRows(t *testing.T) {
	d := openDatabase(t, Options{
		Path:   filepath.Join(t.TempDir(), "pair.db"),
		Schema: pairSchema(t),
	})
	items, _ := d.Model("items")
	archive, _ := d.Model("archive")
	mustCreateSaved(t, items, "a", "http://x", 10)
	mustCreateSaved(t, items, "b", "http://y", 20)
	mustCreateSaved(t, items, "c", "http://z", 30)

	size, _ := items.Column("size")
	res := size.Move(testCtx(t), archive, 20, ">=")
	if !res.OK || res.Changes != 2 {
		t.Fatalf("move: changes=%d err=%v", res.Changes, res.Err)
	}
	if cres := items.Count(testCtx(t)); cres.Value != int64(1) {
		t.Fatalf("source count: %v", cres.Value)
	}
	if cres := archive.Count(testCtx(t)); cres.Value != int64(2) {
		t.Fatalf("dest count: %v", cres.Value)
	}
	moved, fres := archive.Find(testCtx(t), "b")
	if !fres.OK || moved.Get("url") != "http://y" || moved.Get("size") != int64(20) {
		t.Fatalf("moved row values: %v err=%v", moved.ToObject(true), fres.Err)
	}
}

func TestModelSetValueResolvesColumn(t *testing.T) {
	d := openDatabase(t, testOptions(t))
	m, _ := d.Model("items")
	mustCreateSaved(t, m, "a", "http://x", 10)

	res := m.SetValue(testCtx(t), "url", "http://y", "a")
	if !res.OK || res.Changes != 1 {
		t.Fatalf("setvalue: changes=%d err=%v", res.Changes, res.Err)
	}
	res = m.SetValue(testCtx(t), "bogus", "v", "a")
	if res.OK || !errors.Is(res.Err, ErrUnknownColumn) {
		t.Fatalf("unknown column admitted: %v", res.Err)
	}
	res = m.SetValue(testCtx(t), "url", "v", nil)
	if res.OK || !errors.Is(res.Err, ErrMissingKey) {
		t.Fatalf("nil key admitted: %v", res.Err)
	}
}
