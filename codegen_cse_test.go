// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import "testing"

func TestCSECache_InsertThenLookupHits(t *testing.T) {
	c := NewCSECache()
	c.Insert("+", "a", "b", -8)
	offset, ok := c.Lookup("+", "a", "b")
	if !ok || offset != -8 {
		t.Fatalf("got offset=%d ok=%v, want -8 true", offset, ok)
	}
}

func TestCSECache_LookupMissesOnDifferentOperandsOrOp(t *testing.T) {
	c := NewCSECache()
	c.Insert("+", "a", "b", -8)
	if _, ok := c.Lookup("-", "a", "b"); ok {
		t.Fatal("expected a miss for a different operator")
	}
	if _, ok := c.Lookup("+", "b", "a"); ok {
		t.Fatal("expected a miss for swapped operands")
	}
}

func TestCSECache_EvictsOldestEntryOnceFull(t *testing.T) {
	c := NewCSECache()
	for i := 0; i < cseCacheSize; i++ {
		c.Insert("+", "v", string(rune('a'+i)), i)
	}
	// The cache is now full; one more insert must evict the very first entry.
	c.Insert("+", "v", "overflow", 999)
	if _, ok := c.Lookup("+", "v", "a"); ok {
		t.Fatal("expected the oldest entry to have been evicted")
	}
	if offset, ok := c.Lookup("+", "v", "overflow"); !ok || offset != 999 {
		t.Fatalf("got offset=%d ok=%v, want 999 true", offset, ok)
	}
}

func TestRegAllocator_AcquireExhaustsAtTwo(t *testing.T) {
	r := NewRegAllocator()
	reg1, ok1 := r.Acquire("i")
	reg2, ok2 := r.Acquire("j")
	_, ok3 := r.Acquire("k")
	if !ok1 || !ok2 {
		t.Fatalf("expected the first two acquires to succeed: ok1=%v ok2=%v", ok1, ok2)
	}
	if ok3 {
		t.Fatal("expected a third concurrent acquire to fail (two-register budget)")
	}
	if reg1 == reg2 {
		t.Fatalf("expected distinct registers, got %q twice", reg1)
	}
}

func TestRegAllocator_ReleaseFreesARegisterForReuse(t *testing.T) {
	r := NewRegAllocator()
	r.Acquire("i")
	r.Acquire("j")
	r.Release("i")
	_, ok := r.Acquire("k")
	if !ok {
		t.Fatal("expected Acquire to succeed after a Release freed a slot")
	}
}

func TestRegAllocator_RegisterForReportsTheAssignedRegister(t *testing.T) {
	r := NewRegAllocator()
	reg, _ := r.Acquire("i")
	got, ok := r.RegisterFor("i")
	if !ok || got != reg {
		t.Fatalf("got %q ok=%v, want %q true", got, ok, reg)
	}
	if _, ok := r.RegisterFor("never-acquired"); ok {
		t.Fatal("expected RegisterFor to fail for a name never acquired")
	}
}
