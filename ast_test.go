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

func TestNodePool_NewNodeDefaultsChildLinksToNoNode(t *testing.T) {
	pool := NewNodePool()
	idx, err := pool.New(NodeFor)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n := pool.Get(idx)
	for name, got := range map[string]NodeIndex{
		"Left": n.Left, "Right": n.Right, "Start": n.Start,
		"Limit": n.Limit, "Step": n.Step, "Filter": n.Filter, "Body": n.Body,
	} {
		if got != noNode {
			t.Errorf("%s = %d, want noNode", name, got)
		}
	}
}

func TestNodePool_GetReturnsStableHandleAcrossFurtherAllocations(t *testing.T) {
	pool := NewNodePool()
	first, err := pool.New(NodeNumber)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	pool.Get(first).IntVal = 42
	for i := 0; i < 10; i++ {
		if _, err := pool.New(NodeIdent); err != nil {
			t.Fatalf("New: %v", err)
		}
	}
	if got := pool.Get(first).IntVal; got != 42 {
		t.Fatalf("got %d, want 42 (first node's value should survive later allocations)", got)
	}
}

func TestNodePool_LenTracksAllocationCount(t *testing.T) {
	pool := NewNodePool()
	if pool.Len() != 0 {
		t.Fatalf("got %d, want 0 for a fresh pool", pool.Len())
	}
	for i := 0; i < 5; i++ {
		if _, err := pool.New(NodeBlock); err != nil {
			t.Fatalf("New: %v", err)
		}
	}
	if pool.Len() != 5 {
		t.Fatalf("got %d, want 5", pool.Len())
	}
}

func TestNodePool_ExceedingMaxNodesIsFatal(t *testing.T) {
	pool := &NodePool{nodes: make([]Node, maxNodes)}
	if _, err := pool.New(NodeBlock); err == nil {
		t.Fatal("expected an error once the pool is at capacity")
	}
}
