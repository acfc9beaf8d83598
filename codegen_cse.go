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

// cseCacheSize bounds the common-subexpression cache to a fixed number
// of live entries per function, evicted in FIFO order once full (spec.md
// §4.3 "CSE cache, 32 entries").
const cseCacheSize = 32

// cseEntry records one previously-computed `left op right` result and
// the stack slot its value was spilled to, so a repeated occurrence of
// the same bare-identifier expression can reload instead of recompute.
type cseEntry struct {
	op     string
	left   string
	right  string
	offset int
}

// CSECache is reset once per function body. Only expressions whose both
// operands are bare identifiers are cached (spec.md §4.3): anything
// involving a call, an index, or a literal is never looked up or
// inserted, since re-evaluating those is not provably safe without a
// full value-numbering pass this compiler does not implement.
type CSECache struct {
	entries []cseEntry
}

// NewCSECache returns an empty cache.
func NewCSECache() *CSECache {
	return &CSECache{entries: make([]cseEntry, 0, cseCacheSize)}
}

// Lookup returns the cached slot offset for `left op right`, if present.
func (c *CSECache) Lookup(op, left, right string) (int, bool) {
	for _, e := range c.entries {
		if e.op == op && e.left == left && e.right == right {
			return e.offset, true
		}
	}
	return 0, false
}

// Insert records a new cached result, evicting the oldest entry once the
// cache is full.
func (c *CSECache) Insert(op, left, right string, offset int) {
	if len(c.entries) >= cseCacheSize {
		c.entries = c.entries[1:]
	}
	c.entries = append(c.entries, cseEntry{op: op, left: left, right: right, offset: offset})
}

// identName reports the bare identifier name a node holds, and whether
// it is in fact a bare identifier — the only shape CSE considers.
func (cg *Codegen) identName(idx NodeIndex) (string, bool) {
	n := cg.pool.Get(idx)
	if n.Kind == NodeIdent {
		return n.Name, true
	}
	return "", false
}
