// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cfg

// ReversePostOrder computes a post-order traversal of p's forward
// reachability set from its entry, and returns it reversed. This is the
// canonical iteration order for dominance and liveness (spec.md §4.4); it
// is deterministic for a given CFG because Successors always returns
// successors in edge-insertion order.
func (p *Procedure) ReversePostOrder() []BlockID {
	if !p.hasEntry {
		return nil
	}

	visited := make(map[BlockID]bool)
	var post []BlockID

	var visit func(BlockID)
	visit = func(id BlockID) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, s := range p.g.Successors(id) {
			visit(s)
		}
		post = append(post, id)
	}
	visit(p.Entry)

	rpo := make([]BlockID, len(post))
	for i, id := range post {
		rpo[len(post)-1-i] = id
	}
	return rpo
}
