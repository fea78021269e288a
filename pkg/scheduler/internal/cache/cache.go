/*
Copyright 2015 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package cache holds the concurrent, consistent view of cluster state
// (pods and nodes) the scheduling loop pops immutable snapshots from.
package cache

import (
	"sync"

	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler/framework"
)

// Snapshot is an immutable view of cluster state for the duration of
// one scheduling cycle.
type Snapshot struct {
	Pods  map[string]*framework.PodInfo
	Nodes map[string]*framework.NodeInfo
}

// NodeList returns the snapshot's nodes as a slice, in no particular
// order.
func (s *Snapshot) NodeList() []*framework.NodeInfo {
	out := make([]*framework.NodeInfo, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		out = append(out, n)
	}
	return out
}

// Cache is a store of pods and nodes guarded by a single mutex, so
// every method is safe to call from any goroutine (the scheduling loop,
// the event router fed by the adapter, Unassume callers). Snapshot
// always returns a consistent, independent copy.
type Cache struct {
	mu    sync.Mutex
	pods  map[string]*framework.PodInfo
	nodes map[string]*framework.NodeInfo
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		pods:  make(map[string]*framework.PodInfo),
		nodes: make(map[string]*framework.NodeInfo),
	}
}

// Snapshot deep-copies the current state into an immutable view.
func (c *Cache) Snapshot() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	pods := make(map[string]*framework.PodInfo, len(c.pods))
	for k, v := range c.pods {
		pods[k] = v.Clone()
	}
	nodes := make(map[string]*framework.NodeInfo, len(c.nodes))
	for k, v := range c.nodes {
		nodes[k] = v.Clone()
	}
	return &Snapshot{Pods: pods, Nodes: nodes}
}

// AddPod inserts or replaces pod.
func (c *Cache) AddPod(pod *framework.PodInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pods[pod.Name] = pod
}

// RemovePod deletes the named pod and returns it, if present. If the
// pod was scheduled, the caller is responsible for crediting its
// resources back to the node first (see queue.Router.DeletePod, which
// calls UnassignPod before RemovePod).
func (c *Cache) RemovePod(name string) *framework.PodInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.pods[name]
	delete(c.pods, name)
	return p
}

// Pod returns the named pod, or nil if absent.
func (c *Cache) Pod(name string) *framework.PodInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pods[name]
}

// AddNode inserts or replaces node.
func (c *Cache) AddNode(node *framework.NodeInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes[node.Name] = node
}

// RemoveNode deletes the named node and returns it, if present.
func (c *Cache) RemoveNode(name string) *framework.NodeInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.nodes[name]
	delete(c.nodes, name)
	return n
}

// Node returns the named node, or nil if absent.
func (c *Cache) Node(name string) *framework.NodeInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodes[name]
}

// PodsScheduledTo returns all cached pods currently assigned to
// nodeName.
func (c *Cache) PodsScheduledTo(nodeName string) []*framework.PodInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*framework.PodInfo
	for _, p := range c.pods {
		if p.Scheduled != nil && *p.Scheduled == nodeName {
			out = append(out, p)
		}
	}
	return out
}

// AssignPod records that pod is now bound to nodeName and adds its
// resource request to that node's Requested. It does nothing if either
// the pod or the node is not cached.
func (c *Cache) AssignPod(podName, nodeName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pod, ok := c.pods[podName]
	if !ok {
		return
	}
	node, ok := c.nodes[nodeName]
	if !ok {
		return
	}
	name := nodeName
	pod.Scheduled = &name
	node.Requested = node.Requested.Add(pod.Spec.Resources)
}

// UnassignPod clears pod's scheduled node and credits its resources
// back, if both the pod and its former node are still cached.
func (c *Cache) UnassignPod(podName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pod, ok := c.pods[podName]
	if !ok || pod.Scheduled == nil {
		return
	}
	if node, ok := c.nodes[*pod.Scheduled]; ok {
		node.Requested = node.Requested.SaturatingSub(pod.Spec.Resources)
	}
	pod.Scheduled = nil
}
