/*
Copyright 2019 The Kubernetes Authors.

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

package queue

import "github.com/rk8s-dev/libscheduler-go/pkg/scheduler/framework"

// unschedulablePodData is one entry of the UnschedulablePool: a pod and
// the set of plugins that rejected it this cycle.
type unschedulablePodData struct {
	pod     *framework.PodInfo
	plugins map[string]struct{}
}

// UnschedulablePool holds pods awaiting a cluster event that makes
// them eligible again, keyed by name. Iteration order is unspecified.
type UnschedulablePool struct {
	pods map[string]unschedulablePodData
}

// NewUnschedulablePool returns an empty pool.
func NewUnschedulablePool() *UnschedulablePool {
	return &UnschedulablePool{pods: make(map[string]unschedulablePodData)}
}

// Add inserts pod with the set of plugin names that rejected it.
func (p *UnschedulablePool) Add(pod *framework.PodInfo, plugins map[string]struct{}) {
	pod.QueuedInfo.UnschedulablePlugins = plugins
	p.pods[pod.Name] = unschedulablePodData{pod: pod, plugins: plugins}
}

// Remove deletes the named pod from the pool, if present, and returns
// it.
func (p *UnschedulablePool) Remove(name string) *framework.PodInfo {
	entry, ok := p.pods[name]
	if !ok {
		return nil
	}
	delete(p.pods, name)
	return entry.pod
}

// Get returns the named pod and its rejecting plugin set, if present.
func (p *UnschedulablePool) Get(name string) (*framework.PodInfo, map[string]struct{}, bool) {
	entry, ok := p.pods[name]
	if !ok {
		return nil, nil, false
	}
	return entry.pod, entry.plugins, true
}

// Contains reports whether name is currently in the pool.
func (p *UnschedulablePool) Contains(name string) bool {
	_, ok := p.pods[name]
	return ok
}

// Len returns the number of pods in the pool.
func (p *UnschedulablePool) Len() int { return len(p.pods) }

// All returns every (pod, rejecting-plugins) pair in the pool. The
// returned slice is a point-in-time copy safe to range over while the
// caller mutates the pool.
func (p *UnschedulablePool) All() []struct {
	Pod     *framework.PodInfo
	Plugins map[string]struct{}
} {
	out := make([]struct {
		Pod     *framework.PodInfo
		Plugins map[string]struct{}
	}, 0, len(p.pods))
	for _, entry := range p.pods {
		out = append(out, struct {
			Pod     *framework.PodInfo
			Plugins map[string]struct{}
		}{Pod: entry.pod, Plugins: entry.plugins})
	}
	return out
}
