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

import (
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler/framework"
	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler/internal/cache"
)

// pluginHints is the registry the Router consults when deciding
// whether an event wakes an unschedulable pod: plugin name -> the
// registrations that plugin made via EnqueueExtensions.
type pluginHints map[string][]framework.ClusterEventWithHint

// Router owns the cache, the active queue and the unschedulable pool,
// and is the single place pod/node mutations enter the scheduler. It
// implements section 4.5 of the design: every mutation updates the
// cache, then re-evaluates the unschedulable pool against registered
// queueing hints.
//
// Router is safe for concurrent use: Pop blocks (via sync.Cond) until
// a pod becomes active or the Router is closed, while every other
// method acquires the same mutex the scheduling loop never holds
// across an await point.
type Router struct {
	mu     sync.Mutex
	cond   *sync.Cond
	closed bool

	cache  *cache.Cache
	active *ActiveQueue
	pool   *UnschedulablePool
	hints  pluginHints
}

// NewRouter builds a Router backed by c, with hints registered from
// plugins (any plugin implementing framework.EnqueueExtensions).
func NewRouter(c *cache.Cache, plugins []framework.Plugin) *Router {
	r := &Router{cache: c, active: NewActiveQueue(), pool: NewUnschedulablePool(), hints: pluginHints{}}
	r.cond = sync.NewCond(&r.mu)
	for _, p := range plugins {
		ee, ok := p.(framework.EnqueueExtensions)
		if !ok {
			continue
		}
		events, err := ee.EventsToRegister(nil)
		if err != nil {
			klog.ErrorS(err, "plugin failed to register events", "plugin", p.Name())
			continue
		}
		r.hints[p.Name()] = events
	}
	return r
}

// Cache returns the underlying cache.
func (r *Router) Cache() *cache.Cache { return r.cache }

// Close unblocks any goroutine waiting in Pop.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.cond.Broadcast()
}

// Pop blocks until a pod is available in the active queue or the
// router is closed, in which case it returns nil.
func (r *Router) Pop() *framework.PodInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.active.Len() == 0 && !r.closed {
		r.cond.Wait()
	}
	if r.active.Len() == 0 {
		return nil
	}
	return r.active.Pop()
}

// PushActive enqueues pod directly, without going through an add/update
// event. Used by the scheduler when a cycle fails with a plugin error
// (backoff-then-requeue) and when unassume fires.
func (r *Router) PushActive(pod *framework.PodInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushActiveLocked(pod)
}

func (r *Router) pushActiveLocked(pod *framework.PodInfo) {
	r.pool.Remove(pod.Name)
	r.active.Remove(pod.Name)
	r.active.Push(pod)
	r.cond.Signal()
}

// MarkUnschedulable moves pod out of the active queue (if present) and
// into the unschedulable pool, recording which plugins rejected it.
func (r *Router) MarkUnschedulable(pod *framework.PodInfo, plugins map[string]struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active.Remove(pod.Name)
	r.pool.Add(pod, plugins)
}

// AddPod applies a pod-add event: caches the pod and, if it doesn't
// already carry a node assignment, enqueues it active. A pod that
// already carries an assignment (the adapter's "already bound" case)
// is left out of every pool but still credited against its node's
// Requested, so a pre-bound pod discovered via AddPod consumes
// capacity exactly like one scheduled through this loop.
func (r *Router) AddPod(pod *framework.PodInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.AddPod(pod)
	if pod.Scheduled != nil {
		r.cache.AssignPod(pod.Name, *pod.Scheduled)
	} else {
		r.pushActiveLocked(pod)
	}
	r.reconsiderLocked(framework.Pod, framework.Add, framework.EventInner{Resource: framework.Pod, Original: nil, Modified: pod})
}

// UpdatePod applies a pod-update event (a full replacement per the
// design's lifecycle rules).
func (r *Router) UpdatePod(old, newPod *framework.PodInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Credit back whatever the previously cached version of this pod
	// held its node for, before the replacement lands, so a resource or
	// node-name change on update doesn't leave stale accounting behind.
	r.cache.UnassignPod(newPod.Name)
	r.cache.AddPod(newPod)
	if newPod.Scheduled != nil {
		r.cache.AssignPod(newPod.Name, *newPod.Scheduled)
	}
	action := framework.UpdatePodLabel
	if podResourcesScaledDown(old, newPod) {
		action |= framework.UpdatePodScaleDown
	}
	r.reconsiderLocked(framework.Pod, action, framework.EventInner{Resource: framework.Pod, Original: old, Modified: newPod})
}

func podResourcesScaledDown(old, newPod *framework.PodInfo) bool {
	if old == nil || newPod == nil {
		return false
	}
	return newPod.Spec.Resources.CPU < old.Spec.Resources.CPU ||
		newPod.Spec.Resources.Memory < old.Spec.Resources.Memory
}

// DeletePod applies a pod-delete event: evicts it from the cache and
// both pools, crediting its node's requested resources back if it was
// scheduled.
func (r *Router) DeletePod(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.UnassignPod(name)
	pod := r.cache.RemovePod(name)
	r.active.Remove(name)
	r.pool.Remove(name)
	r.reconsiderLocked(framework.Pod, framework.Delete, framework.EventInner{Resource: framework.Pod, Original: pod, Modified: nil})
}

// AddNode applies a node-add event.
func (r *Router) AddNode(node *framework.NodeInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.AddNode(node)
	r.reconsiderLocked(framework.Node, framework.Add, framework.EventInner{Resource: framework.Node, Original: nil, Modified: node})
}

// UpdateNode applies a node-update event.
func (r *Router) UpdateNode(old, newNode *framework.NodeInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.AddNode(newNode)
	action := nodeUpdateActionType(old, newNode)
	r.reconsiderLocked(framework.Node, action, framework.EventInner{Resource: framework.Node, Original: old, Modified: newNode})
}

func nodeUpdateActionType(old, newNode *framework.NodeInfo) framework.ActionType {
	var action framework.ActionType
	if old == nil {
		return framework.UpdateNodeAllocatable | framework.UpdateNodeLabel | framework.UpdateNodeTaint
	}
	if old.Allocatable != newNode.Allocatable || old.Requested != newNode.Requested {
		action |= framework.UpdateNodeAllocatable
	}
	if !stringMapEqual(old.Labels, newNode.Labels) {
		action |= framework.UpdateNodeLabel
	}
	if !taintsEqual(old.Spec.Taints, newNode.Spec.Taints) {
		action |= framework.UpdateNodeTaint
	}
	return action
}

func stringMapEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func taintsEqual(a, b []framework.Taint) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// DeleteNode applies a node-delete event: evicts the node, and moves
// every pod that was scheduled to it back into the active queue with
// Scheduled cleared, per invariant 4 in the design.
func (r *Router) DeleteNode(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	node := r.cache.RemoveNode(name)
	for _, pod := range r.cache.PodsScheduledTo(name) {
		pod.Scheduled = nil
		pod.QueuedInfo.EnqueueTimestamp = time.Now()
		r.pushActiveLocked(pod)
	}
	r.reconsiderLocked(framework.Node, framework.Delete, framework.EventInner{Resource: framework.Node, Original: node, Modified: nil})
}

// reconsiderLocked implements the hint-discipline loop of section 4.5:
// for every pod parked in the unschedulable pool, for every plugin
// that rejected it, find that plugin's registrations matching this
// event's (resource, action) and invoke the hint function. If any hint
// returns Queue, the pod moves back to the active queue.
func (r *Router) reconsiderLocked(resource framework.EventResource, action framework.ActionType, event framework.EventInner) {
	for _, entry := range r.pool.All() {
		if r.shouldWakeLocked(entry.Pod, entry.Plugins, resource, action, event) {
			entry.Pod.QueuedInfo.EnqueueTimestamp = time.Now()
			r.pushActiveLocked(entry.Pod)
		}
	}
}

func (r *Router) shouldWakeLocked(pod *framework.PodInfo, plugins map[string]struct{}, resource framework.EventResource, action framework.ActionType, event framework.EventInner) bool {
	for pluginName := range plugins {
		for _, reg := range r.hints[pluginName] {
			if !reg.Event.Matches(resource, action) {
				continue
			}
			hint, err := reg.QueueingHintFn(pod, event)
			if err != nil {
				klog.ErrorS(err, "queueing hint function failed, defaulting to Queue", "plugin", pluginName, "pod", pod.Name)
				return true
			}
			if hint == framework.Queue {
				return true
			}
		}
	}
	return false
}

// ActiveLen returns the number of pods currently in the active queue.
func (r *Router) ActiveLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active.Len()
}

// UnschedulableLen returns the number of pods currently in the
// unschedulable pool.
func (r *Router) UnschedulableLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pool.Len()
}

// Idle reports whether both the active queue and the unschedulable
// pool are empty. The scheduling loop does not consult it.
func (r *Router) Idle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active.Len() == 0 && r.pool.Len() == 0
}
