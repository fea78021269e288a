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

// Package queue holds the active queue, the unschedulable pool, and the
// event router that moves pods between them.
package queue

import (
	"container/heap"

	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler/framework"
)

// heapItem is one entry in the active queue's backing heap.
type heapItem struct {
	pod   *framework.PodInfo
	index int
}

// podHeap orders items by (-priority, enqueueTimestamp, name): highest
// priority first, FIFO within a priority tier, name as a final
// deterministic tiebreak.
type podHeap []*heapItem

func (h podHeap) Len() int { return len(h) }

func (h podHeap) Less(i, j int) bool {
	a, b := h[i].pod, h[j].pod
	if a.Spec.Priority != b.Spec.Priority {
		return a.Spec.Priority > b.Spec.Priority
	}
	if !a.QueuedInfo.EnqueueTimestamp.Equal(b.QueuedInfo.EnqueueTimestamp) {
		return a.QueuedInfo.EnqueueTimestamp.Before(b.QueuedInfo.EnqueueTimestamp)
	}
	return a.Name < b.Name
}

func (h podHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *podHeap) Push(x any) {
	item := x.(*heapItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *podHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// ActiveQueue is a priority-ordered queue of schedulable pods. It is
// not safe for concurrent use; callers (the event router and the
// scheduling loop) are expected to hold the same mutex while touching
// it, per the single-writer model in section 5 of the design.
type ActiveQueue struct {
	h     podHeap
	byPod map[string]*heapItem
}

// NewActiveQueue returns an empty ActiveQueue.
func NewActiveQueue() *ActiveQueue {
	return &ActiveQueue{byPod: make(map[string]*heapItem)}
}

// Push inserts or replaces pod in the queue.
func (q *ActiveQueue) Push(pod *framework.PodInfo) {
	if existing, ok := q.byPod[pod.Name]; ok {
		existing.pod = pod
		heap.Fix(&q.h, existing.index)
		return
	}
	item := &heapItem{pod: pod}
	heap.Push(&q.h, item)
	q.byPod[pod.Name] = item
}

// Pop removes and returns the highest-priority pod, or nil if the
// queue is empty. It never blocks; the scheduling loop is responsible
// for waiting on a notification when Pop returns nil.
func (q *ActiveQueue) Pop() *framework.PodInfo {
	if q.h.Len() == 0 {
		return nil
	}
	item := heap.Pop(&q.h).(*heapItem)
	delete(q.byPod, item.pod.Name)
	return item.pod
}

// Remove deletes the named pod from the queue, if present.
func (q *ActiveQueue) Remove(name string) {
	item, ok := q.byPod[name]
	if !ok {
		return
	}
	heap.Remove(&q.h, item.index)
	delete(q.byPod, name)
}

// Contains reports whether name is currently queued.
func (q *ActiveQueue) Contains(name string) bool {
	_, ok := q.byPod[name]
	return ok
}

// Len returns the number of queued pods.
func (q *ActiveQueue) Len() int { return q.h.Len() }
