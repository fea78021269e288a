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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler/framework"
)

func podAt(name string, priority uint64, t time.Time) *framework.PodInfo {
	return &framework.PodInfo{Name: name, Spec: framework.PodSpec{Priority: priority}, QueuedInfo: framework.QueuedInfo{EnqueueTimestamp: t}}
}

func TestActiveQueueOrdersByPriorityThenFIFO(t *testing.T) {
	q := NewActiveQueue()
	base := time.Now()
	q.Push(podAt("low-early", 1, base))
	q.Push(podAt("high-late", 10, base.Add(time.Second)))
	q.Push(podAt("high-early", 10, base))

	assert.Equal(t, "high-early", q.Pop().Name)
	assert.Equal(t, "high-late", q.Pop().Name)
	assert.Equal(t, "low-early", q.Pop().Name)
	assert.Nil(t, q.Pop())
}

func TestActiveQueueNameTiebreak(t *testing.T) {
	q := NewActiveQueue()
	now := time.Now()
	q.Push(podAt("b", 1, now))
	q.Push(podAt("a", 1, now))
	assert.Equal(t, "a", q.Pop().Name)
	assert.Equal(t, "b", q.Pop().Name)
}

func TestActiveQueuePushReplacesExisting(t *testing.T) {
	q := NewActiveQueue()
	now := time.Now()
	q.Push(podAt("p", 1, now))
	q.Push(podAt("p", 5, now))
	require.Equal(t, 1, q.Len())
	assert.Equal(t, uint64(5), q.Pop().Spec.Priority)
}

func TestActiveQueueRemove(t *testing.T) {
	q := NewActiveQueue()
	q.Push(podAt("p", 1, time.Now()))
	assert.True(t, q.Contains("p"))
	q.Remove("p")
	assert.False(t, q.Contains("p"))
	assert.Equal(t, 0, q.Len())
}
