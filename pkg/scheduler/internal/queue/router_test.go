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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler/framework"
	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler/internal/cache"
)

// fakePlugin wakes a pod whenever it sees the registered event, so
// tests can drive the router without a real built-in plugin.
type fakePlugin struct {
	name  string
	event framework.ClusterEvent
}

func (f *fakePlugin) Name() string { return f.name }
func (f *fakePlugin) EventsToRegister(context.Context) ([]framework.ClusterEventWithHint, error) {
	return []framework.ClusterEventWithHint{{
		Event:          f.event,
		QueueingHintFn: func(*framework.PodInfo, framework.EventInner) (framework.QueueingHint, error) { return framework.Queue, nil },
	}}, nil
}

func TestRouterAddPodEnqueuesUnscheduled(t *testing.T) {
	r := NewRouter(cache.New(), nil)
	r.AddPod(&framework.PodInfo{Name: "p1"})
	assert.Equal(t, 1, r.ActiveLen())
}

func TestRouterAddPodAlreadyScheduledSkipsQueue(t *testing.T) {
	r := NewRouter(cache.New(), nil)
	nodeName := "n1"
	r.AddPod(&framework.PodInfo{Name: "p1", Scheduled: &nodeName})
	assert.Equal(t, 0, r.ActiveLen())
}

func TestRouterAddPodAlreadyScheduledCreditsNodeRequested(t *testing.T) {
	r := NewRouter(cache.New(), nil)
	r.AddNode(&framework.NodeInfo{Name: "n1", Allocatable: framework.ResourceRequirements{CPU: 4000, Memory: 4 << 30}})
	nodeName := "n1"
	r.AddPod(&framework.PodInfo{
		Name:      "p1",
		Spec:      framework.PodSpec{Resources: framework.ResourceRequirements{CPU: 1000, Memory: 1 << 30}},
		Scheduled: &nodeName,
	})

	node := r.Cache().Node("n1")
	require.NotNil(t, node)
	assert.Equal(t, int64(1000), node.Requested.CPU)
	assert.Equal(t, int64(1<<30), node.Requested.Memory)
}

func TestRouterMarkUnschedulableThenWakeOnMatchingEvent(t *testing.T) {
	plugin := &fakePlugin{name: "Fake", event: framework.ClusterEvent{Resource: framework.Node, ActionType: framework.Add}}
	r := NewRouter(cache.New(), []framework.Plugin{plugin})

	pod := &framework.PodInfo{Name: "p1"}
	r.MarkUnschedulable(pod, map[string]struct{}{"Fake": {}})
	assert.Equal(t, 0, r.ActiveLen())
	assert.Equal(t, 1, r.UnschedulableLen())

	r.AddNode(&framework.NodeInfo{Name: "n1"})
	assert.Equal(t, 1, r.ActiveLen())
	assert.Equal(t, 0, r.UnschedulableLen())
}

func TestRouterMarkUnschedulableUnrelatedEventDoesNotWake(t *testing.T) {
	plugin := &fakePlugin{name: "Fake", event: framework.ClusterEvent{Resource: framework.Node, ActionType: framework.UpdateNodeTaint}}
	r := NewRouter(cache.New(), []framework.Plugin{plugin})

	pod := &framework.PodInfo{Name: "p1"}
	r.MarkUnschedulable(pod, map[string]struct{}{"Fake": {}})
	r.AddNode(&framework.NodeInfo{Name: "n1"})

	assert.Equal(t, 0, r.ActiveLen())
	assert.Equal(t, 1, r.UnschedulableLen())
}

func TestRouterDeleteNodeRequeuesScheduledPods(t *testing.T) {
	r := NewRouter(cache.New(), nil)
	r.AddNode(&framework.NodeInfo{Name: "n1", Allocatable: framework.ResourceRequirements{CPU: 4000}})
	r.Cache().AddPod(&framework.PodInfo{Name: "p1"})
	r.Cache().AssignPod("p1", "n1")

	r.DeleteNode("n1")

	assert.Equal(t, 1, r.ActiveLen())
	popped := r.Pop()
	require.NotNil(t, popped)
	assert.Nil(t, popped.Scheduled)
}

func TestRouterPopBlocksUntilPush(t *testing.T) {
	r := NewRouter(cache.New(), nil)
	done := make(chan *framework.PodInfo, 1)
	go func() { done <- r.Pop() }()

	select {
	case <-done:
		t.Fatal("Pop returned before any pod was pushed")
	case <-time.After(50 * time.Millisecond):
	}

	r.PushActive(&framework.PodInfo{Name: "p1"})
	select {
	case pod := <-done:
		require.NotNil(t, pod)
		assert.Equal(t, "p1", pod.Name)
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after push")
	}
}

func TestRouterClosePopReturnsNil(t *testing.T) {
	r := NewRouter(cache.New(), nil)
	done := make(chan *framework.PodInfo, 1)
	go func() { done <- r.Pop() }()

	time.Sleep(20 * time.Millisecond)
	r.Close()

	select {
	case pod := <-done:
		assert.Nil(t, pod)
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Close")
	}
}

func TestRouterIdle(t *testing.T) {
	r := NewRouter(cache.New(), nil)
	assert.True(t, r.Idle())
	r.AddPod(&framework.PodInfo{Name: "p1"})
	assert.False(t, r.Idle())
}
