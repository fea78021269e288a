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

package nodename

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler/framework"
)

func TestFilterUnconstrained(t *testing.T) {
	pl := New()
	status := pl.Filter(nil, nil, &framework.PodInfo{}, &framework.NodeInfo{Name: "n1"})
	assert.Nil(t, status)
}

func TestFilterMatchingAndMismatching(t *testing.T) {
	pl := New()
	pod := &framework.PodInfo{Spec: framework.PodSpec{NodeName: "n1"}}

	assert.Nil(t, pl.Filter(nil, nil, pod, &framework.NodeInfo{Name: "n1"}))

	status := pl.Filter(nil, nil, pod, &framework.NodeInfo{Name: "n2"})
	require.NotNil(t, status)
	assert.True(t, status.IsUnschedulable())
}

func TestEventsToRegisterNodeAdd(t *testing.T) {
	pl := New()
	events, err := pl.EventsToRegister(nil)
	require.NoError(t, err)
	require.Len(t, events, 1)

	pod := &framework.PodInfo{Spec: framework.PodSpec{NodeName: "n1"}}
	hint, err := events[0].QueueingHintFn(pod, framework.EventInner{Modified: &framework.NodeInfo{Name: "n1"}})
	require.NoError(t, err)
	assert.Equal(t, framework.Queue, hint)

	hint, err = events[0].QueueingHintFn(pod, framework.EventInner{Modified: &framework.NodeInfo{Name: "n2"}})
	require.NoError(t, err)
	assert.Equal(t, framework.QueueSkip, hint)
}
