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

package nodeaffinity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler/framework"
)

func TestFilterNodeSelector(t *testing.T) {
	pl := New()
	node := &framework.NodeInfo{Labels: map[string]string{"disk": "ssd"}}

	pod := &framework.PodInfo{Spec: framework.PodSpec{NodeSelector: map[string]string{"disk": "ssd"}}}
	assert.Nil(t, pl.Filter(nil, nil, pod, node))

	pod.Spec.NodeSelector["zone"] = "a"
	status := pl.Filter(nil, nil, pod, node)
	require.NotNil(t, status)
	assert.True(t, status.IsUnschedulable())
}

func TestFilterRequiredAffinityOperators(t *testing.T) {
	pl := New()
	node := &framework.NodeInfo{Labels: map[string]string{"tier": "3"}}

	cases := []struct {
		name string
		req  framework.NodeSelectorRequirement
		want bool
	}{
		{"in match", framework.NodeSelectorRequirement{Key: "tier", Operator: framework.NodeSelectorOpIn, Values: []string{"3"}}, true},
		{"in mismatch", framework.NodeSelectorRequirement{Key: "tier", Operator: framework.NodeSelectorOpIn, Values: []string{"1"}}, false},
		{"exists", framework.NodeSelectorRequirement{Key: "tier", Operator: framework.NodeSelectorOpExists}, true},
		{"does not exist", framework.NodeSelectorRequirement{Key: "missing", Operator: framework.NodeSelectorOpDoesNotExist}, true},
		{"gt", framework.NodeSelectorRequirement{Key: "tier", Operator: framework.NodeSelectorOpGt, Values: []string{"2"}}, true},
		{"lt", framework.NodeSelectorRequirement{Key: "tier", Operator: framework.NodeSelectorOpLt, Values: []string{"2"}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pod := &framework.PodInfo{Spec: framework.PodSpec{Affinity: &framework.NodeAffinity{
				Required: []framework.NodeSelectorTerm{{MatchExpressions: []framework.NodeSelectorRequirement{tc.req}}},
			}}}
			status := pl.Filter(nil, nil, pod, node)
			assert.Equal(t, tc.want, status.IsSuccess())
		})
	}
}

func TestEventsToRegisterNodeLabelChange(t *testing.T) {
	pl := New()
	events, err := pl.EventsToRegister(nil)
	require.NoError(t, err)
	require.Len(t, events, 1)

	pod := &framework.PodInfo{Spec: framework.PodSpec{NodeSelector: map[string]string{"disk": "ssd"}}}
	hint, err := events[0].QueueingHintFn(pod, framework.EventInner{Modified: &framework.NodeInfo{Labels: map[string]string{"disk": "ssd"}}})
	require.NoError(t, err)
	assert.Equal(t, framework.Queue, hint)

	hint, err = events[0].QueueingHintFn(pod, framework.EventInner{Modified: &framework.NodeInfo{}})
	require.NoError(t, err)
	assert.Equal(t, framework.QueueSkip, hint)
}
