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

package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler/framework"
)

func strptr(s string) *string { return &s }

func TestParseCPU(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"4", 4000},
		{"0.5", 500},
		{"500m", 500},
		{"", 0},
	}
	for _, tc := range cases {
		got, err := parseCPU(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestParseCPUInvalid(t *testing.T) {
	_, err := parseCPU("not-a-number")
	assert.Error(t, err)
}

func TestParseMemory(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"4Gi", 4 << 30},
		{"512Mi", 512 << 20},
		{"1Ki", 1 << 10},
		{"1024", 1024},
	}
	for _, tc := range cases {
		got, err := parseMemory(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestParseMemoryInvalid(t *testing.T) {
	_, err := parseMemory("lots")
	assert.Error(t, err)
}

func TestParseResources(t *testing.T) {
	got, err := parseResources(map[string]string{"cpu": "4", "memory": "4Gi"})
	require.NoError(t, err)
	assert.Equal(t, framework.ResourceRequirements{CPU: 4000, Memory: 4 << 30}, got)
}

func TestNodeTaintsSynthesizesNotReadyTaint(t *testing.T) {
	ready := NodeStatusRecord{Conditions: []NodeCondition{{Type: "Ready", Status: "True"}}}
	assert.Nil(t, nodeTaints(ready))

	notReady := NodeStatusRecord{Conditions: []NodeCondition{{Type: "Ready", Status: "False"}}}
	taints := nodeTaints(notReady)
	require.Len(t, taints, 1)
	assert.Equal(t, notReadyTaint, taints[0])
}

func TestToNodeInfo(t *testing.T) {
	rec := &NodeRecord{
		Metadata: ObjectMeta{Name: "n1", Labels: map[string]string{"zone": "a"}},
		Status: NodeStatusRecord{
			Allocatable: map[string]string{"cpu": "4", "memory": "4Gi"},
			Conditions:  []NodeCondition{{Type: "Ready", Status: "True"}},
		},
	}
	node, err := toNodeInfo(rec)
	require.NoError(t, err)
	assert.Equal(t, "n1", node.Name)
	assert.Equal(t, int64(4000), node.Allocatable.CPU)
	assert.Equal(t, int64(4<<30), node.Allocatable.Memory)
	assert.Equal(t, "a", node.Labels["zone"])
	assert.Empty(t, node.Spec.Taints)
}

func TestToNodeInfoInvalidQuantity(t *testing.T) {
	rec := &NodeRecord{
		Metadata: ObjectMeta{Name: "n1"},
		Status:   NodeStatusRecord{Allocatable: map[string]string{"cpu": "bogus"}},
	}
	_, err := toNodeInfo(rec)
	assert.Error(t, err)
}

func TestToPodInfoSumsContainerLimits(t *testing.T) {
	rec := &PodRecord{
		Metadata: ObjectMeta{Name: "p1"},
		Spec: PodSpecRecord{
			Containers: []ContainerSpec{
				{Name: "a", Resources: &ContainerRes{Limits: &Resource{CPU: strptr("500m"), Memory: strptr("256Mi")}}},
				{Name: "b", Resources: &ContainerRes{Limits: &Resource{CPU: strptr("250m"), Memory: strptr("128Mi")}}},
			},
		},
	}
	pod, err := toPodInfo(rec)
	require.NoError(t, err)
	assert.Equal(t, "p1", pod.Name)
	assert.Equal(t, int64(750), pod.Spec.Resources.CPU)
	assert.Equal(t, int64(384<<20), pod.Spec.Resources.Memory)
	assert.Nil(t, pod.Scheduled)
}

func TestToPodInfoInitContainersTakeMax(t *testing.T) {
	rec := &PodRecord{
		Metadata: ObjectMeta{Name: "p1"},
		Spec: PodSpecRecord{
			Containers:     []ContainerSpec{{Name: "a", Resources: &ContainerRes{Limits: &Resource{CPU: strptr("250m")}}}},
			InitContainers: []ContainerSpec{{Name: "init", Resources: &ContainerRes{Limits: &Resource{CPU: strptr("1")}}}},
		},
	}
	pod, err := toPodInfo(rec)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), pod.Spec.Resources.CPU)
}

func TestToPodInfoSkipsContainersWithoutResources(t *testing.T) {
	rec := &PodRecord{
		Metadata: ObjectMeta{Name: "p1"},
		Spec:     PodSpecRecord{Containers: []ContainerSpec{{Name: "a"}}},
	}
	pod, err := toPodInfo(rec)
	require.NoError(t, err)
	assert.Equal(t, framework.ResourceRequirements{}, pod.Spec.Resources)
}

func TestToPodInfoAlreadyBoundSetsScheduled(t *testing.T) {
	rec := &PodRecord{
		Metadata: ObjectMeta{Name: "p1"},
		NodeName: "n1",
	}
	pod, err := toPodInfo(rec)
	require.NoError(t, err)
	require.NotNil(t, pod.Scheduled)
	assert.Equal(t, "n1", *pod.Scheduled)
}

func TestToPodInfoInvalidQuantity(t *testing.T) {
	rec := &PodRecord{
		Metadata: ObjectMeta{Name: "p1"},
		Spec: PodSpecRecord{
			Containers: []ContainerSpec{{Name: "a", Resources: &ContainerRes{Limits: &Resource{CPU: strptr("nope")}}}},
		},
	}
	_, err := toPodInfo(rec)
	assert.Error(t, err)
}
