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

// fakeRouter records the calls EtcdSource makes, so tests can assert on
// add-vs-update/delete dispatch without a live etcd server.
type fakeRouter struct {
	addedNodes   []*framework.NodeInfo
	updatedNodes [][2]*framework.NodeInfo
	removedNodes []string

	addedPods   []*framework.PodInfo
	updatedPods [][2]*framework.PodInfo
	removedPods []string
}

func (f *fakeRouter) AddNode(node *framework.NodeInfo) { f.addedNodes = append(f.addedNodes, node) }
func (f *fakeRouter) UpdateNode(old, newNode *framework.NodeInfo) {
	f.updatedNodes = append(f.updatedNodes, [2]*framework.NodeInfo{old, newNode})
}
func (f *fakeRouter) RemoveNode(name string) { f.removedNodes = append(f.removedNodes, name) }
func (f *fakeRouter) AddPod(pod *framework.PodInfo) { f.addedPods = append(f.addedPods, pod) }
func (f *fakeRouter) UpdatePod(old, newPod *framework.PodInfo) {
	f.updatedPods = append(f.updatedPods, [2]*framework.PodInfo{old, newPod})
}
func (f *fakeRouter) RemovePod(name string) { f.removedPods = append(f.removedPods, name) }

func newTestSource(router Router) *EtcdSource {
	return &EtcdSource{router: router, knownNodes: map[string]*framework.NodeInfo{}, knownPods: map[string]*framework.PodInfo{}}
}

const nodeYAML = `
metadata:
  name: n1
  labels:
    zone: a
status:
  allocatable:
    cpu: "4"
    memory: 4Gi
`

func TestHandleNodePutFirstSeenIsAdd(t *testing.T) {
	router := &fakeRouter{}
	s := newTestSource(router)

	s.handleNodePut([]byte(nodeYAML))

	require.Len(t, router.addedNodes, 1)
	assert.Equal(t, "n1", router.addedNodes[0].Name)
	assert.Empty(t, router.updatedNodes)
}

func TestHandleNodePutSecondSeenIsUpdate(t *testing.T) {
	router := &fakeRouter{}
	s := newTestSource(router)

	s.handleNodePut([]byte(nodeYAML))
	s.handleNodePut([]byte(nodeYAML))

	assert.Len(t, router.addedNodes, 1)
	require.Len(t, router.updatedNodes, 1)
	assert.Equal(t, "n1", router.updatedNodes[0][1].Name)
}

func TestHandleNodePutMalformedYAMLIsSkipped(t *testing.T) {
	router := &fakeRouter{}
	s := newTestSource(router)

	s.handleNodePut([]byte("not: [valid"))

	assert.Empty(t, router.addedNodes)
}

func TestHandleNodePutInvalidQuantityIsSkipped(t *testing.T) {
	router := &fakeRouter{}
	s := newTestSource(router)

	s.handleNodePut([]byte("metadata:\n  name: n1\nstatus:\n  allocatable:\n    cpu: bogus\n"))

	assert.Empty(t, router.addedNodes)
}

func TestHandleNodeDeleteStripsKeyPrefix(t *testing.T) {
	router := &fakeRouter{}
	s := newTestSource(router)
	s.knownNodes["n1"] = &framework.NodeInfo{Name: "n1"}

	s.handleNodeDelete(nodePrefix + "n1")

	require.Len(t, router.removedNodes, 1)
	assert.Equal(t, "n1", router.removedNodes[0])
	_, stillKnown := s.knownNodes["n1"]
	assert.False(t, stillKnown)
}

const podYAML = `
metadata:
  name: p1
spec:
  containers:
    - name: app
      resources:
        limits:
          cpu: 500m
          memory: 256Mi
`

func TestHandlePodPutFirstSeenIsAdd(t *testing.T) {
	router := &fakeRouter{}
	s := newTestSource(router)

	s.handlePodPut([]byte(podYAML))

	require.Len(t, router.addedPods, 1)
	assert.Equal(t, "p1", router.addedPods[0].Name)
	assert.Equal(t, int64(500), router.addedPods[0].Spec.Resources.CPU)
}

func TestHandlePodPutSecondSeenIsUpdate(t *testing.T) {
	router := &fakeRouter{}
	s := newTestSource(router)

	s.handlePodPut([]byte(podYAML))
	s.handlePodPut([]byte(podYAML))

	assert.Len(t, router.addedPods, 1)
	require.Len(t, router.updatedPods, 1)
}

func TestHandlePodDeleteStripsKeyPrefix(t *testing.T) {
	router := &fakeRouter{}
	s := newTestSource(router)
	s.knownPods["p1"] = &framework.PodInfo{Name: "p1"}

	s.handlePodDelete(podPrefix + "p1")

	require.Len(t, router.removedPods, 1)
	assert.Equal(t, "p1", router.removedPods[0])
}
