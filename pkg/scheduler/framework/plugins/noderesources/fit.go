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

// Package noderesources holds the resource-capacity plugins:
// NodeResourcesFit and NodeResourcesBalancedAllocation.
package noderesources

import (
	"context"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler/framework"
)

// Name is the name of the NodeResourcesFit plugin.
const Name = "NodeResourcesFit"

const (
	preFilterStateKey = "PreFilter" + Name
	preScoreStateKey  = "PreScore" + Name
)

// ScoringStrategyType selects the NodeResourcesFit scoring algorithm.
type ScoringStrategyType string

const (
	LeastAllocated           ScoringStrategyType = "LeastAllocated"
	MostAllocated            ScoringStrategyType = "MostAllocated"
	RequestedToCapacityRatio ScoringStrategyType = "RequestedToCapacityRatio"
)

var _ framework.PreFilterPlugin = &Fit{}
var _ framework.FilterPlugin = &Fit{}
var _ framework.PreScorePlugin = &Fit{}
var _ framework.ScorePlugin = &Fit{}
var _ framework.EnqueueExtensions = &Fit{}

// Fit checks and scores nodes for available cpu/memory capacity.
type Fit struct {
	strategy ScoringStrategyType
}

// NewFit builds a NodeResourcesFit plugin using the given scoring
// strategy. RequestedToCapacityRatio is treated as MostAllocated, per
// the spec this repo implements two resource dimensions for.
func NewFit(strategy ScoringStrategyType) *Fit {
	return &Fit{strategy: strategy}
}

// Name implements framework.Plugin.
func (f *Fit) Name() string { return Name }

type preFilterState struct {
	podRequests framework.ResourceRequirements
}

func (s *preFilterState) Clone() framework.StateData { return s }

type preScoreState struct {
	podRequests framework.ResourceRequirements
}

func (s *preScoreState) Clone() framework.StateData { return s }

// PreFilter stores the pod's resource requests for use by Filter.
func (f *Fit) PreFilter(_ context.Context, state *framework.CycleState, pod *framework.PodInfo, _ []*framework.NodeInfo) (*framework.PreFilterResult, *framework.Status) {
	state.Write(preFilterStateKey, &preFilterState{podRequests: pod.Spec.Resources})
	return nil, nil
}

func getPreFilterState(state *framework.CycleState) (*preFilterState, error) {
	c, ok := state.Read(preFilterStateKey)
	if !ok {
		return nil, fmt.Errorf("reading %q from cycle state: not found", preFilterStateKey)
	}
	s, ok := c.(*preFilterState)
	if !ok {
		return nil, fmt.Errorf("invalid PreFilter state, got type %T", c)
	}
	return s, nil
}

// ErrReasonInsufficientResources is the reason recorded when a node
// lacks the cpu or memory capacity a pod requested.
const ErrReasonInsufficientResources = "node(s) didn't have enough resource(s)"

// Fits reports whether node has enough spare capacity for podRequests.
func Fits(podRequests framework.ResourceRequirements, node *framework.NodeInfo) bool {
	if podRequests.CPU > 0 && podRequests.CPU > node.Allocatable.CPU-node.Requested.CPU {
		return false
	}
	if podRequests.Memory > 0 && podRequests.Memory > node.Allocatable.Memory-node.Requested.Memory {
		return false
	}
	return true
}

// Filter rejects nodes that don't have enough cpu or memory headroom.
func (f *Fit) Filter(_ context.Context, state *framework.CycleState, _ *framework.PodInfo, node *framework.NodeInfo) *framework.Status {
	s, err := getPreFilterState(state)
	if err != nil {
		return framework.AsStatus(err)
	}
	if !Fits(s.podRequests, node) {
		return framework.NewStatus(framework.Unschedulable, ErrReasonInsufficientResources)
	}
	return nil
}

// PreScore stores the pod's resource requests for use by Score.
func (f *Fit) PreScore(_ context.Context, state *framework.CycleState, pod *framework.PodInfo, _ []*framework.NodeInfo) *framework.Status {
	state.Write(preScoreStateKey, &preScoreState{podRequests: pod.Spec.Resources})
	return nil
}

func getPreScoreState(state *framework.CycleState, pod *framework.PodInfo) *preScoreState {
	c, ok := state.Read(preScoreStateKey)
	if !ok {
		return &preScoreState{podRequests: pod.Spec.Resources}
	}
	s, ok := c.(*preScoreState)
	if !ok {
		return &preScoreState{podRequests: pod.Spec.Resources}
	}
	return s
}

// Score implements the LeastAllocated/MostAllocated/
// RequestedToCapacityRatio strategies, all expressed in terms of
// average fractional utilization across cpu and memory.
func (f *Fit) Score(_ context.Context, state *framework.CycleState, pod *framework.PodInfo, nodeName string) (int64, *framework.Status) {
	s := getPreScoreState(state, pod)
	node := nodeFromState(state, nodeName)
	if node == nil {
		return 0, framework.AsStatus(fmt.Errorf("node %q not found in cycle state", nodeName))
	}
	most := mostAllocatedScore(s.podRequests, node)
	switch f.strategy {
	case MostAllocated, RequestedToCapacityRatio:
		return most, nil
	case LeastAllocated:
		return 100 - most, nil
	default:
		return 0, framework.AsStatus(fmt.Errorf("scoring strategy %q is not supported", f.strategy))
	}
}

// ScoreExtensions normalizes NodeResourcesFit's raw 0-100 scores.
func (f *Fit) ScoreExtensions() framework.ScoreExtensions {
	return framework.DefaultNormalizeScore{MaxScore: 100, Reverse: false}
}

func mostAllocatedScore(podRequests framework.ResourceRequirements, node *framework.NodeInfo) int64 {
	var cpuUtil, memUtil float64
	if node.Allocatable.CPU > 0 {
		cpuUtil = float64(node.Requested.CPU+podRequests.CPU) / float64(node.Allocatable.CPU)
	}
	if node.Allocatable.Memory > 0 {
		memUtil = float64(node.Requested.Memory+podRequests.Memory) / float64(node.Allocatable.Memory)
	}
	return int64((cpuUtil + memUtil) / 2.0 * 100.0)
}

// EventsToRegister reports the cluster events that may make a pod this
// plugin rejected schedulable again: another pod being deleted (frees
// resources), or a node being added/updated with more allocatable
// capacity.
func (f *Fit) EventsToRegister(context.Context) ([]framework.ClusterEventWithHint, error) {
	return []framework.ClusterEventWithHint{
		{
			Event:          framework.ClusterEvent{Resource: framework.Pod, ActionType: framework.Delete},
			QueueingHintFn: f.isSchedulableAfterPodDelete,
		},
		{
			Event:          framework.ClusterEvent{Resource: framework.Node, ActionType: framework.Add | framework.UpdateNodeAllocatable},
			QueueingHintFn: f.isSchedulableAfterNodeChange,
		},
	}, nil
}

func (f *Fit) isSchedulableAfterPodDelete(pod *framework.PodInfo, event framework.EventInner) (framework.QueueingHint, error) {
	if event.Modified != nil {
		return framework.QueueSkip, nil
	}
	klog.V(5).InfoS("a scheduled pod was deleted, it may free resources for this pod", "pod", pod.Name)
	return framework.Queue, nil
}

func (f *Fit) isSchedulableAfterNodeChange(pod *framework.PodInfo, event framework.EventInner) (framework.QueueingHint, error) {
	node, ok := event.Modified.(*framework.NodeInfo)
	if !ok || node == nil {
		return framework.QueueSkip, fmt.Errorf("event inner %v did not carry a *framework.NodeInfo", event)
	}
	if Fits(pod.Spec.Resources, node) {
		klog.V(5).InfoS("node change may make pod fit now", "pod", pod.Name, "node", node.Name)
		return framework.Queue, nil
	}
	return framework.QueueSkip, nil
}

// nodeScoreStateKey is how candidate NodeInfos are threaded through to
// Score, since ScorePlugin.Score only receives a node name.
const nodeScoreStateKey = "ScoreCandidateNodes"

// NodeLookup is written once per cycle (by the pipeline runner) so that
// Score plugins can resolve a node name back to its NodeInfo.
type NodeLookup map[string]*framework.NodeInfo

func (n NodeLookup) Clone() framework.StateData { return n }

// WriteNodeLookup stores the candidate node map for this cycle.
func WriteNodeLookup(state *framework.CycleState, nodes []*framework.NodeInfo) {
	lookup := make(NodeLookup, len(nodes))
	for _, n := range nodes {
		lookup[n.Name] = n
	}
	state.Write(nodeScoreStateKey, lookup)
}

func nodeFromState(state *framework.CycleState, nodeName string) *framework.NodeInfo {
	c, ok := state.Read(nodeScoreStateKey)
	if !ok {
		return nil
	}
	lookup, ok := c.(NodeLookup)
	if !ok {
		return nil
	}
	return lookup[nodeName]
}
