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

package noderesources

import (
	"context"
	"fmt"
	"math"

	"k8s.io/klog/v2"

	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler/framework"
)

// BalancedAllocationName is the name of the NodeResourcesBalancedAllocation plugin.
const BalancedAllocationName = "NodeResourcesBalancedAllocation"

const balancedAllocationPreScoreKey = "PreScore" + BalancedAllocationName

var _ framework.PreScorePlugin = &BalancedAllocation{}
var _ framework.ScorePlugin = &BalancedAllocation{}
var _ framework.EnqueueExtensions = &BalancedAllocation{}

// BalancedAllocation favors nodes that would end up with cpu and
// memory utilization close to each other after the pod is placed.
type BalancedAllocation struct{}

// NewBalancedAllocation builds a NodeResourcesBalancedAllocation plugin.
func NewBalancedAllocation() *BalancedAllocation { return &BalancedAllocation{} }

// Name implements framework.Plugin.
func (b *BalancedAllocation) Name() string { return BalancedAllocationName }

type balancedAllocationPreScoreState struct {
	podRequests framework.ResourceRequirements
}

func (s *balancedAllocationPreScoreState) Clone() framework.StateData { return s }

func isBestEffort(r framework.ResourceRequirements) bool {
	return r.CPU == 0 && r.Memory == 0
}

// PreScore returns Skip for best-effort pods (no cpu or memory
// request), so Score is not run for them in this cycle.
func (b *BalancedAllocation) PreScore(_ context.Context, state *framework.CycleState, pod *framework.PodInfo, _ []*framework.NodeInfo) *framework.Status {
	if isBestEffort(pod.Spec.Resources) {
		klog.V(5).InfoS("skipping BalancedAllocation scoring for best-effort pod", "pod", pod.Name)
		return framework.NewStatus(framework.Skip)
	}
	state.Write(balancedAllocationPreScoreKey, &balancedAllocationPreScoreState{podRequests: pod.Spec.Resources})
	return nil
}

// Score computes (1 - std(cpuFraction, memFraction)) * 100, where std
// is half the absolute difference between the two fractions.
func (b *BalancedAllocation) Score(_ context.Context, state *framework.CycleState, pod *framework.PodInfo, nodeName string) (int64, *framework.Status) {
	node := nodeFromState(state, nodeName)
	if node == nil {
		return 0, framework.AsStatus(fmt.Errorf("node %q not found in cycle state", nodeName))
	}
	podRequests := pod.Spec.Resources
	if c, ok := state.Read(balancedAllocationPreScoreKey); ok {
		if s, ok := c.(*balancedAllocationPreScoreState); ok {
			podRequests = s.podRequests
		}
	}
	return balancedResourceScore(podRequests, node), nil
}

// ScoreExtensions normalizes BalancedAllocation's raw 0-100 scores.
func (b *BalancedAllocation) ScoreExtensions() framework.ScoreExtensions {
	return framework.DefaultNormalizeScore{MaxScore: 100, Reverse: false}
}

func balancedResourceScore(podRequests framework.ResourceRequirements, node *framework.NodeInfo) int64 {
	cpuFraction := fractionOf(node.Requested.CPU+podRequests.CPU, node.Allocatable.CPU)
	memFraction := fractionOf(node.Requested.Memory+podRequests.Memory, node.Allocatable.Memory)
	std := math.Abs(cpuFraction-memFraction) / 2.0
	return int64((1.0 - std) * 100.0)
}

func fractionOf(used, allocatable int64) float64 {
	if allocatable == 0 {
		return 0
	}
	f := float64(used) / float64(allocatable)
	if f > 1.0 {
		f = 1.0
	}
	return f
}

// EventsToRegister mirrors NodeResourcesFit's registrations: a pod
// deletion or a node gaining capacity may make this node score
// (or become feasible) differently.
func (b *BalancedAllocation) EventsToRegister(context.Context) ([]framework.ClusterEventWithHint, error) {
	return []framework.ClusterEventWithHint{
		{
			Event:          framework.ClusterEvent{Resource: framework.Pod, ActionType: framework.Delete},
			QueueingHintFn: b.isSchedulableAfterPodDelete,
		},
		{
			Event:          framework.ClusterEvent{Resource: framework.Node, ActionType: framework.Add | framework.UpdateNodeAllocatable},
			QueueingHintFn: b.isSchedulableAfterNodeChange,
		},
	}, nil
}

func (b *BalancedAllocation) isSchedulableAfterPodDelete(pod *framework.PodInfo, event framework.EventInner) (framework.QueueingHint, error) {
	if event.Modified != nil {
		return framework.QueueSkip, nil
	}
	return framework.Queue, nil
}

func (b *BalancedAllocation) isSchedulableAfterNodeChange(pod *framework.PodInfo, event framework.EventInner) (framework.QueueingHint, error) {
	node, ok := event.Modified.(*framework.NodeInfo)
	if !ok || node == nil {
		return framework.QueueSkip, fmt.Errorf("event inner %v did not carry a *framework.NodeInfo", event)
	}
	if Fits(pod.Spec.Resources, node) {
		return framework.Queue, nil
	}
	return framework.QueueSkip, nil
}
