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

// Package nodeunschedulable implements the NodeUnschedulable filter
// plugin, which specifically reacts to the NodeNotReady/NoSchedule
// taint, leaving every other NoSchedule taint to the general-purpose
// TaintToleration plugin. Like any other NoSchedule taint, a pod that
// carries a matching toleration is still eligible for the node.
package nodeunschedulable

import (
	"context"

	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler/framework"
)

// Name is the name of the NodeUnschedulable plugin.
const Name = "NodeUnschedulable"

// ErrReasonUnschedulable is recorded when a node carries the
// NodeNotReady/NoSchedule taint.
const ErrReasonUnschedulable = "node(s) were unschedulable"

var _ framework.FilterPlugin = &NodeUnschedulable{}
var _ framework.EnqueueExtensions = &NodeUnschedulable{}

// NodeUnschedulable rejects nodes tainted NodeNotReady/NoSchedule.
type NodeUnschedulable struct{}

// New builds a NodeUnschedulable plugin.
func New() *NodeUnschedulable { return &NodeUnschedulable{} }

// Name implements framework.Plugin.
func (pl *NodeUnschedulable) Name() string { return Name }

func unschedulableTaint(node *framework.NodeInfo) (framework.Taint, bool) {
	for _, t := range node.Spec.Taints {
		if t.Key == framework.TaintNodeNotReady && t.Effect == framework.TaintEffectNoSchedule {
			return t, true
		}
	}
	return framework.Taint{}, false
}

// Filter implements framework.FilterPlugin.
func (pl *NodeUnschedulable) Filter(_ context.Context, _ *framework.CycleState, pod *framework.PodInfo, node *framework.NodeInfo) *framework.Status {
	taint, ok := unschedulableTaint(node)
	if !ok {
		return nil
	}
	if framework.TolerationsTolerateTaint(pod.Spec.Tolerations, taint) {
		return nil
	}
	return framework.NewStatus(framework.Unschedulable, ErrReasonUnschedulable)
}

// EventsToRegister reports that a node update may clear its
// NodeNotReady taint.
func (pl *NodeUnschedulable) EventsToRegister(context.Context) ([]framework.ClusterEventWithHint, error) {
	return []framework.ClusterEventWithHint{
		{
			Event:          framework.ClusterEvent{Resource: framework.Node, ActionType: framework.UpdateNodeTaint},
			QueueingHintFn: pl.isSchedulableAfterNodeChange,
		},
	}, nil
}

func (pl *NodeUnschedulable) isSchedulableAfterNodeChange(pod *framework.PodInfo, event framework.EventInner) (framework.QueueingHint, error) {
	node, ok := event.Modified.(*framework.NodeInfo)
	if !ok || node == nil {
		return framework.QueueSkip, nil
	}
	taint, ok := unschedulableTaint(node)
	if !ok || framework.TolerationsTolerateTaint(pod.Spec.Tolerations, taint) {
		return framework.Queue, nil
	}
	return framework.QueueSkip, nil
}
