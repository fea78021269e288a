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

// Package nodename implements the NodeName filter plugin.
package nodename

import (
	"context"

	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler/framework"
)

// Name is the name of the NodeName plugin.
const Name = "NodeName"

// ErrReason is recorded when a pod requests a specific node and the
// candidate isn't it.
const ErrReason = "node(s) didn't match the requested node name"

var _ framework.FilterPlugin = &NodeName{}
var _ framework.EnqueueExtensions = &NodeName{}

// NodeName rejects every node but the one named in pod.Spec.NodeName,
// when set.
type NodeName struct{}

// New builds a NodeName plugin.
func New() *NodeName { return &NodeName{} }

// Name implements framework.Plugin.
func (pl *NodeName) Name() string { return Name }

// Filter implements framework.FilterPlugin.
func (pl *NodeName) Filter(_ context.Context, _ *framework.CycleState, pod *framework.PodInfo, node *framework.NodeInfo) *framework.Status {
	if pod.Spec.NodeName != "" && pod.Spec.NodeName != node.Name {
		return framework.NewStatus(framework.Unschedulable, ErrReason)
	}
	return nil
}

// EventsToRegister reports that a node addition may make a pod pinned
// to that node's name schedulable.
func (pl *NodeName) EventsToRegister(context.Context) ([]framework.ClusterEventWithHint, error) {
	return []framework.ClusterEventWithHint{
		{
			Event:          framework.ClusterEvent{Resource: framework.Node, ActionType: framework.Add},
			QueueingHintFn: pl.isSchedulableAfterNodeAdd,
		},
	}, nil
}

func (pl *NodeName) isSchedulableAfterNodeAdd(pod *framework.PodInfo, event framework.EventInner) (framework.QueueingHint, error) {
	node, ok := event.Modified.(*framework.NodeInfo)
	if !ok || node == nil {
		return framework.QueueSkip, nil
	}
	if pod.Spec.NodeName == node.Name {
		return framework.Queue, nil
	}
	return framework.QueueSkip, nil
}
