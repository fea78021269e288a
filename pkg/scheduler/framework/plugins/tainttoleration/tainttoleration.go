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

// Package tainttoleration implements the general-purpose
// TaintToleration filter plugin.
package tainttoleration

import (
	"context"
	"fmt"

	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler/framework"
)

// Name is the name of the TaintToleration plugin.
const Name = "TaintToleration"

var _ framework.FilterPlugin = &TaintToleration{}
var _ framework.EnqueueExtensions = &TaintToleration{}

// TaintToleration rejects nodes that carry a NoSchedule taint the pod
// doesn't tolerate.
type TaintToleration struct{}

// New builds a TaintToleration plugin.
func New() *TaintToleration { return &TaintToleration{} }

// Name implements framework.Plugin.
func (pl *TaintToleration) Name() string { return Name }

func untoleratedTaints(pod *framework.PodInfo, node *framework.NodeInfo) []framework.Taint {
	var untolerated []framework.Taint
	for _, t := range node.Spec.Taints {
		if t.Effect != framework.TaintEffectNoSchedule {
			continue
		}
		if !framework.TolerationsTolerateTaint(pod.Spec.Tolerations, t) {
			untolerated = append(untolerated, t)
		}
	}
	return untolerated
}

// Filter implements framework.FilterPlugin.
func (pl *TaintToleration) Filter(_ context.Context, _ *framework.CycleState, pod *framework.PodInfo, node *framework.NodeInfo) *framework.Status {
	untolerated := untoleratedTaints(pod, node)
	if len(untolerated) == 0 {
		return nil
	}
	reasons := make([]string, 0, len(untolerated))
	for _, t := range untolerated {
		reasons = append(reasons, fmt.Sprintf("node(s) had untolerated taint {%s: %s}", t.Key, t.Value))
	}
	return framework.NewStatus(framework.Unschedulable, reasons...)
}

// EventsToRegister reports that a node's taints changing may make a
// previously rejected pod fit.
func (pl *TaintToleration) EventsToRegister(context.Context) ([]framework.ClusterEventWithHint, error) {
	return []framework.ClusterEventWithHint{
		{
			Event:          framework.ClusterEvent{Resource: framework.Node, ActionType: framework.Add | framework.UpdateNodeTaint},
			QueueingHintFn: pl.isSchedulableAfterNodeChange,
		},
		{
			Event:          framework.ClusterEvent{Resource: framework.Pod, ActionType: framework.UpdatePodLabel},
			QueueingHintFn: pl.isSchedulableAfterPodUpdate,
		},
	}, nil
}

func (pl *TaintToleration) isSchedulableAfterNodeChange(pod *framework.PodInfo, event framework.EventInner) (framework.QueueingHint, error) {
	node, ok := event.Modified.(*framework.NodeInfo)
	if !ok || node == nil {
		return framework.QueueSkip, nil
	}
	if len(untoleratedTaints(pod, node)) == 0 {
		return framework.Queue, nil
	}
	return framework.QueueSkip, nil
}

// isSchedulableAfterPodUpdate covers the case where the target pod
// itself was modified to add a toleration.
func (pl *TaintToleration) isSchedulableAfterPodUpdate(_ *framework.PodInfo, _ framework.EventInner) (framework.QueueingHint, error) {
	return framework.Queue, nil
}
