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

// Package nodeaffinity implements the NodeAffinity filter plugin:
// node_selector and the required side of pod.spec.affinity.
package nodeaffinity

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler/framework"
)

// Name is the name of the NodeAffinity plugin.
const Name = "NodeAffinity"

// ErrReason is recorded when a node matches neither the pod's
// node selector nor its required node affinity.
const ErrReason = "node(s) didn't match Pod's node affinity/selector"

var _ framework.FilterPlugin = &NodeAffinity{}
var _ framework.EnqueueExtensions = &NodeAffinity{}

// NodeAffinity rejects nodes that don't satisfy pod.Spec.NodeSelector
// or the required term of pod.Spec.Affinity.
type NodeAffinity struct{}

// New builds a NodeAffinity plugin.
func New() *NodeAffinity { return &NodeAffinity{} }

// Name implements framework.Plugin.
func (pl *NodeAffinity) Name() string { return Name }

// Filter implements framework.FilterPlugin.
func (pl *NodeAffinity) Filter(_ context.Context, _ *framework.CycleState, pod *framework.PodInfo, node *framework.NodeInfo) *framework.Status {
	if !matchesNodeSelector(pod.Spec.NodeSelector, node.Labels) {
		return framework.NewStatus(framework.Unschedulable, ErrReason)
	}
	if pod.Spec.Affinity != nil && len(pod.Spec.Affinity.Required) > 0 {
		if !matchesAnyTerm(pod.Spec.Affinity.Required, node.Labels) {
			return framework.NewStatus(framework.Unschedulable, ErrReason)
		}
	}
	return nil
}

func matchesNodeSelector(selector map[string]string, labels map[string]string) bool {
	for k, v := range selector {
		if labels[k] != v {
			return false
		}
	}
	return true
}

func matchesAnyTerm(terms []framework.NodeSelectorTerm, labels map[string]string) bool {
	for _, term := range terms {
		if matchesTerm(term, labels) {
			return true
		}
	}
	return false
}

func matchesTerm(term framework.NodeSelectorTerm, labels map[string]string) bool {
	for _, req := range term.MatchExpressions {
		if !matchesRequirement(req, labels) {
			return false
		}
	}
	return true
}

func matchesRequirement(req framework.NodeSelectorRequirement, labels map[string]string) bool {
	value, exists := labels[req.Key]
	switch req.Operator {
	case framework.NodeSelectorOpExists:
		return exists
	case framework.NodeSelectorOpDoesNotExist:
		return !exists
	case framework.NodeSelectorOpIn:
		return exists && containsString(req.Values, value)
	case framework.NodeSelectorOpNotIn:
		return !exists || !containsString(req.Values, value)
	case framework.NodeSelectorOpGt:
		return exists && compareNumeric(value, req.Values) > 0
	case framework.NodeSelectorOpLt:
		return exists && compareNumeric(value, req.Values) < 0
	default:
		return false
	}
}

// compareNumeric parses value and the single expected value in
// reqValues as integers and returns their difference's sign; it
// returns 0 (no match) if either side fails to parse.
func compareNumeric(value string, reqValues []string) int {
	if len(reqValues) != 1 {
		return 0
	}
	v, err1 := strconv.Atoi(value)
	want, err2 := strconv.Atoi(reqValues[0])
	if err1 != nil || err2 != nil {
		return 0
	}
	switch {
	case v > want:
		return 1
	case v < want:
		return -1
	default:
		return 0
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// EventsToRegister reports that a node's labels changing, or a node
// being added, may make a previously rejected pod fit.
func (pl *NodeAffinity) EventsToRegister(context.Context) ([]framework.ClusterEventWithHint, error) {
	return []framework.ClusterEventWithHint{
		{
			Event:          framework.ClusterEvent{Resource: framework.Node, ActionType: framework.Add | framework.UpdateNodeLabel},
			QueueingHintFn: pl.isSchedulableAfterNodeChange,
		},
	}, nil
}

func (pl *NodeAffinity) isSchedulableAfterNodeChange(pod *framework.PodInfo, event framework.EventInner) (framework.QueueingHint, error) {
	node, ok := event.Modified.(*framework.NodeInfo)
	if !ok || node == nil {
		return framework.QueueSkip, fmt.Errorf("event inner %v did not carry a *framework.NodeInfo", event)
	}
	if !matchesNodeSelector(pod.Spec.NodeSelector, node.Labels) {
		return framework.QueueSkip, nil
	}
	if pod.Spec.Affinity != nil && len(pod.Spec.Affinity.Required) > 0 && !matchesAnyTerm(pod.Spec.Affinity.Required, node.Labels) {
		return framework.QueueSkip, nil
	}
	return framework.Queue, nil
}
