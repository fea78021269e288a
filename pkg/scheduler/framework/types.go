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

// Package framework holds the data model and plugin contracts shared by
// the scheduling pipeline: pods, nodes, resource requirements, taints
// and affinity, and the per-cycle scratchpad plugins read and write.
package framework

import "time"

// ResourceRequirements is milli-cpu and bytes, the two dimensions the
// built-in plugins reason about.
type ResourceRequirements struct {
	CPU    int64
	Memory int64
}

// Add returns the componentwise sum.
func (r ResourceRequirements) Add(o ResourceRequirements) ResourceRequirements {
	return ResourceRequirements{CPU: r.CPU + o.CPU, Memory: r.Memory + o.Memory}
}

// SaturatingSub returns the componentwise difference, floored at zero.
// Bookkeeping must never go negative when a pod is removed out of order.
func (r ResourceRequirements) SaturatingSub(o ResourceRequirements) ResourceRequirements {
	out := ResourceRequirements{CPU: r.CPU - o.CPU, Memory: r.Memory - o.Memory}
	if out.CPU < 0 {
		out.CPU = 0
	}
	if out.Memory < 0 {
		out.Memory = 0
	}
	return out
}

// TaintKey enumerates the well-known node taint keys.
type TaintKey string

const (
	TaintNodeNotReady            TaintKey = "NodeNotReady"
	TaintNodeMemoryPressure      TaintKey = "NodeMemoryPressure"
	TaintNodeDiskPressure        TaintKey = "NodeDiskPressure"
	TaintNodeOutOfService        TaintKey = "NodeOutOfService"
	TaintNodePIDPressure         TaintKey = "NodePIDPressure"
	TaintNodeNetworkUnavailable  TaintKey = "NodeNetworkUnavailable"
)

// TaintEffect is the repel strength of a taint.
type TaintEffect string

const (
	TaintEffectNoSchedule       TaintEffect = "NoSchedule"
	TaintEffectPreferNoSchedule TaintEffect = "PreferNoSchedule"
	TaintEffectNoExecute        TaintEffect = "NoExecute"
)

// Taint is a node-side repel constraint.
type Taint struct {
	Key    TaintKey
	Value  string
	Effect TaintEffect
}

// TolerationOperator is the match mode of a Toleration.
type TolerationOperator string

const (
	TolerationOpEqual  TolerationOperator = "Equal"
	TolerationOpExists TolerationOperator = "Exists"
)

// Toleration is a pod-side allow constraint matching zero or more taints.
type Toleration struct {
	Key      TaintKey
	Operator TolerationOperator
	Value    string
	Effect   TaintEffect // empty means "matches any effect"
}

// ToleratesTaint reports whether t tolerates the given taint.
// Exists with no key tolerates every taint.
func (t Toleration) ToleratesTaint(taint Taint) bool {
	if t.Effect != "" && t.Effect != taint.Effect {
		return false
	}
	if t.Key != "" && t.Key != taint.Key {
		return false
	}
	switch t.Operator {
	case TolerationOpExists, "":
		return true
	case TolerationOpEqual:
		return t.Value == taint.Value
	default:
		return false
	}
}

// TolerationsTolerateTaint reports whether any toleration in the list
// tolerates the given taint.
func TolerationsTolerateTaint(tolerations []Toleration, taint Taint) bool {
	for _, t := range tolerations {
		if t.ToleratesTaint(taint) {
			return true
		}
	}
	return false
}

// NodeSelectorOperator is the comparison applied to one label.
type NodeSelectorOperator string

const (
	NodeSelectorOpIn           NodeSelectorOperator = "In"
	NodeSelectorOpNotIn        NodeSelectorOperator = "NotIn"
	NodeSelectorOpExists       NodeSelectorOperator = "Exists"
	NodeSelectorOpDoesNotExist NodeSelectorOperator = "DoesNotExist"
	NodeSelectorOpGt           NodeSelectorOperator = "Gt"
	NodeSelectorOpLt           NodeSelectorOperator = "Lt"
)

// NodeSelectorRequirement is one label expression within a NodeSelectorTerm.
type NodeSelectorRequirement struct {
	Key      string
	Operator NodeSelectorOperator
	Values   []string
}

// NodeSelectorTerm is a conjunction of NodeSelectorRequirements.
type NodeSelectorTerm struct {
	MatchExpressions []NodeSelectorRequirement
}

// PreferredSchedulingTerm is a weighted NodeSelectorTerm.
type PreferredSchedulingTerm struct {
	Weight int32
	Term   NodeSelectorTerm
}

// NodeAffinity holds the required (hard) and preferred (soft) node
// selector expressions of a pod.
type NodeAffinity struct {
	Required  []NodeSelectorTerm // disjunction: any term matching is sufficient
	Preferred []PreferredSchedulingTerm
}

// PodSpec is the placement-relevant subset of a pod's specification.
type PodSpec struct {
	Resources    ResourceRequirements
	Priority     uint64
	NodeName     string // empty means unconstrained
	NodeSelector map[string]string
	Tolerations  []Toleration
	Affinity     *NodeAffinity
}

// QueuedInfo tracks a pod's history while it sits in a scheduling pool.
type QueuedInfo struct {
	EnqueueTimestamp      time.Time
	Attempts              uint64
	LastAttemptTimestamp  time.Time
	UnschedulablePlugins  map[string]struct{}
}

// PodInfo is a pod as the scheduler sees it.
type PodInfo struct {
	Name       string
	Spec       PodSpec
	QueuedInfo QueuedInfo
	Scheduled  *string // node name, nil if unscheduled
}

// Clone returns a deep-enough copy safe to hand to a concurrent reader.
func (p *PodInfo) Clone() *PodInfo {
	if p == nil {
		return nil
	}
	out := *p
	out.Spec.NodeSelector = cloneStringMap(p.Spec.NodeSelector)
	out.Spec.Tolerations = append([]Toleration(nil), p.Spec.Tolerations...)
	if p.Spec.Affinity != nil {
		aff := *p.Spec.Affinity
		cloneTerm := func(term NodeSelectorTerm) NodeSelectorTerm {
			exprs := make([]NodeSelectorRequirement, len(term.MatchExpressions))
			for i, req := range term.MatchExpressions {
				req.Values = append([]string(nil), req.Values...)
				exprs[i] = req
			}
			return NodeSelectorTerm{MatchExpressions: exprs}
		}
		aff.Required = nil
		for _, term := range p.Spec.Affinity.Required {
			aff.Required = append(aff.Required, cloneTerm(term))
		}
		aff.Preferred = nil
		for _, pref := range p.Spec.Affinity.Preferred {
			aff.Preferred = append(aff.Preferred, PreferredSchedulingTerm{Weight: pref.Weight, Term: cloneTerm(pref.Term)})
		}
		out.Spec.Affinity = &aff
	}
	out.QueuedInfo.UnschedulablePlugins = cloneStringSet(p.QueuedInfo.UnschedulablePlugins)
	if p.Scheduled != nil {
		v := *p.Scheduled
		out.Scheduled = &v
	}
	return &out
}

// NodeSpec is the placement-relevant subset of a node's specification.
type NodeSpec struct {
	Taints []Taint
}

// NodeInfo is a node as the scheduler sees it.
type NodeInfo struct {
	Name        string
	Allocatable ResourceRequirements
	Requested   ResourceRequirements
	Spec        NodeSpec
	Labels      map[string]string
}

// Clone returns a deep-enough copy safe to hand to a concurrent reader.
func (n *NodeInfo) Clone() *NodeInfo {
	if n == nil {
		return nil
	}
	out := *n
	out.Spec.Taints = append([]Taint(nil), n.Spec.Taints...)
	out.Labels = cloneStringMap(n.Labels)
	return &out
}

// Assignment is a scheduling decision binding a pod to a node.
type Assignment struct {
	PodName  string
	NodeName string
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneStringSet(m map[string]struct{}) map[string]struct{} {
	if m == nil {
		return nil
	}
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}
