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

package framework

import "context"

// Plugin is the capability every pipeline plugin must implement. A
// plugin additionally implements whichever of PreFilterPlugin,
// FilterPlugin, PreScorePlugin, ScorePlugin and EnqueueExtensions it
// participates in; there is no single enum of plugin kinds.
type Plugin interface {
	Name() string
}

// PreFilterResult narrows the candidate node set before Filter runs.
// A nil NodeNames means "no narrowing"; otherwise the filter stage's
// candidate set is intersected with NodeNames.
type PreFilterResult struct {
	NodeNames map[string]struct{}
}

// PreFilterPlugin runs once per pod before Filter.
type PreFilterPlugin interface {
	Plugin
	PreFilter(ctx context.Context, state *CycleState, pod *PodInfo, nodes []*NodeInfo) (*PreFilterResult, *Status)
}

// FilterPlugin runs once per candidate node.
type FilterPlugin interface {
	Plugin
	Filter(ctx context.Context, state *CycleState, pod *PodInfo, node *NodeInfo) *Status
}

// PreScorePlugin runs once per pod, over the surviving candidates,
// before Score.
type PreScorePlugin interface {
	Plugin
	PreScore(ctx context.Context, state *CycleState, pod *PodInfo, nodes []*NodeInfo) *Status
}

// ScoreExtensions lets a ScorePlugin normalize its raw per-node scores
// into [0, maxScore], optionally reversing the ranking.
type ScoreExtensions interface {
	NormalizeScore(ctx context.Context, state *CycleState, pod *PodInfo, scores NodeScoreList) *Status
}

// ScorePlugin runs once per candidate node and optionally exposes a
// ScoreExtensions normalization step.
type ScorePlugin interface {
	Plugin
	Score(ctx context.Context, state *CycleState, pod *PodInfo, nodeName string) (int64, *Status)
	ScoreExtensions() ScoreExtensions
}

// NodeScore is one plugin's raw or normalized score for one node.
type NodeScore struct {
	Name  string
	Score int64
}

// NodeScoreList is the per-node scores produced by a single plugin in
// one cycle.
type NodeScoreList []NodeScore

// EventResource is the kind of cluster object an event concerns.
type EventResource string

const (
	Pod  EventResource = "Pod"
	Node EventResource = "Node"
)

// ActionType is a bitfield of the kinds of mutation an event may carry.
type ActionType uint32

const (
	Add ActionType = 1 << iota
	Delete
	UpdateNodeAllocatable
	UpdateNodeLabel
	UpdateNodeTaint
	UpdatePodLabel
	UpdatePodScaleDown
	Update = Add<<8 | UpdateNodeAllocatable | UpdateNodeLabel | UpdateNodeTaint | UpdatePodLabel | UpdatePodScaleDown
)

// ClusterEvent is a (resource, action) pair a plugin registers against.
type ClusterEvent struct {
	Resource   EventResource
	ActionType ActionType
}

// Matches reports whether an observed event (a concrete resource +
// action) is covered by this registration.
func (e ClusterEvent) Matches(resource EventResource, action ActionType) bool {
	return e.Resource == resource && e.ActionType&action != 0
}

// QueueingHint is a plugin's verdict on whether an observed event
// might make a previously unschedulable pod schedulable again.
type QueueingHint int

const (
	QueueSkip QueueingHint = iota
	Queue
)

// EventInner carries the before/after snapshots of the object an event
// concerns. Modified is nil for a delete event.
type EventInner struct {
	Resource EventResource
	Original any
	Modified any
}

// QueueingHintFn is a pure function of (pod, event) -> hint. It must
// not mutate either argument or close over mutable plugin state beyond
// what it read at registration time.
type QueueingHintFn func(pod *PodInfo, event EventInner) (QueueingHint, error)

// ClusterEventWithHint pairs a registration with the hint function that
// decides whether a matching event should wake a given pod.
type ClusterEventWithHint struct {
	Event          ClusterEvent
	QueueingHintFn QueueingHintFn
}

// EnqueueExtensions is implemented by plugins that can cause a pod they
// previously rejected to become schedulable again in response to a
// cluster event.
type EnqueueExtensions interface {
	Plugin
	EventsToRegister(ctx context.Context) ([]ClusterEventWithHint, error)
}
