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

// Package scheduler assembles the framework plugins, the cache and the
// queue into a running pod-to-node placement loop.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/klog/v2"

	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler/adapter"
	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler/framework"
	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler/framework/plugins/nodeaffinity"
	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler/framework/plugins/nodename"
	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler/framework/plugins/noderesources"
	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler/framework/plugins/nodeunschedulable"
	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler/framework/plugins/tainttoleration"
	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler/internal/cache"
	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler/internal/queue"
	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler/metrics"
)

// ErrorKind classifies why a scheduling cycle did not produce an
// Assignment, mirroring the error taxonomy of the design: a pod can be
// legitimately Unschedulable, a plugin can fail outright, or the
// adapter feeding events can break.
type ErrorKind int

const (
	// Unschedulable means every node was filtered out; retried when a
	// relevant cluster event fires.
	Unschedulable ErrorKind = iota
	// PluginError means a PreFilter, Filter, PreScore or Score plugin
	// returned Code Error; retried after a fixed backoff regardless of
	// events.
	PluginError
	// AdapterError names a state-source failure. The scheduler never
	// emits it on the Results channel: RunWithEtcd returns a dial error
	// directly and logs a later adapter failure with klog.
	AdapterError
)

// SchedulingError is returned on the Results channel in place of an
// Assignment when a pod could not be placed this cycle.
type SchedulingError struct {
	Kind    ErrorKind
	Pod     string
	Reasons []string
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("pod %q: %s", e.Pod, joinReasons(e.Reasons))
}

func joinReasons(reasons []string) string {
	if len(reasons) == 0 {
		return "unknown error"
	}
	out := reasons[0]
	for _, r := range reasons[1:] {
		out += "; " + r
	}
	return out
}

// Result is emitted on the scheduler's output stream: exactly one of
// Assignment or Err is set.
type Result struct {
	Assignment *framework.Assignment
	Err        *SchedulingError
}

// pluginBackoff is the fixed delay before a PluginError pod is retried,
// independent of any cluster event.
const pluginBackoff = 1 * time.Second

// Scheduler runs the filter/score pipeline against a Router's cache and
// queue, emitting one Result per scheduling attempt.
type Scheduler struct {
	router    *queue.Router
	preFilter []framework.PreFilterPlugin
	filter    []framework.FilterPlugin
	preScore  []framework.PreScorePlugin
	score     []framework.ScorePlugin
	metrics   *metrics.Metrics
}

// New builds a Scheduler wired with the given plugins (any subset may
// implement PreFilterPlugin, FilterPlugin, PreScorePlugin, ScorePlugin
// and EnqueueExtensions; a plugin implementing more than one extension
// point, like NodeResourcesFit, is split into its roles here).
func New(plugins []framework.Plugin) *Scheduler {
	c := cache.New()
	s := &Scheduler{
		router:  queue.NewRouter(c, plugins),
		metrics: metrics.New(),
	}
	for _, p := range plugins {
		if pf, ok := p.(framework.PreFilterPlugin); ok {
			s.preFilter = append(s.preFilter, pf)
		}
		if f, ok := p.(framework.FilterPlugin); ok {
			s.filter = append(s.filter, f)
		}
		if ps, ok := p.(framework.PreScorePlugin); ok {
			s.preScore = append(s.preScore, ps)
		}
		if sc, ok := p.(framework.ScorePlugin); ok {
			s.score = append(s.score, sc)
		}
	}
	return s
}

// DefaultPlugins returns the built-in plugin set described in the
// design: NodeName, NodeUnschedulable, TaintToleration, NodeAffinity
// and NodeResourcesFit, in the fixed filter order the design mandates,
// plus NodeResourcesBalancedAllocation contributing an additional
// score alongside NodeResourcesFit's.
func DefaultPlugins(strategy noderesources.ScoringStrategyType) []framework.Plugin {
	return []framework.Plugin{
		nodename.New(),
		nodeunschedulable.New(),
		tainttoleration.New(),
		nodeaffinity.New(),
		noderesources.NewFit(strategy),
		noderesources.NewBalancedAllocation(),
	}
}

// Cache exposes the underlying cluster-state cache, primarily so the
// adapter package can feed it without importing internal/cache
// directly.
func (s *Scheduler) Cache() *cache.Cache { return s.router.Cache() }

// MetricsRegistry exposes this scheduler's Prometheus collectors, for
// wiring into an HTTP handler.
func (s *Scheduler) MetricsRegistry() *prometheus.Registry { return s.metrics.Registry() }

// AddPod registers a new pod observation.
func (s *Scheduler) AddPod(pod *framework.PodInfo) { s.router.AddPod(pod) }

// UpdatePod applies a pod replacement.
func (s *Scheduler) UpdatePod(old, newPod *framework.PodInfo) { s.router.UpdatePod(old, newPod) }

// RemovePod applies a pod deletion.
func (s *Scheduler) RemovePod(name string) { s.router.DeletePod(name) }

// AddNode registers a new node observation.
func (s *Scheduler) AddNode(node *framework.NodeInfo) { s.router.AddNode(node) }

// UpdateNode applies a node replacement.
func (s *Scheduler) UpdateNode(old, newNode *framework.NodeInfo) { s.router.UpdateNode(old, newNode) }

// RemoveNode applies a node deletion, requeueing every pod it hosted.
func (s *Scheduler) RemoveNode(name string) { s.router.DeleteNode(name) }

// Unassume reverts a tentative binding, e.g. because the caller's
// downstream bind step failed after the scheduler emitted the
// Assignment. The pod returns to the active queue and the node's
// requested resources are credited back.
func (s *Scheduler) Unassume(podName string) {
	s.Cache().UnassignPod(podName)
	pod := s.Cache().Pod(podName)
	if pod == nil {
		return
	}
	pod.Scheduled = nil
	pod.QueuedInfo.EnqueueTimestamp = time.Now()
	s.router.PushActive(pod)
}

// Stop releases any goroutine blocked in Run.
func (s *Scheduler) Stop() { s.router.Close() }

// RunWithEtcd dials the given etcd-compatible endpoints, lists and
// watches the node/pod key prefixes in the background, and starts the
// scheduling loop against the resulting cache. It returns the Results
// channel and a stop function that closes both the loop and the
// underlying etcd client.
func (s *Scheduler) RunWithEtcd(ctx context.Context, endpoints []string) (<-chan Result, func(), error) {
	source, err := adapter.NewEtcdSource(endpoints, s)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing etcd endpoints %v: %w", endpoints, err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	go func() {
		if err := source.Run(watchCtx); err != nil && watchCtx.Err() == nil {
			klog.ErrorS(err, "etcd adapter stopped unexpectedly")
		}
	}()

	results := s.Run(watchCtx)
	stop := func() {
		cancel()
		s.Stop()
		source.Close()
	}
	return results, stop, nil
}

// Run starts the scheduling loop in the background and returns a
// channel of Results, one per attempted pod. The channel closes once
// Stop has been called and the active queue is empty; pods parked in
// the unschedulable pool do not keep it open. A cancelled ctx closes
// it at the loop's next pop or send, but does not by itself wake a
// loop that is waiting for a pod.
func (s *Scheduler) Run(ctx context.Context) <-chan Result {
	out := make(chan Result)
	go s.loop(ctx, out)
	return out
}

func (s *Scheduler) loop(ctx context.Context, out chan<- Result) {
	defer close(out)
	for {
		pod := s.router.Pop()
		if pod == nil {
			return
		}
		s.metrics.SetQueueDepth(s.router.ActiveLen())
		select {
		case <-ctx.Done():
			return
		default:
		}
		result := s.scheduleOne(ctx, pod)
		select {
		case out <- result:
		case <-ctx.Done():
			return
		}
	}
}

// scheduleOne runs one full cycle for pod: snapshot, PreFilter, Filter,
// PreScore, Score, deterministic select. Unlike the random tiebreak a
// live cluster can afford, ties here are broken by node name so the
// same cluster state always produces the same placement.
func (s *Scheduler) scheduleOne(ctx context.Context, pod *framework.PodInfo) Result {
	start := time.Now()
	defer func() { s.metrics.ObserveSchedulingLatency(time.Since(start)) }()

	snap := s.Cache().Snapshot()
	candidates := snap.NodeList()
	state := framework.NewCycleState()

	candidates, status := s.runPreFilter(ctx, state, pod, candidates)
	if !status.IsSuccess() {
		return s.reject(pod, status, pluginSet(status.FailedPlugin()))
	}

	candidates, rejections := s.runFilter(ctx, state, pod, candidates)
	for _, r := range rejections {
		if r.status.Code() == framework.Error {
			return s.reject(pod, r.status, pluginSet(r.plugin))
		}
	}
	if len(candidates) == 0 {
		status := framework.NewStatus(framework.Unschedulable, rejectionReasons(rejections)...)
		return s.reject(pod, status, rejectionPlugins(rejections))
	}

	skippedScore, status := s.runPreScore(ctx, state, pod, candidates)
	if !status.IsSuccess() {
		return s.reject(pod, status, pluginSet(status.FailedPlugin()))
	}

	noderesources.WriteNodeLookup(state, candidates)
	scores, status := s.runScore(ctx, state, pod, candidates, skippedScore)
	if !status.IsSuccess() {
		return s.reject(pod, status, pluginSet(status.FailedPlugin()))
	}

	best := selectHost(scores)
	s.Cache().AssignPod(pod.Name, best)
	s.metrics.IncAssigned()
	klog.V(3).InfoS("scheduled pod", "pod", pod.Name, "node", best)
	return Result{Assignment: &framework.Assignment{PodName: pod.Name, NodeName: best}}
}

type rejection struct {
	plugin string
	status *framework.Status
}

func rejectionReasons(rejections []rejection) []string {
	var reasons []string
	for _, r := range rejections {
		reasons = append(reasons, fmt.Sprintf("%s: %s", r.plugin, r.status.Message()))
	}
	return reasons
}

// rejectionPlugins returns the set of distinct plugin names that
// rejected at least one node, so the unschedulable pool records every
// plugin a queueing hint might need to match against, not just the
// first one encountered.
func rejectionPlugins(rejections []rejection) map[string]struct{} {
	out := make(map[string]struct{}, len(rejections))
	for _, r := range rejections {
		out[r.plugin] = struct{}{}
	}
	return out
}

// pluginSet wraps a single plugin name as the unschedulable-plugins set
// recorded for a PreFilter/PreScore/Score rejection, which - unlike
// Filter - stops at the first plugin that fails.
func pluginSet(name string) map[string]struct{} {
	return map[string]struct{}{name: {}}
}

func (s *Scheduler) runPreFilter(ctx context.Context, state *framework.CycleState, pod *framework.PodInfo, nodes []*framework.NodeInfo) ([]*framework.NodeInfo, *framework.Status) {
	for _, p := range s.preFilter {
		result, status := p.PreFilter(ctx, state, pod, nodes)
		if status.Code() == framework.Error {
			status.SetFailedPlugin(p.Name())
			return nil, status
		}
		if !status.IsSuccess() {
			status.SetFailedPlugin(p.Name())
			return nil, status
		}
		if result != nil && result.NodeNames != nil {
			nodes = intersectNodes(nodes, result.NodeNames)
		}
	}
	return nodes, nil
}

func intersectNodes(nodes []*framework.NodeInfo, names map[string]struct{}) []*framework.NodeInfo {
	out := nodes[:0:0]
	for _, n := range nodes {
		if _, ok := names[n.Name]; ok {
			out = append(out, n)
		}
	}
	return out
}

func (s *Scheduler) runFilter(ctx context.Context, state *framework.CycleState, pod *framework.PodInfo, nodes []*framework.NodeInfo) ([]*framework.NodeInfo, []rejection) {
	var survivors []*framework.NodeInfo
	var rejections []rejection
	for _, node := range nodes {
		ok := true
		for _, p := range s.filter {
			status := p.Filter(ctx, state, pod, node)
			if !status.IsSuccess() {
				status.SetFailedPlugin(p.Name())
				rejections = append(rejections, rejection{plugin: p.Name(), status: status})
				ok = false
				break
			}
		}
		if ok {
			survivors = append(survivors, node)
		}
	}
	return survivors, rejections
}

// runPreScore runs every PreScore plugin and returns the set of score
// plugin names whose PreScore returned Skip - runScore must not call
// Score for those this cycle (spec step 3: "Skip disables that
// plugin's Score for this cycle").
func (s *Scheduler) runPreScore(ctx context.Context, state *framework.CycleState, pod *framework.PodInfo, nodes []*framework.NodeInfo) (map[string]struct{}, *framework.Status) {
	var skipped map[string]struct{}
	for _, p := range s.preScore {
		status := p.PreScore(ctx, state, pod, nodes)
		if status.IsSkip() {
			if skipped == nil {
				skipped = make(map[string]struct{})
			}
			skipped[p.Name()] = struct{}{}
			continue
		}
		if !status.IsSuccess() {
			status.SetFailedPlugin(p.Name())
			return nil, status
		}
	}
	return skipped, nil
}

func (s *Scheduler) runScore(ctx context.Context, state *framework.CycleState, pod *framework.PodInfo, nodes []*framework.NodeInfo, skipped map[string]struct{}) (framework.NodeScoreList, *framework.Status) {
	totals := make(map[string]int64, len(nodes))
	for _, p := range s.score {
		if _, ok := skipped[p.Name()]; ok {
			continue
		}
		raw := make(framework.NodeScoreList, 0, len(nodes))
		for _, node := range nodes {
			score, status := p.Score(ctx, state, pod, node.Name)
			if !status.IsSuccess() {
				status.SetFailedPlugin(p.Name())
				return nil, status
			}
			raw = append(raw, framework.NodeScore{Name: node.Name, Score: score})
		}
		if ext := p.ScoreExtensions(); ext != nil {
			if status := ext.NormalizeScore(ctx, state, pod, raw); !status.IsSuccess() {
				status.SetFailedPlugin(p.Name())
				return nil, status
			}
		}
		for _, ns := range raw {
			totals[ns.Name] += ns.Score
		}
	}
	out := make(framework.NodeScoreList, 0, len(totals))
	for _, node := range nodes {
		out = append(out, framework.NodeScore{Name: node.Name, Score: totals[node.Name]})
	}
	return out, nil
}

// selectHost picks the highest-scoring node, breaking ties by the
// lexicographically smallest name for determinism.
func selectHost(scores framework.NodeScoreList) string {
	sorted := make(framework.NodeScoreList, len(scores))
	copy(sorted, scores)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].Name < sorted[j].Name
	})
	return sorted[0].Name
}

func (s *Scheduler) reject(pod *framework.PodInfo, status *framework.Status, plugins map[string]struct{}) Result {
	pod.QueuedInfo.Attempts++
	pod.QueuedInfo.LastAttemptTimestamp = time.Now()
	s.metrics.IncRejected(status.FailedPlugin())

	if status.Code() == framework.Error {
		klog.ErrorS(status.AsError(), "plugin error scheduling pod, will retry after backoff", "pod", pod.Name, "plugin", status.FailedPlugin())
		go s.requeueAfter(pod, pluginBackoff)
		return Result{Err: &SchedulingError{Kind: PluginError, Pod: pod.Name, Reasons: status.Reasons()}}
	}

	s.router.MarkUnschedulable(pod, plugins)
	return Result{Err: &SchedulingError{Kind: Unschedulable, Pod: pod.Name, Reasons: status.Reasons()}}
}

func (s *Scheduler) requeueAfter(pod *framework.PodInfo, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	<-t.C
	s.router.PushActive(pod)
}
