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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler/framework"
)

const (
	kibi = 1 << 10
	mebi = 1 << 20
	gibi = 1 << 30
	tebi = 1 << 40
)

var memorySuffixes = map[string]int64{
	"Ki": kibi,
	"Mi": mebi,
	"Gi": gibi,
	"Ti": tebi,
}

// parseCPU converts a textual cpu quantity ("4", "500m") into
// milli-cpu. A bare integer is whole cores; an "m" suffix is already
// milli-cpu.
func parseCPU(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if strings.HasSuffix(s, "m") {
		v, err := strconv.ParseInt(strings.TrimSuffix(s, "m"), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing cpu quantity %q: %w", s, err)
		}
		return v, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing cpu quantity %q: %w", s, err)
	}
	return int64(v * 1000), nil
}

// parseMemory converts a textual memory quantity ("4Gi", "512Mi",
// "1024") into bytes.
func parseMemory(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	for suffix, multiplier := range memorySuffixes {
		if strings.HasSuffix(s, suffix) {
			v, err := strconv.ParseFloat(strings.TrimSuffix(s, suffix), 64)
			if err != nil {
				return 0, fmt.Errorf("parsing memory quantity %q: %w", s, err)
			}
			return int64(v * float64(multiplier)), nil
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing memory quantity %q: %w", s, err)
	}
	return v, nil
}

func parseResources(capacity map[string]string) (framework.ResourceRequirements, error) {
	var out framework.ResourceRequirements
	if v, ok := capacity["cpu"]; ok {
		cpu, err := parseCPU(v)
		if err != nil {
			return out, err
		}
		out.CPU = cpu
	}
	if v, ok := capacity["memory"]; ok {
		mem, err := parseMemory(v)
		if err != nil {
			return out, err
		}
		out.Memory = mem
	}
	return out, nil
}

// notReadyTaint is synthesized onto a node whose Ready condition is
// not "True", so NodeUnschedulable rejects it without every other
// plugin needing to special-case node health.
var notReadyTaint = framework.Taint{Key: framework.TaintNodeNotReady, Effect: framework.TaintEffectNoSchedule}

func nodeTaints(status NodeStatusRecord) []framework.Taint {
	for _, c := range status.Conditions {
		if c.Type == "Ready" && c.Status != "True" {
			return []framework.Taint{notReadyTaint}
		}
	}
	return nil
}

// toNodeInfo decodes a NodeRecord into the scheduler's NodeInfo. A
// malformed quantity is reported rather than silently zeroed, so the
// caller can log and skip the record.
func toNodeInfo(rec *NodeRecord) (*framework.NodeInfo, error) {
	allocatable, err := parseResources(rec.Status.Allocatable)
	if err != nil {
		return nil, fmt.Errorf("node %q: %w", rec.Metadata.Name, err)
	}
	return &framework.NodeInfo{
		Name:        rec.Metadata.Name,
		Allocatable: allocatable,
		Labels:      rec.Metadata.Labels,
		Spec:        framework.NodeSpec{Taints: nodeTaints(rec.Status)},
	}, nil
}

func sumContainerResources(containers []ContainerSpec) (framework.ResourceRequirements, error) {
	var total framework.ResourceRequirements
	for _, c := range containers {
		if c.Resources == nil || c.Resources.Limits == nil {
			continue
		}
		limits := c.Resources.Limits
		if limits.CPU != nil {
			cpu, err := parseCPU(*limits.CPU)
			if err != nil {
				return total, fmt.Errorf("container %q: %w", c.Name, err)
			}
			total.CPU += cpu
		}
		if limits.Memory != nil {
			mem, err := parseMemory(*limits.Memory)
			if err != nil {
				return total, fmt.Errorf("container %q: %w", c.Name, err)
			}
			total.Memory += mem
		}
	}
	return total, nil
}

// toPodInfo decodes a PodRecord into the scheduler's PodInfo. A
// non-empty NodeName marks the pod as already bound: the caller
// assigns it directly rather than enqueueing it, per the adapter's
// reassume/unassume contract.
func toPodInfo(rec *PodRecord) (*framework.PodInfo, error) {
	requests, err := sumContainerResources(rec.Spec.Containers)
	if err != nil {
		return nil, fmt.Errorf("pod %q: %w", rec.Metadata.Name, err)
	}
	initRequests, err := sumContainerResources(rec.Spec.InitContainers)
	if err != nil {
		return nil, fmt.Errorf("pod %q: %w", rec.Metadata.Name, err)
	}
	if initRequests.CPU > requests.CPU {
		requests.CPU = initRequests.CPU
	}
	if initRequests.Memory > requests.Memory {
		requests.Memory = initRequests.Memory
	}

	// The wire record carries no node selector, toleration or affinity
	// fields; those are populated only for pods constructed directly
	// through the Scheduler API.
	pod := &framework.PodInfo{
		Name:       rec.Metadata.Name,
		Spec:       framework.PodSpec{Resources: requests},
		QueuedInfo: framework.QueuedInfo{EnqueueTimestamp: time.Now()},
	}
	if rec.NodeName != "" {
		name := rec.NodeName
		pod.Scheduled = &name
	}
	return pod, nil
}
