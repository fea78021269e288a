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

// Package adapter translates an etcd-compatible key/value store into
// scheduler cache events: it lists and watches two key prefixes,
// decodes YAML node and pod records, and hands the result to a Router.
package adapter

// ObjectMeta is the common identity block shared by node and pod
// records.
type ObjectMeta struct {
	Name        string            `json:"name"`
	Namespace   string            `json:"namespace,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// NodeRecord is the on-the-wire shape of a node stored under
// /registry/nodes/.
type NodeRecord struct {
	APIVersion string           `json:"api_version"`
	Kind       string           `json:"kind"`
	Metadata   ObjectMeta       `json:"metadata"`
	Spec       NodeSpecRecord   `json:"spec"`
	Status     NodeStatusRecord `json:"status"`
}

// NodeSpecRecord is the node spec subset the scheduler cares about.
type NodeSpecRecord struct {
	PodCIDR string `json:"pod_cidr,omitempty"`
}

// NodeStatusRecord carries capacity/allocatable as textual quantities
// (e.g. "4", "4Gi"), exactly as the source records store them.
type NodeStatusRecord struct {
	Capacity    map[string]string `json:"capacity"`
	Allocatable map[string]string `json:"allocatable"`
	Addresses   []NodeAddress     `json:"addresses,omitempty"`
	Conditions  []NodeCondition   `json:"conditions,omitempty"`
}

// NodeAddress is one reachable address of a node.
type NodeAddress struct {
	Type    string `json:"address_type"`
	Address string `json:"address"`
}

// NodeCondition is one observed condition of a node, e.g. Ready.
type NodeCondition struct {
	Type              string  `json:"condition_type"`
	Status            string  `json:"status"`
	LastHeartbeatTime *string `json:"last_heartbeat_time,omitempty"`
}

// PodRecord is the on-the-wire shape of a pod stored under
// /registry/pods/. A non-empty NodeName marks a pod that was already
// bound before the scheduler observed it (see toPodInfo).
type PodRecord struct {
	APIVersion string        `json:"api_version"`
	Kind       string        `json:"kind"`
	Metadata   ObjectMeta    `json:"metadata"`
	Spec       PodSpecRecord `json:"spec"`
	NodeName   string        `json:"nodename"`
}

// PodSpecRecord lists the containers whose resource limits sum to the
// pod's total request.
type PodSpecRecord struct {
	Containers     []ContainerSpec `json:"containers"`
	InitContainers []ContainerSpec `json:"init_containers,omitempty"`
}

// ContainerSpec is one container within a pod record.
type ContainerSpec struct {
	Name      string        `json:"name"`
	Image     string        `json:"image"`
	Ports     []string      `json:"ports,omitempty"`
	Args      []string      `json:"args,omitempty"`
	Resources *ContainerRes `json:"resources,omitempty"`
}

// ContainerRes wraps a container's resource limits.
type ContainerRes struct {
	Limits *Resource `json:"limits,omitempty"`
}

// Resource is a pair of textual cpu/memory quantities.
type Resource struct {
	CPU    *string `json:"cpu,omitempty"`
	Memory *string `json:"memory,omitempty"`
}
