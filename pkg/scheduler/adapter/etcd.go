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
	"context"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc"
	"k8s.io/klog/v2"
	"sigs.k8s.io/yaml"

	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler/framework"
)

const (
	nodePrefix = "/registry/nodes/"
	podPrefix  = "/registry/pods/"

	dialTimeout = 5 * time.Second
)

// Router is the subset of *scheduler.Scheduler the adapter drives. It
// is declared locally to avoid an import cycle between scheduler and
// adapter.
type Router interface {
	AddNode(node *framework.NodeInfo)
	UpdateNode(old, newNode *framework.NodeInfo)
	RemoveNode(name string)
	AddPod(pod *framework.PodInfo)
	UpdatePod(old, newPod *framework.PodInfo)
	RemovePod(name string)
}

// EtcdSource lists and watches the node/pod key prefixes of an
// etcd-compatible store and drives a Router from the results.
type EtcdSource struct {
	client *clientv3.Client
	router Router

	knownNodes map[string]*framework.NodeInfo
	knownPods  map[string]*framework.PodInfo
}

// NewEtcdSource dials endpoints and returns a source ready to Run.
func NewEtcdSource(endpoints []string, router Router) (*EtcdSource, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
		DialOptions: []grpc.DialOption{grpc.WithBlock()},
	})
	if err != nil {
		return nil, err
	}
	return &EtcdSource{
		client:     client,
		router:     router,
		knownNodes: map[string]*framework.NodeInfo{},
		knownPods:  map[string]*framework.PodInfo{},
	}, nil
}

// Close releases the underlying etcd client connection.
func (s *EtcdSource) Close() error { return s.client.Close() }

// Run lists the current contents of both prefixes, feeds them to the
// router, then watches both prefixes from the list's revision. It
// blocks until ctx is done, a watch channel closes, or a list or watch
// call fails; it returns on the first such error and does not retry.
func (s *EtcdSource) Run(ctx context.Context) error {
	rev, err := s.listAll(ctx)
	if err != nil {
		return err
	}
	return s.watchAll(ctx, rev)
}

func (s *EtcdSource) listAll(ctx context.Context) (int64, error) {
	nodeResp, err := s.client.Get(ctx, nodePrefix, clientv3.WithPrefix())
	if err != nil {
		return 0, err
	}
	for _, kv := range nodeResp.Kvs {
		s.handleNodePut(kv.Value)
	}

	podResp, err := s.client.Get(ctx, podPrefix, clientv3.WithPrefix())
	if err != nil {
		return 0, err
	}
	for _, kv := range podResp.Kvs {
		s.handlePodPut(kv.Value)
	}

	rev := nodeResp.Header.Revision
	if podResp.Header.Revision > rev {
		rev = podResp.Header.Revision
	}
	return rev, nil
}

func (s *EtcdSource) watchAll(ctx context.Context, rev int64) error {
	nodeWatch := s.client.Watch(ctx, nodePrefix, clientv3.WithPrefix(), clientv3.WithRev(rev+1))
	podWatch := s.client.Watch(ctx, podPrefix, clientv3.WithPrefix(), clientv3.WithRev(rev+1))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case resp, ok := <-nodeWatch:
			if !ok {
				return nil
			}
			if err := resp.Err(); err != nil {
				return err
			}
			s.applyNodeEvents(resp.Events)
		case resp, ok := <-podWatch:
			if !ok {
				return nil
			}
			if err := resp.Err(); err != nil {
				return err
			}
			s.applyPodEvents(resp.Events)
		}
	}
}

func (s *EtcdSource) applyNodeEvents(events []*clientv3.Event) {
	for _, ev := range events {
		switch ev.Type {
		case clientv3.EventTypePut:
			s.handleNodePut(ev.Kv.Value)
		case clientv3.EventTypeDelete:
			s.handleNodeDelete(string(ev.Kv.Key))
		}
	}
}

func (s *EtcdSource) applyPodEvents(events []*clientv3.Event) {
	for _, ev := range events {
		switch ev.Type {
		case clientv3.EventTypePut:
			s.handlePodPut(ev.Kv.Value)
		case clientv3.EventTypeDelete:
			s.handlePodDelete(string(ev.Kv.Key))
		}
	}
}

func (s *EtcdSource) handleNodePut(value []byte) {
	var rec NodeRecord
	if err := yaml.Unmarshal(value, &rec); err != nil {
		klog.ErrorS(err, "skipping malformed node record")
		return
	}
	node, err := toNodeInfo(&rec)
	if err != nil {
		klog.ErrorS(err, "skipping node record with invalid resource quantity")
		return
	}
	if old, ok := s.knownNodes[node.Name]; ok {
		s.router.UpdateNode(old, node)
	} else {
		s.router.AddNode(node)
	}
	s.knownNodes[node.Name] = node
}

func (s *EtcdSource) handleNodeDelete(key string) {
	name := key[len(nodePrefix):]
	delete(s.knownNodes, name)
	s.router.RemoveNode(name)
}

func (s *EtcdSource) handlePodPut(value []byte) {
	var rec PodRecord
	if err := yaml.Unmarshal(value, &rec); err != nil {
		klog.ErrorS(err, "skipping malformed pod record")
		return
	}
	pod, err := toPodInfo(&rec)
	if err != nil {
		klog.ErrorS(err, "skipping pod record with invalid resource quantity")
		return
	}
	if old, ok := s.knownPods[pod.Name]; ok {
		s.router.UpdatePod(old, pod)
	} else {
		s.router.AddPod(pod)
	}
	s.knownPods[pod.Name] = pod
}

func (s *EtcdSource) handlePodDelete(key string) {
	name := key[len(podPrefix):]
	delete(s.knownPods, name)
	s.router.RemovePod(name)
}
