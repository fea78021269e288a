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

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler"
	"github.com/rk8s-dev/libscheduler-go/pkg/scheduler/framework/plugins/noderesources"
)

type runOptions struct {
	etcdEndpoints   []string
	scoringStrategy string
	metricsAddr     string
}

func newRunCommand() *cobra.Command {
	opts := &runOptions{scoringStrategy: string(noderesources.LeastAllocated), metricsAddr: ":9090"}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the scheduling loop against an etcd-compatible state store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScheduler(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.etcdEndpoints, "etcd-endpoints", []string{"127.0.0.1:2379"}, "Comma-separated etcd-compatible endpoints to list and watch")
	cmd.Flags().StringVar(&opts.scoringStrategy, "scoring-strategy", opts.scoringStrategy, "NodeResourcesFit strategy: LeastAllocated, MostAllocated or RequestedToCapacityRatio")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", opts.metricsAddr, "Address to serve Prometheus metrics on")
	return cmd
}

func runScheduler(ctx context.Context, opts *runOptions) error {
	strategy := noderesources.ScoringStrategyType(opts.scoringStrategy)
	switch strategy {
	case noderesources.LeastAllocated, noderesources.MostAllocated, noderesources.RequestedToCapacityRatio:
	default:
		return fmt.Errorf("unknown scoring strategy %q", opts.scoringStrategy)
	}

	sched := scheduler.New(scheduler.DefaultPlugins(strategy))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	results, stopScheduler, err := sched.RunWithEtcd(ctx, opts.etcdEndpoints)
	if err != nil {
		return err
	}
	defer stopScheduler()

	go serveMetrics(opts.metricsAddr, sched.MetricsRegistry())

	for {
		select {
		case <-ctx.Done():
			return nil
		case result, ok := <-results:
			if !ok {
				return nil
			}
			if result.Err != nil {
				klog.V(2).InfoS("scheduling attempt did not produce an assignment", "pod", result.Err.Pod, "kind", result.Err.Kind, "reasons", result.Err.Reasons)
				continue
			}
			klog.InfoS("assigned pod", "pod", result.Assignment.PodName, "node", result.Assignment.NodeName)
		}
	}
}

func serveMetrics(addr string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	klog.InfoS("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		klog.ErrorS(err, "metrics server stopped")
	}
}
