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

// DefaultNormalizeScore rescales a plugin's raw per-node scores into
// [0, MaxScore], optionally reversing the ranking so the
// highest-allocated node is preferred over the least-allocated one.
type DefaultNormalizeScore struct {
	MaxScore int64
	Reverse  bool
}

// NormalizeScore implements ScoreExtensions.
func (d DefaultNormalizeScore) NormalizeScore(_ context.Context, _ *CycleState, _ *PodInfo, scores NodeScoreList) *Status {
	var maxScore, minScore int64
	if len(scores) > 0 {
		maxScore, minScore = scores[0].Score, scores[0].Score
	}
	for _, s := range scores {
		if s.Score > maxScore {
			maxScore = s.Score
		}
		if s.Score < minScore {
			minScore = s.Score
		}
	}
	spread := maxScore - minScore
	for i := range scores {
		var normalized int64
		if spread == 0 {
			normalized = d.MaxScore
		} else {
			normalized = (scores[i].Score - minScore) * d.MaxScore / spread
		}
		if d.Reverse {
			normalized = d.MaxScore - normalized
		}
		scores[i].Score = normalized
	}
	return nil
}
