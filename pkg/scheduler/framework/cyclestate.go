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

// StateData is the marker interface opaque cycle-state values must
// implement. Plugins downcast the value themselves after Read.
type StateData interface {
	Clone() StateData
}

// CycleState is a per-scheduling-attempt, single-goroutine scratchpad
// shared across the plugins that run in one cycle. It is created when
// the loop pops a pod and discarded at the end of the cycle; it is
// never shared across cycles or goroutines.
type CycleState struct {
	data map[string]StateData
}

// NewCycleState returns an empty CycleState.
func NewCycleState() *CycleState {
	return &CycleState{data: make(map[string]StateData)}
}

// Write stores value under key, overwriting any previous value.
func (c *CycleState) Write(key string, value StateData) {
	c.data[key] = value
}

// Read returns the value stored under key, or ok=false if absent.
// It never panics; a caller that wrote a *T and reads it back gets
// the same concrete type, so a failed type assertion on the caller's
// side indicates a key collision, not a CycleState bug.
func (c *CycleState) Read(key string) (StateData, bool) {
	v, ok := c.data[key]
	return v, ok
}

// Delete removes key, if present.
func (c *CycleState) Delete(key string) {
	delete(c.data, key)
}
