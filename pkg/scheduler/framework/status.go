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

import (
	"errors"
	"strings"
)

// Code is the outcome of a plugin call.
type Code int

const (
	Success Code = iota
	Unschedulable
	Error
	Skip
)

func (c Code) String() string {
	switch c {
	case Success:
		return "Success"
	case Unschedulable:
		return "Unschedulable"
	case Error:
		return "Error"
	case Skip:
		return "Skip"
	default:
		return "Unknown"
	}
}

// Status is the structured result a plugin returns from any extension
// point. A nil *Status is treated as Success.
type Status struct {
	code         Code
	reasons      []string
	failedPlugin string
}

// NewStatus builds a Status with the given code and reasons.
func NewStatus(code Code, reasons ...string) *Status {
	return &Status{code: code, reasons: reasons}
}

// AsStatus wraps an error as an Error-coded Status.
func AsStatus(err error) *Status {
	if err == nil {
		return nil
	}
	return &Status{code: Error, reasons: []string{err.Error()}}
}

// Code returns s's code, treating a nil Status as Success.
func (s *Status) Code() Code {
	if s == nil {
		return Success
	}
	return s.code
}

// Reasons returns the accumulated failure reasons.
func (s *Status) Reasons() []string {
	if s == nil {
		return nil
	}
	return s.reasons
}

// IsSuccess reports whether s is nil or carries code Success.
func (s *Status) IsSuccess() bool {
	return s.Code() == Success
}

// IsUnschedulable reports whether s carries code Unschedulable.
func (s *Status) IsUnschedulable() bool {
	return s.Code() == Unschedulable
}

// IsSkip reports whether s carries code Skip.
func (s *Status) IsSkip() bool {
	return s.Code() == Skip
}

// Message joins the reasons for logging.
func (s *Status) Message() string {
	if s == nil {
		return ""
	}
	return strings.Join(s.reasons, ", ")
}

// SetFailedPlugin records which plugin produced a non-Success status.
func (s *Status) SetFailedPlugin(name string) {
	if s == nil {
		return
	}
	s.failedPlugin = name
}

// FailedPlugin returns the name set by SetFailedPlugin, if any.
func (s *Status) FailedPlugin() string {
	if s == nil {
		return ""
	}
	return s.failedPlugin
}

// AsError converts a non-Success Status into a plain error.
func (s *Status) AsError() error {
	if s.IsSuccess() || s.IsSkip() {
		return nil
	}
	if s == nil {
		return nil
	}
	return errors.New(s.Message())
}
