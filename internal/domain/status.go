// Package domain provides shared domain types for the LEGION automation core.
package domain

import "github.com/mrz1836/legion/internal/constants"

// Re-export status and kind types from the constants package.
// This allows consumers to import domain types and status types together,
// providing a unified API for working with LEGION domain objects.
//
// Example usage:
//
//	import "github.com/mrz1836/legion/internal/domain"
//
//	task := domain.Task{
//	    Status: domain.TaskStatusPending,
//	}
type (
	// TaskStatus represents the state of a task in the executor state machine.
	TaskStatus = constants.TaskStatus

	// TaskKind identifies the kind of work a task performs.
	TaskKind = constants.TaskKind

	// TargetState represents the raid lifecycle state of a farm target.
	TargetState = constants.TargetState

	// ElementKind is the semantic kind of a logical UI anchor.
	ElementKind = constants.ElementKind
)

// Re-export TaskStatus constants for convenience.
// These mirror the values in internal/constants/status.go.
const (
	// TaskStatusPending indicates a task is queued and waiting for its not_before time.
	TaskStatusPending = constants.TaskStatusPending

	// TaskStatusRunning indicates the executor is actively performing the task.
	TaskStatusRunning = constants.TaskStatusRunning

	// TaskStatusSucceeded indicates the task's handler completed successfully.
	TaskStatusSucceeded = constants.TaskStatusSucceeded

	// TaskStatusFailed indicates the current attempt failed.
	TaskStatusFailed = constants.TaskStatusFailed

	// TaskStatusCancelled indicates the task was cancelled before it ran.
	TaskStatusCancelled = constants.TaskStatusCancelled
)

// Re-export TaskKind constants for convenience.
const (
	// TaskKindBuild upgrades or constructs a building.
	TaskKindBuild = constants.TaskKindBuild

	// TaskKindTrainTroops queues troop training.
	TaskKindTrainTroops = constants.TaskKindTrainTroops

	// TaskKindRaid sends troops against a farm target.
	TaskKindRaid = constants.TaskKindRaid

	// TaskKindScan captures map snapshots around given coordinates.
	TaskKindScan = constants.TaskKindScan

	// TaskKindCustom visits a payload-provided location.
	TaskKindCustom = constants.TaskKindCustom
)

// Re-export TargetState constants for convenience.
const (
	// TargetStateIdle indicates no raid is outstanding for the target.
	TargetStateIdle = constants.TargetStateIdle

	// TargetStateDispatched indicates a raid task has been produced but not confirmed.
	TargetStateDispatched = constants.TargetStateDispatched

	// TargetStateInTransit indicates troops are on their way to the target.
	TargetStateInTransit = constants.TargetStateInTransit

	// TargetStateAwaitingReturn indicates troops are returning home.
	TargetStateAwaitingReturn = constants.TargetStateAwaitingReturn
)
