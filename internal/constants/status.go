package constants

// TaskStatus represents the state of a task in the LEGION state machine.
// Status values use snake_case for JSON serialization compatibility.
type TaskStatus string

// Task status constants define the valid states a task can be in.
// These follow the executor's state machine:
//
//	Pending → Running, Cancelled
//	Running → Succeeded, Failed
//	Failed  → Pending (re-enqueue while the attempt budget allows)
const (
	// TaskStatusPending indicates a task is queued and waiting for its
	// not_before time.
	TaskStatusPending TaskStatus = "pending"

	// TaskStatusRunning indicates the executor is actively performing the task.
	TaskStatusRunning TaskStatus = "running"

	// TaskStatusSucceeded indicates the task's handler completed successfully.
	TaskStatusSucceeded TaskStatus = "succeeded"

	// TaskStatusFailed indicates the current attempt failed. The task is
	// re-enqueued while attempts remain; once the budget is exhausted the
	// status is terminal and the failure reason is surfaced.
	TaskStatusFailed TaskStatus = "failed"

	// TaskStatusCancelled indicates the task was cancelled before it ran.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// String returns the string representation of the TaskStatus.
// This implements fmt.Stringer for convenient logging and debugging.
func (s TaskStatus) String() string {
	return string(s)
}

// TaskKind identifies the kind of work a task performs. The executor
// dispatches each kind to its registered handler.
type TaskKind string

// Task kind constants.
const (
	// TaskKindBuild upgrades or constructs a building.
	TaskKindBuild TaskKind = "build"

	// TaskKindTrainTroops queues troop training.
	TaskKindTrainTroops TaskKind = "train_troops"

	// TaskKindRaid sends troops against a farm target.
	TaskKindRaid TaskKind = "raid"

	// TaskKindScan captures map snapshots around given coordinates.
	TaskKindScan TaskKind = "scan"

	// TaskKindCustom visits a payload-provided location and optionally
	// activates an anchor. Exists for extension and tests.
	TaskKindCustom TaskKind = "custom"
)

// String returns the string representation of the TaskKind.
func (k TaskKind) String() string {
	return string(k)
}

// KnownTaskKinds lists every kind the executor accepts at enqueue time.
func KnownTaskKinds() []TaskKind {
	return []TaskKind{
		TaskKindBuild,
		TaskKindTrainTroops,
		TaskKindRaid,
		TaskKindScan,
		TaskKindCustom,
	}
}

// TargetState represents the raid lifecycle state of a farm target.
// State values use snake_case for JSON serialization compatibility.
type TargetState string

// Target state constants define the per-target raid state machine:
//
//	Idle → Dispatched (raid task produced)
//	Dispatched → InTransit (dispatch confirmed) or Idle (task failed, nothing sent)
//	InTransit → AwaitingReturn (troops arrived at the target)
//	AwaitingReturn → Idle (troops home, eligibility window reopens)
const (
	// TargetStateIdle indicates no raid is outstanding for the target.
	TargetStateIdle TargetState = "idle"

	// TargetStateDispatched indicates a raid task has been produced but the
	// send is not yet confirmed.
	TargetStateDispatched TargetState = "dispatched"

	// TargetStateInTransit indicates troops are on their way to the target.
	TargetStateInTransit TargetState = "in_transit"

	// TargetStateAwaitingReturn indicates the attack landed and troops are
	// returning home.
	TargetStateAwaitingReturn TargetState = "awaiting_return"
)

// String returns the string representation of the TargetState.
func (s TargetState) String() string {
	return string(s)
}

// ElementKind is the semantic kind of a logical UI anchor. The healer uses
// it to sanity-check proposed locators before accepting them.
type ElementKind string

// Element kind constants.
const (
	// ElementKindInput expects a text input or textarea.
	ElementKindInput ElementKind = "input"

	// ElementKindButton expects a button or submit input.
	ElementKindButton ElementKind = "button"

	// ElementKindLink expects an anchor element.
	ElementKindLink ElementKind = "link"

	// ElementKindField expects a readable value container (td, span, div).
	ElementKindField ElementKind = "field"

	// ElementKindAny accepts any element tag.
	ElementKindAny ElementKind = "any"
)

// String returns the string representation of the ElementKind.
func (k ElementKind) String() string {
	return string(k)
}
