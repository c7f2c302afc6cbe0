// Package scheduler turns a list of requested tasks into a minimal,
// requirement-respecting execution plan.
//
// # How It Works
//
// Build resolves each requested task through uniqueDescription:
//  1. The task's requirements are resolved first, recursively, so every
//     requirement is registered before the task that needs it.
//  2. The task is hashed. A task with the same node and the same non-zero
//     hash as an existing description is the same work and folds into it.
//     Tasks with the zero hash do no work of their own and fold only when
//     their requirements match exactly.
//  3. Tasks of nodes that execute sequentially, or that declare a batch size
//     greater than one, join an existing description for the same node whose
//     context matches once the frame is ignored, as long as the batch has
//     room. Their frame is appended to that description.
//  4. Anything else becomes a new description at the tail of the plan.
//
// Merging can leave a requirement after the description that needs it, so
// the plan is checked for cycles and then reordered until every requirement
// precedes its dependents. Frames of sequential descriptions are sorted.
//
// # Relationship with Other Components
//
//   - task: supplies hashes, requirements and batching declarations.
//   - dispatch: builds the tasks from the nodes being dispatched and hands the
//     plan to an executor.
package scheduler
