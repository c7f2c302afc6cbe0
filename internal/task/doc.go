// Package task defines dispatchable work: a Task pairs a node with the
// context it should execute in, and the Executable interface is what a node
// behaviour implements to take part in dispatch.
//
// # Task nodes
//
// A task node owns "preTasks" and "postTasks" compound input plugs and a
// "task" output plug. Connecting the "task" plug of one task node to a child
// of the "preTasks" plug of another declares that the second requires the
// first. A node connected to "postTasks" instead runs after the task that
// names it. AddTaskPlugs creates the plugs; AddPreTask and AddPostTask grow
// the compound plugs by one child.
package task
