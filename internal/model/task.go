package model

import "fmt"

// Task is per-step work that runs after every node has advanced.
type Task interface {
	Run(startTime, endTime float64) error
}

type TaskFunc func(startTime, endTime float64) error

func (f TaskFunc) Run(startTime, endTime float64) error {
	return f(startTime, endTime)
}

// TaskNode is a leaf node that only spawns tasks.
type TaskNode struct {
	name  string
	tasks []Task
}

func NewTaskNode(name string, tasks ...Task) *TaskNode {
	return &TaskNode{name: name, tasks: append([]Task(nil), tasks...)}
}

func (n *TaskNode) Name() string                   { return n.name }
func (n *TaskNode) Advance(float64, float64) error { return nil }
func (n *TaskNode) Reset(bool)                     {}
func (n *TaskNode) Tasks() []Task                  { return append([]Task(nil), n.tasks...) }

func (n *TaskNode) Origin(name string) (Origin, error) {
	return nil, fmt.Errorf("%w: origin %s on task node %s", ErrNotFound, name, n.name)
}

func (n *TaskNode) Termination(name string) (Termination, error) {
	return nil, fmt.Errorf("%w: termination %s on task node %s", ErrNotFound, name, n.name)
}
