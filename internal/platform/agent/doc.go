// Package agent runs the model work of a task on Google's Gemini API.
//
// An Executor implements task.Executor in two calls: Plan asks the model for
// a JSON plan for the task's goal, and Execute asks it to carry that plan
// out and return a JSON result. Transient API failures are retried with
// exponential backoff and jitter; blocked or malformed responses are not.
package agent
