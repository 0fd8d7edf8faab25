// Package api exposes the orchestrator over HTTP. Users submit and inspect
// their own tasks; administrators operate the scheduler and the ledger.
//
// Handlers depend on small interfaces satisfied by the task, ledger and
// audit services. Service errors are translated by MapErrorToStatusCode and
// internal error text never reaches clients.
package api
