// Package task manages background job dispatch, queuing, execution, and
// lifecycle. It provides the durable ledger tracking every dispatched
// job, the dispatcher handing work to named queues, and the worker pool
// that executes handlers with bounded retries while streaming progress to
// live subscribers over the broadcast bus.
package task
