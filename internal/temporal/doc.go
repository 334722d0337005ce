// Package temporal runs content pipeline runs as Temporal workflow executions.
//
// It is the durable alternative to the in-process orchestrator, selected with
// workflow.engine=temporal. Both engines share the checkpoint store: every
// execution loads the run's latest checkpoint before dispatching anything, and
// writes a new checkpoint after every stage attempt.
//
// # Components
//
//   - PipelineClient: starts executions, signals cancellation and queries status
//   - Engine: the run control surface (submit, resume, cancel, status, list)
//     served by the HTTP API and the Kafka command listener
//   - WorkerManager: a worker polling the task queue with the pipeline
//     workflow and its activities registered
//
// The workflow itself lives in the workflows subpackage and its activities in
// the activities subpackage.
//
// # Client Setup
//
//	c, err := temporal.NewClient(temporal.ClientConfig{
//	    HostPort:  "localhost:7233",
//	    Namespace: "content-pipeline",
//	    TaskQueue: "content-pipeline-tasks",
//	}, logger)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
// # Error Handling
//
// Client errors are returned as *TemporalError. Kinds that carry a domain
// meaning wrap the domain sentinel:
//
//	if errors.Is(err, domain.ErrAlreadyExists) {
//	    // an execution for the run is still open
//	}
//
// # Workflow IDs
//
// A run keeps the workflow ID returned by WorkflowID across resumes, so
// Temporal rejects a second concurrent execution for the same run.
package temporal
