package jobqueue

// bridgeEvents republishes a backend's outcome events on the bus under the
// service vocabulary.
func bridgeEvents(bus *EventBus, queue string, backend Backend) {
	backend.OnSucceeded(func(job *Job, result any) {
		bus.Publish(Event{Type: EventCompleted, Queue: queue, JobID: job.ID, Result: result})
	})
	backend.OnFailed(func(job *Job, err error) {
		bus.Publish(Event{Type: EventFailed, Queue: queue, JobID: job.ID, Err: err})
	})
}
