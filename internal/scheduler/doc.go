// Package scheduler delivers durable reminders for the slice of the
// partition ring this process owns.
//
// A poll loop scans the owned range on a cadence, keeps the most urgent
// rows up to an adaptive bucket size, and queues them for a pool of
// delivery workers. Workers wait out the pre-fire delay, apply the row's
// missed-tick policy, invoke the owning actor, and advance the persisted
// schedule under optimistic concurrency. A slower repair loop rewrites
// rows the pipeline clearly lost. Registration calls arriving while the
// service is still booting are held until startup completes or the init
// timeout lapses.
package scheduler
