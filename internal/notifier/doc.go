// Package notifier delivers short user-facing messages such as "action failed".
//
// Notifications go through a bounded queue drained by a single worker that
// rate limits, retries and deduplicates before handing text to every configured
// Sender (console, Telegram). Notify never blocks on delivery.
//
// WatchBus turns action.failed events from the scheduling coordinator into
// notifications, so transition failures reach the user without the
// coordinator knowing about delivery channels.
package notifier
