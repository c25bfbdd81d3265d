// Package router accepts send and broadcast requests within a session.
//
// Every message passes the validation gate before anything else happens to
// it. Accepted messages receive the session's next sequence number and are
// appended to history under a per-session lock, so accepted sequence numbers
// are contiguous from 1 with no duplicates. Rejected messages consume no
// sequence number and are recorded only in the rejection audit log.
//
// Fan-out to recipients is best effort over the Notifier; durability comes
// from the history append, so unreachable recipients produce a partial
// delivery warning rather than an error.
package router
