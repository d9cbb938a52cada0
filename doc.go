// Package identity implements the authentication and session-lifecycle core
// of a headless CMS backend: credential verification, stateless signed
// session tokens, a read-through identity cache, invitation and password
// reset flows, and a background task sink for side effects that must outlive
// the request.
//
// Session tokens:
//   - Tokens are HS256 JWTs carrying sub, email, role, iat, and exp. There is
//     no server-side session state; a token presented at exactly its expiry
//     instant is still accepted, one past it is not.
//
// Identity cache:
//   - Resolved identities are cached under both an id key and a normalized
//     email key. Every mutation that touches a user invalidates both keys
//     together. Cache failures are logged and treated as misses, never
//     surfaced to callers.
//
// Background tasks:
//   - TaskSink schedules work (cache invalidation, audit records,
//     notifications) that completes after the response is flushed. Tasks are
//     detached from request cancellation, recover from panics, and never
//     report back to the caller.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther and the
//     command handlers to describe registration, login, invitation, and
//     password reset events. Sinks run best-effort (errors are logged) so you
//     can forward to a database or queue without blocking authentication.
package identity
