/*
Package placeholder lets one addon register named value providers and lets
other addons request those values by name over a host event bus.

Requests are JSON published on "<namespace>:request"; each answer comes back on
"<namespace>:response:<requestId>" where requestId is "<id>:<uuid>". Request
never fails: callers compare the result against TimeoutSentinel and
InvalidSentinel instead. A placeholder with no registered handler is not an
error on the responder side; the requester simply times out.
*/
package placeholder
