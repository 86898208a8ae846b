/*
Package session keeps named flow machines alive for servers.

A Manager builds one machine per session id from a Factory, serialises the
creation and the dispatches routed through it, and can coordinate with other
processes through a distributed Locker. Start hooks let adapters attach to
every new session, for example to publish its changes.
*/
package session
