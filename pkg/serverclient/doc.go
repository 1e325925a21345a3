/*
Package serverclient specifies the ServerClient collaborator (spec
§6.2): the untrusted, network-reachable peer this core polls for new
certificates and fetches manifests from. The real wire transport
(HTTP/RPC, retries, auth) is explicitly out of scope — this package
only defines the Client contract and ships one in-memory double,
Fake, used by tests and by the CLI's offline demo mode.
*/
package serverclient
