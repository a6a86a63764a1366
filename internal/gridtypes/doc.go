// Package gridtypes holds the data model shared by every role in the
// session distribution core: node and slot descriptions, capability and
// stereotype matching, session requests, and the small HTTP/JSON and
// authentication helpers every intra-cluster service builds on.
//
// Apart from Client, the HTTP/JSON helper, nothing in this package talks
// to the network, and nothing holds mutable state; it is the vocabulary the other packages (eventbus, sessionmap, queue, node,
// distributor, httpapi) share so that a NodeStatus built by one process
// decodes into an identical value in another.
package gridtypes
