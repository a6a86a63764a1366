// Package metrics holds the Prometheus collectors shared by every role
// process, registered via promauto at package init the way the examples
// this grid was grounded on do it. Each sub-area (queue,
// distributor) gets its own file; every role that imports this package
// registers all of its collectors.
package metrics
