// Package distributor implements the Distributor (C5): the grid's single
// writer. It holds the authoritative Grid Model — the union of every
// node's last-known status — behind a fair read-write lock, runs the
// scheduling loop that pairs queued requests with free slots, registers
// and health-checks nodes, and processes drain and remove.
//
// Nothing outside this package is allowed to mutate the Grid Model;
// everything else either reads a snapshot through Status
// or asks the Distributor to perform a mutation on its behalf.
package distributor
