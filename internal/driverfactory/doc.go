// Package driverfactory provides the one concrete node.SessionFactory
// this repository ships: a factory that treats an already-running
// WebDriver-compatible endpoint (a chromedriver, geckodriver, or
// browser container sidecar) as the session backend and relays
// commands to it over HTTP. Discovering, launching, or supervising the
// driver process itself is out of scope here — this factory only
// speaks to a URL it is told about at registration time.
package driverfactory
