// Package correlation derives read-time views over stored telemetry.
//
// Two computations live here. Nearest-gateway correlation attaches to a
// node event the position of its reporting core at the closest moment in
// time, searched over the core's entire history. Cycle scoping selects the
// events of a route cycle's node that fall inside the cycle's active window
// and derives temperature and humidity breaches from them.
//
// Nothing computed here is persisted.
package correlation
