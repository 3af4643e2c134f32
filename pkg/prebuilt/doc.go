// Package prebuilt assembles the common graph shapes: the agent/tool loop and the
// supervised team, plus the deciders that drive router nodes.
package prebuilt
