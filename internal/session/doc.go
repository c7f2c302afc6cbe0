// Package session owns a script: the node graph, its computation cache and
// the root context that carries the frame, the frame range and the script
// variables. It serialises edits to the graph and loads and saves scripts
// as HCL files.
package session
