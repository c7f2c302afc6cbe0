/*
Package nodeid handles component paths: the dotted names used to address a
node or plug relative to an ancestor, e.g. `box.add.sum`.

It owns the naming rule shared by every graph component, so names accepted
by the graph always round-trip through Parse.
*/
package nodeid
