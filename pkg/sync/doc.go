/*
The sync package implements the per-file transfer decision. It walks a local
source directory, compares each file against its counterpart on the remote
host, and partitions the tree into files that need to be pushed and files
that are already in place.

A file is compared in stages, cheapest first:
 1. Existence -- a file with no remote counterpart is always transferred.
 2. Size -- a remote counterpart with a different size is always transferred.
 3. Contents -- when checksum mode is on, equal-size files are still handed to
    the transfer tool with content verification enabled, since size equality
    is only a proxy for "possibly identical". Their fingerprints are computed
    through the checksum cache so repeated sessions over unchanged trees stay
    cheap.

The classifier only deals with files. Empty directories aren't replicated.
*/
package sync
