/*
Package server implements the scheduler loop.

The job server announces jobs and tasks through notifications, either pushed
to the scheduler or found by periodic reconciliation. The loop pulls the
configuration of each new item, checks that some node could ever host it,
prepares it with the runner and keeps it pending until the resource manager
places it on a node. Finished runs are collected every step and their
outcome is queued in the report outbox; an item is forgotten only once its
final report reached the server.

Everything the loop owns is touched by one goroutine only. Remote calls that
may be slow, like reconciliation, run in the background through async and
are applied by a later step.
*/
package server
