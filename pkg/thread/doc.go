/*
Package thread serializes access to conversation threads.

A thread's steps must never run concurrently. The Manager holds a ref-counted
in-process mutex per thread and, when configured with a DistributedLocker, a
cross-process lock as well, so that replicas sharing one Checkpointer do not
interleave runs of the same thread.
*/
package thread
