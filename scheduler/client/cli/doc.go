/*
Package cli is the operator command line. Job and task commands talk to the
job server through jobserver.Client; node commands read the admin endpoint
of a running scheduler.
*/
package cli
