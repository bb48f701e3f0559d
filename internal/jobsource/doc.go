// Package jobsource discovers video files waiting to be processed.
//
// Source walks every monitored directory in lexical order and yields a Job
// for each file whose extension is configured and whose History entry is not
// a success. Failed files are offered again on every pass. The output
// directory is never descended into, even when it sits inside a monitored
// directory.
package jobsource
