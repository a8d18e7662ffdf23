/*
Package compiler builds Go binaries for tests that need to run a real process, such as a
fake relay. Binaries are written to a temporary directory that Cleanup removes.
*/
package compiler
