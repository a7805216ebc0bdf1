// Package memorystore provides process local implementations of the core
// store contracts. They back tests and single process deployments.
package memorystore
