// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing conversation states and message logs. They
// are not intended for production usage.
package testutil
