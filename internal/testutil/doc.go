// Package testutil contains helper builders and fakes used across tests to
// reduce boilerplate when wiring sessions, scenarios and agents. They are not
// intended for production usage.
package testutil
